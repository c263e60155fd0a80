package entity

import (
	"github.com/shopspring/decimal"

	"github.com/facturio/invoice-pipeline/internal/common"
)

// DefaultCurrency is assumed when the model cannot read a currency off the page.
const DefaultCurrency = "PEN"

// LineItem is one row of an invoice's detail section.
type LineItem struct {
	Description string           `json:"description,omitempty"`
	Quantity    *decimal.Decimal `json:"quantity,omitempty"`
	Unit        string           `json:"unit,omitempty"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
	TotalPrice  *decimal.Decimal `json:"total_price,omitempty"`
}

// InvoiceRecord is the unified extraction schema. Every business field is
// optional because extraction may be partial; money fields are exact decimals.
type InvoiceRecord struct {
	InvoiceNumber string           `json:"invoice_number,omitempty"`
	InvoiceDate   string           `json:"invoice_date,omitempty"` // YYYY-MM-DD
	SupplierName  string           `json:"supplier_name,omitempty"`
	SupplierRUC   string           `json:"supplier_ruc,omitempty"`
	CustomerName  string           `json:"customer_name,omitempty"`
	CustomerRUC   string           `json:"customer_ruc,omitempty"`
	Subtotal      *decimal.Decimal `json:"subtotal,omitempty"`
	Tax           *decimal.Decimal `json:"tax,omitempty"`
	Total         *decimal.Decimal `json:"total,omitempty"`
	Currency      string           `json:"currency"`
	Items         []LineItem       `json:"items,omitempty"`

	// ConfidenceScore is the model's own 0..1 certainty, conveyed unmodified.
	ConfidenceScore float32 `json:"confidence_score"`
	SourceFile      string  `json:"source_file"`
	SequenceID      int     `json:"sequence_id"`
}

// Validate checks the identifier-shaped fields. Failures are advisory; the
// pipeline never rejects a record over them.
func (r *InvoiceRecord) Validate() error {
	v := common.NewValidator()
	v.Field("currency", r.Currency, common.CurrencyCode)
	if r.SupplierRUC != "" {
		v.Field("supplier_ruc", r.SupplierRUC, common.RUC)
	}
	if r.CustomerRUC != "" {
		v.Field("customer_ruc", r.CustomerRUC, common.RUC)
	}
	return common.ValidateAndReturnError(v)
}
