// Package export renders a JobResult as an XLSX workbook.
package export

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/facturio/invoice-pipeline/internal/entity"
)

const (
	invoiceSheet = "Invoices"
	itemSheet    = "Line Items"
	errorSheet   = "Errors"
)

// Service turns job results into workbook bytes.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// BuildWorkbook returns an XLSX workbook (as bytes) for one JobResult:
// one sheet of invoices, one of line items, one of per-file errors.
func (s *Service) BuildWorkbook(result *entity.JobResult) ([]byte, error) {
	start := time.Now()
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", invoiceSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(itemSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(errorSheet); err != nil {
		return nil, err
	}

	writeRow(f, invoiceSheet, 1, []any{
		"Seq", "Source File", "Invoice Number", "Date",
		"Supplier", "Supplier RUC", "Customer", "Customer RUC",
		"Subtotal", "Tax", "Total", "Currency", "Confidence",
	})
	row := 2
	itemRow := 2
	writeRow(f, itemSheet, 1, []any{
		"Seq", "Source File", "Description", "Quantity", "Unit", "Unit Price", "Total Price",
	})
	for _, r := range result.Results {
		writeRow(f, invoiceSheet, row, []any{
			r.SequenceID, r.SourceFile, r.InvoiceNumber, r.InvoiceDate,
			r.SupplierName, r.SupplierRUC, r.CustomerName, r.CustomerRUC,
			money(r.Subtotal), money(r.Tax), money(r.Total), r.Currency,
			fmt.Sprintf("%.2f", r.ConfidenceScore),
		})
		row++
		for _, it := range r.Items {
			writeRow(f, itemSheet, itemRow, []any{
				r.SequenceID, r.SourceFile, it.Description,
				money(it.Quantity), it.Unit, money(it.UnitPrice), money(it.TotalPrice),
			})
			itemRow++
		}
	}

	writeRow(f, errorSheet, 1, []any{"Seq", "Source File", "Error"})
	for i, e := range result.Errors {
		writeRow(f, errorSheet, i+2, []any{e.SequenceID, e.Filename, e.Message})
	}

	// Widen a few columns
	_ = f.SetColWidth(invoiceSheet, "B", "B", 36) // source file
	_ = f.SetColWidth(invoiceSheet, "E", "H", 24) // parties
	_ = f.SetColWidth(invoiceSheet, "I", "K", 12) // amounts
	_ = f.SetColWidth(itemSheet, "B", "C", 36)
	_ = f.SetColWidth(errorSheet, "B", "B", 36)
	_ = f.SetColWidth(errorSheet, "C", "C", 64)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("workbook built",
		"job_id", result.JobID,
		"invoices", len(result.Results),
		"errors", len(result.Errors),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func money(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}
