package gemini

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func normalize(t *testing.T, raw string) map[string]any {
	t.Helper()
	out, _, err := NormalizeExtraction([]byte(raw))
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(out, &m))
	return m
}

func TestNormalizeStripsCodeFences(t *testing.T) {
	m := normalize(t, "```json\n{\"invoice_number\": \"F001-123\", \"confidence_score\": 0.8}\n```")
	assert.Equal(t, "F001-123", m["invoice_number"])
	assert.Equal(t, 0.8, m["confidence_score"])
}

func TestNormalizeDropsNullsAndEmpties(t *testing.T) {
	m := normalize(t, `{
		"invoice_number": null,
		"supplier_name": "   ",
		"customer_name": "  Bodega Central  ",
		"subtotal": null,
		"items": null,
		"confidence_score": 0.5
	}`)
	assert.NotContains(t, m, "invoice_number")
	assert.NotContains(t, m, "supplier_name")
	assert.NotContains(t, m, "subtotal")
	assert.NotContains(t, m, "items")
	assert.Equal(t, "Bodega Central", m["customer_name"])
}

func TestNormalizeMoneyKeepsExactLexeme(t *testing.T) {
	// 118.40 must not become 118.4: the digits the model produced survive.
	m := normalize(t, `{"total": 118.40, "confidence_score": 1}`)
	assert.Equal(t, "118.40", m["total"])
}

func TestNormalizeMoneyCleansNoisyStrings(t *testing.T) {
	m := normalize(t, `{
		"subtotal": "S/ 1,234.50",
		"tax": "$ 10.00",
		"total": "not a number",
		"confidence_score": 0.9
	}`)
	assert.Equal(t, "1234.50", m["subtotal"])
	assert.Equal(t, "10.00", m["tax"])
	assert.NotContains(t, m, "total")
}

func TestNormalizeCurrencyUppercased(t *testing.T) {
	m := normalize(t, `{"currency": "pen", "confidence_score": 0.9}`)
	assert.Equal(t, "PEN", m["currency"])
}

func TestNormalizeConfidenceClamped(t *testing.T) {
	assert.Equal(t, 1.0, normalize(t, `{"confidence_score": 3.7}`)["confidence_score"])
	assert.Equal(t, 0.0, normalize(t, `{"confidence_score": -2}`)["confidence_score"])
	// absent defaults to zero, never rejected
	assert.Equal(t, 0.0, normalize(t, `{}`)["confidence_score"])
}

func TestNormalizeItems(t *testing.T) {
	m := normalize(t, `{
		"items": [
			{"description": "Arroz 5kg", "quantity": 2, "unit_price": "S/ 12.50", "total_price": 25.00, "brand": "x"},
			{"description": null}
		],
		"confidence_score": 0.7
	}`)
	items, ok := m["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	it := items[0].(map[string]any)
	assert.Equal(t, "Arroz 5kg", it["description"])
	assert.Equal(t, "2", it["quantity"])
	assert.Equal(t, "12.50", it["unit_price"])
	assert.Equal(t, "25.00", it["total_price"])
	assert.NotContains(t, it, "brand")
}

func TestNormalizeDropsUnknownKeys(t *testing.T) {
	out, dropped, err := NormalizeExtraction([]byte(`{"confidence_score": 0.5, "reasoning": "because"}`))
	require.NoError(t, err)
	assert.NotContains(t, string(out), "reasoning")
	assert.NotEmpty(t, dropped)
}

func TestNormalizeRejectsNonJSON(t *testing.T) {
	_, _, err := NormalizeExtraction([]byte("I could not read this invoice, sorry."))
	require.Error(t, err)
}

func TestNormalizedOutputPassesSchema(t *testing.T) {
	out, _, err := NormalizeExtraction([]byte(`{
		"invoice_number": "F001-00012345",
		"invoice_date": "2024-02-01",
		"supplier_name": "Ferreteria El Sol S.A.C.",
		"supplier_ruc": "20123456789",
		"items": [{"description": "Cemento", "quantity": 10, "unit_price": 28.90, "total_price": 289.00, "unit": "bolsa"}],
		"subtotal": "S/ 289.00",
		"tax": 52.02,
		"total": 341.02,
		"currency": "pen",
		"confidence_score": 0.93
	}`))
	require.NoError(t, err)
	require.NoError(t, ValidateJSONAgainstSchema(BuildInvoiceJSONSchema(), out))
}
