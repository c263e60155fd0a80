package gemini

// BuildInvoiceJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. We validate the sanitized model output against it before
// decoding, so downstream stages never branch on raw response shape.
func BuildInvoiceJSONSchema() map[string]any {
	item := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"description": stringProp(),
			"quantity":    decimalProp(),
			"unit":        stringProp(),
			"unit_price":  decimalProp(),
			"total_price": decimalProp(),
		},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"invoice_number": stringProp(),
			"invoice_date":   map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
			"supplier_name":  stringProp(),
			"supplier_ruc":   stringProp(),
			"customer_name":  stringProp(),
			"customer_ruc":   stringProp(),
			"items":          map[string]any{"type": "array", "items": item},
			"subtotal":       decimalProp(),
			"tax":            decimalProp(),
			"total":          decimalProp(),
			"currency":       map[string]any{"type": "string", "minLength": 3, "maxLength": 3},
			"confidence_score": map[string]any{
				"type": "number", "minimum": 0.0, "maximum": 1.0,
			},
		},
		"required": []string{"confidence_score"},
	}
}

func stringProp() map[string]any {
	return map[string]any{"type": "string", "minLength": 1}
}

// Sanitization coerces every money-ish value to a plain decimal string, so
// the schema only has to accept that one shape.
func decimalProp() map[string]any {
	return map[string]any{
		"type":    "string",
		"pattern": `^-?\d+(\.\d+)?$`,
	}
}
