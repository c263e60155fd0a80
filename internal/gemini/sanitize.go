package gemini

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	reDecimal = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	// Currency markers the model sometimes leaves on amounts (S/ is PEN).
	amountCleaner = strings.NewReplacer("S/", "", "s/", "", "$", "", "€", "", ",", "", " ", "")

	moneyFields     = []string{"subtotal", "tax", "total"}
	itemMoneyFields = []string{"quantity", "unit_price", "total_price"}
	stringFields    = []string{
		"invoice_number", "invoice_date", "supplier_name", "supplier_ruc",
		"customer_name", "customer_ruc", "currency",
	}
)

// NormalizeExtraction
// - Strips markdown code fences the model occasionally wraps JSON in
// - Drops null/empty values so optionals simply go absent
// - Coerces numeric money values to plain decimal strings (exact lexeme kept)
// - Clamps confidence_score into [0,1], defaulting to 0 when absent
// - Removes unknown keys (strict additionalProperties = false friendliness)
func NormalizeExtraction(raw []byte) ([]byte, []string, error) {
	raw = stripFences(raw)

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	var dropped []string
	drop := func(k, why string) {
		delete(m, k)
		dropped = append(dropped, k+"("+why+")")
	}

	for _, k := range stringFields {
		switch v := m[k].(type) {
		case nil:
			if _, present := m[k]; present {
				drop(k, "null")
			}
		case string:
			s := strings.TrimSpace(v)
			if s == "" {
				drop(k, "empty")
			} else {
				m[k] = s
			}
		default:
			if _, present := m[k]; present {
				drop(k, "type")
			}
		}
	}
	if v, ok := m["currency"].(string); ok {
		m["currency"] = strings.ToUpper(v)
	}

	for _, k := range moneyFields {
		coerceMoney(m, k, &dropped)
	}

	// items: null goes absent, each entry sanitized like the top level
	switch items := m["items"].(type) {
	case nil:
		if _, present := m["items"]; present {
			drop("items", "null")
		}
	case []any:
		cleaned := make([]any, 0, len(items))
		for _, it := range items {
			im, ok := it.(map[string]any)
			if !ok {
				dropped = append(dropped, "items.entry(type)")
				continue
			}
			sanitizeItem(im, &dropped)
			if len(im) > 0 {
				cleaned = append(cleaned, im)
			}
		}
		if len(cleaned) == 0 {
			drop("items", "empty")
		} else {
			m["items"] = cleaned
		}
	default:
		if _, present := m["items"]; present {
			drop("items", "type")
		}
	}

	// confidence is required downstream; clamp rather than reject
	conf := 0.0
	switch v := m["confidence_score"].(type) {
	case json.Number:
		if f, err := v.Float64(); err == nil {
			conf = f
		}
	case string:
		fmt.Sscanf(strings.TrimSpace(v), "%f", &conf)
	}
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	m["confidence_score"] = conf

	allowed := map[string]struct{}{
		"invoice_number": {}, "invoice_date": {}, "supplier_name": {},
		"supplier_ruc": {}, "customer_name": {}, "customer_ruc": {},
		"items": {}, "subtotal": {}, "tax": {}, "total": {},
		"currency": {}, "confidence_score": {},
	}
	for k := range m {
		if _, ok := allowed[k]; !ok {
			drop(k, "unknown")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	return out, dropped, nil
}

func sanitizeItem(im map[string]any, dropped *[]string) {
	for _, k := range []string{"description", "unit"} {
		switch v := im[k].(type) {
		case nil:
			if _, present := im[k]; present {
				delete(im, k)
				*dropped = append(*dropped, "items."+k+"(null)")
			}
		case string:
			s := strings.TrimSpace(v)
			if s == "" {
				delete(im, k)
				*dropped = append(*dropped, "items."+k+"(empty)")
			} else {
				im[k] = s
			}
		default:
			if _, present := im[k]; present {
				delete(im, k)
				*dropped = append(*dropped, "items."+k+"(type)")
			}
		}
	}
	for _, k := range itemMoneyFields {
		coerceMoney(im, k, dropped)
	}
	for k := range im {
		switch k {
		case "description", "unit", "quantity", "unit_price", "total_price":
		default:
			delete(im, k)
			*dropped = append(*dropped, "items."+k+"(unknown)")
		}
	}
}

// coerceMoney turns a numeric or noisy-string amount into a plain decimal
// string, preserving the exact digits the model produced.
func coerceMoney(m map[string]any, k string, dropped *[]string) {
	v, ok := m[k]
	if !ok {
		return
	}
	switch t := v.(type) {
	case json.Number:
		m[k] = t.String()
	case string:
		s := amountCleaner.Replace(strings.TrimSpace(t))
		if s == "" || strings.EqualFold(s, "null") {
			delete(m, k)
			*dropped = append(*dropped, k+"(empty)")
			return
		}
		if !reDecimal.MatchString(s) {
			delete(m, k)
			*dropped = append(*dropped, k+"(format)")
			return
		}
		m[k] = s
	case nil:
		delete(m, k)
		*dropped = append(*dropped, k+"(null)")
	default:
		delete(m, k)
		*dropped = append(*dropped, k+"(type)")
	}
}

// stripFences removes a leading ```json / trailing ``` wrapper if present.
func stripFences(raw []byte) []byte {
	s := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(s, "```") {
		return raw
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return []byte(strings.TrimSpace(s))
}
