package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Field synonyms models like to emit despite the schema in the prompt.
var fieldSynonyms = map[string]string{
	"vendor":           "merchant_name",
	"merchant":         "merchant_name",
	"store_name":       "merchant_name",
	"date":             "tx_date",
	"transaction_date": "tx_date",
	"purchase_date":    "tx_date",
	"currency":         "currency_code",
	"total_amount":     "total",
	"amount":           "total",
	"grand_total":      "total",
	"line_items":       "items",
	"gratuity":         "tip",
}

var moneyFields = []string{"subtotal", "tax", "tip", "discount", "total"}

var allowedKeys = map[string]struct{}{
	"merchant_name": {}, "tx_date": {}, "currency_code": {},
	"subtotal": {}, "tax": {}, "tip": {}, "discount": {}, "total": {},
	"payment_method": {}, "payment_last4": {}, "items": {}, "confidence": {},
}

var allowedItemKeys = map[string]struct{}{
	"name": {}, "quantity": {}, "unit_price": {}, "amount": {},
}

// RepairJSON leniently normalizes a model reply before schema validation:
// strips code fences, renames known synonyms, coerces money values to
// two-decimal strings, drops null/empty optionals and removes unknown keys.
// Returns the repaired document and a list of applied fixes for logging.
func RepairJSON(raw []byte) ([]byte, []string, error) {
	doc := stripCodeFence(string(raw))

	var m map[string]any
	if err := json.Unmarshal([]byte(doc), &m); err != nil {
		return nil, nil, fmt.Errorf("repair: decode: %w", err)
	}

	var fixes []string

	// Rename synonyms without clobbering existing values.
	for from, to := range fieldSynonyms {
		if v, ok := m[from]; ok {
			if _, exists := m[to]; !exists {
				m[to] = v
			}
			delete(m, from)
			fixes = append(fixes, from+"->"+to)
		}
	}

	for _, k := range moneyFields {
		if v, ok := m[k]; ok {
			s, ok2, fix := coerceMoney(v)
			if !ok2 {
				delete(m, k)
				fixes = append(fixes, k+"("+fix+")")
				continue
			}
			if fix != "" {
				fixes = append(fixes, k+"("+fix+")")
			}
			m[k] = s
		}
	}

	if v, ok := m["payment_method"].(string); ok {
		pm := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(v), " ", "_"))
		if pm == "" {
			delete(m, "payment_method")
			fixes = append(fixes, "payment_method(empty)")
		} else {
			m["payment_method"] = pm
		}
	}

	if v, ok := m["payment_last4"].(string); ok {
		s := strings.TrimSpace(v)
		if len(s) >= 4 {
			m["payment_last4"] = s[len(s)-4:]
		} else {
			delete(m, "payment_last4")
			fixes = append(fixes, "payment_last4(short)")
		}
	}

	if v, ok := m["currency_code"].(string); ok {
		m["currency_code"] = strings.ToUpper(strings.TrimSpace(v))
	}

	if items, ok := m["items"].([]any); ok {
		repaired, itemFixes := repairItems(items)
		m["items"] = repaired
		fixes = append(fixes, itemFixes...)
	} else if _, present := m["items"]; present {
		delete(m, "items")
		fixes = append(fixes, "items(type)")
	}

	// Drop nulls, empty strings and unknown keys.
	for k, v := range m {
		if _, ok := allowedKeys[k]; !ok {
			delete(m, k)
			fixes = append(fixes, k+"(unknown)")
			continue
		}
		switch t := v.(type) {
		case nil:
			delete(m, k)
			fixes = append(fixes, k+"(null)")
		case string:
			if strings.TrimSpace(t) == "" {
				delete(m, k)
				fixes = append(fixes, k+"(empty)")
			}
		}
	}

	b, err := json.Marshal(m)
	if err != nil {
		return nil, nil, err
	}
	return b, fixes, nil
}

func repairItems(items []any) ([]any, []string) {
	var fixes []string
	out := make([]any, 0, len(items))

	for i, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			fixes = append(fixes, fmt.Sprintf("items[%d](type)", i))
			continue
		}

		for k, v := range item {
			if _, ok := allowedItemKeys[k]; !ok {
				delete(item, k)
				continue
			}
			if v == nil {
				delete(item, k)
			}
		}

		name, _ := item["name"].(string)
		if strings.TrimSpace(name) == "" {
			fixes = append(fixes, fmt.Sprintf("items[%d](no name)", i))
			continue
		}

		for _, k := range []string{"unit_price", "amount"} {
			if v, ok := item[k]; ok {
				s, ok2, _ := coerceMoney(v)
				if !ok2 {
					delete(item, k)
					continue
				}
				item[k] = s
			}
		}

		if v, ok := item["quantity"]; ok {
			switch t := v.(type) {
			case float64:
				// already a number
			case string:
				if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
					item["quantity"] = f
				} else {
					delete(item, "quantity")
				}
			default:
				_ = t
				delete(item, "quantity")
			}
		}

		out = append(out, item)
	}

	return out, fixes
}

// coerceMoney normalizes a money-ish value to a fixed two-decimal string.
// The second return is false when the value is unusable.
func coerceMoney(v any) (string, bool, string) {
	switch t := v.(type) {
	case float64:
		return fmt.Sprintf("%.2f", t), true, "number"
	case string:
		s := strings.TrimSpace(t)
		s = strings.TrimLeft(s, "$€£ ")
		s = strings.ReplaceAll(s, ",", "")
		if s == "" || strings.EqualFold(s, "null") {
			return "", false, "empty"
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return "", false, "unparseable"
		}
		out := fmt.Sprintf("%.2f", f)
		if out != t {
			return out, true, "reformat"
		}
		return out, true, ""
	case nil:
		return "", false, "null"
	default:
		return "", false, "type"
	}
}

// stripCodeFence removes a surrounding markdown code fence if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
