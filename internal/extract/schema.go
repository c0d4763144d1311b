package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildReceiptJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. It is sent to the model as the output contract and used
// locally to validate the repaired reply.
func BuildReceiptJSONSchema() map[string]any {
	itemProps := map[string]any{
		"name":       map[string]any{"type": "string", "minLength": 1},
		"quantity":   map[string]any{"type": "number", "minimum": 0},
		"unit_price": decimalProp(),
		"amount":     decimalProp(),
	}

	props := map[string]any{
		"merchant_name":  map[string]any{"type": "string", "minLength": 1},
		"tx_date":        map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
		"currency_code":  map[string]any{"type": "string", "minLength": 3, "maxLength": 3},
		"subtotal":       decimalProp(),
		"tax":            decimalProp(),
		"tip":            decimalProp(),
		"discount":       decimalProp(),
		"total":          decimalProp(),
		"payment_method": map[string]any{"type": "string"},
		"payment_last4":  map[string]any{"type": "string", "pattern": `^\d{4}$`},
		"items": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties":           itemProps,
				"required":             []string{"name"},
			},
		},
		"confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             []string{"merchant_name", "tx_date", "total", "currency_code"},
	}
}

func decimalProp() map[string]any {
	return map[string]any{
		"type":    "string",
		"pattern": `^-?\d+(\.\d{1,2})?$`, // negatives allowed for discounts
	}
}

// ValidateJSONAgainstSchema validates data against schemaMap.
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
