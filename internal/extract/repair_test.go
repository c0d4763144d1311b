package extract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairJSON(t *testing.T) {
	t.Run("clean document passes through", func(t *testing.T) {
		in := `{"merchant_name":"Cafe","tx_date":"2024-03-15","currency_code":"USD","total":"13.77"}`
		out, fixes, err := RepairJSON([]byte(in))
		require.NoError(t, err)
		assert.Empty(t, fixes)
		assert.JSONEq(t, in, string(out))
	})

	t.Run("code fence stripped", func(t *testing.T) {
		in := "```json\n{\"merchant_name\":\"Cafe\",\"total\":\"1.00\"}\n```"
		out, _, err := RepairJSON([]byte(in))
		require.NoError(t, err)
		assert.JSONEq(t, `{"merchant_name":"Cafe","total":"1.00"}`, string(out))
	})

	t.Run("synonyms renamed", func(t *testing.T) {
		in := `{"vendor":"Cafe","date":"2024-03-15","currency":"usd","total_amount":"5.00"}`
		out, fixes, err := RepairJSON([]byte(in))
		require.NoError(t, err)
		assert.NotEmpty(t, fixes)

		var m map[string]any
		require.NoError(t, json.Unmarshal(out, &m))
		assert.Equal(t, "Cafe", m["merchant_name"])
		assert.Equal(t, "2024-03-15", m["tx_date"])
		assert.Equal(t, "USD", m["currency_code"])
		assert.Equal(t, "5.00", m["total"])
	})

	t.Run("money coerced to two-decimal strings", func(t *testing.T) {
		in := `{"merchant_name":"Cafe","total":13.7,"tax":"$1,024.5"}`
		out, _, err := RepairJSON([]byte(in))
		require.NoError(t, err)

		var m map[string]any
		require.NoError(t, json.Unmarshal(out, &m))
		assert.Equal(t, "13.70", m["total"])
		assert.Equal(t, "1024.50", m["tax"])
	})

	t.Run("nulls empties and unknown keys dropped", func(t *testing.T) {
		in := `{"merchant_name":"Cafe","total":"1.00","tip":null,"subtotal":"","notes":"extra"}`
		out, _, err := RepairJSON([]byte(in))
		require.NoError(t, err)

		var m map[string]any
		require.NoError(t, json.Unmarshal(out, &m))
		assert.NotContains(t, m, "tip")
		assert.NotContains(t, m, "subtotal")
		assert.NotContains(t, m, "notes")
	})

	t.Run("payment fields normalized", func(t *testing.T) {
		in := `{"merchant_name":"Cafe","total":"1.00","payment_method":"credit card","payment_last4":"****1234"}`
		out, _, err := RepairJSON([]byte(in))
		require.NoError(t, err)

		var m map[string]any
		require.NoError(t, json.Unmarshal(out, &m))
		assert.Equal(t, "CREDIT_CARD", m["payment_method"])
		assert.Equal(t, "1234", m["payment_last4"])
	})

	t.Run("items repaired", func(t *testing.T) {
		in := `{"merchant_name":"Cafe","total":"9.00","items":[
			{"name":"Coffee","amount":4.5,"sku":"X1"},
			{"name":"  ","amount":"1.00"},
			{"name":"Muffin","quantity":"2","amount":"4.50"}
		]}`
		out, _, err := RepairJSON([]byte(in))
		require.NoError(t, err)

		var m struct {
			Items []map[string]any `json:"items"`
		}
		require.NoError(t, json.Unmarshal(out, &m))
		require.Len(t, m.Items, 2)
		assert.Equal(t, "4.50", m.Items[0]["amount"])
		assert.NotContains(t, m.Items[0], "sku")
		assert.Equal(t, float64(2), m.Items[1]["quantity"])
	})

	t.Run("unparseable document errors", func(t *testing.T) {
		_, _, err := RepairJSON([]byte("sorry, I cannot parse that receipt"))
		assert.Error(t, err)
	})
}

func TestValidateJSONAgainstSchema(t *testing.T) {
	schema := BuildReceiptJSONSchema()

	t.Run("valid document", func(t *testing.T) {
		doc := `{"merchant_name":"Cafe","tx_date":"2024-03-15","currency_code":"USD","total":"13.77"}`
		assert.NoError(t, ValidateJSONAgainstSchema(schema, []byte(doc)))
	})

	t.Run("missing required field", func(t *testing.T) {
		doc := `{"merchant_name":"Cafe","tx_date":"2024-03-15","currency_code":"USD"}`
		assert.Error(t, ValidateJSONAgainstSchema(schema, []byte(doc)))
	})

	t.Run("bad money format", func(t *testing.T) {
		doc := `{"merchant_name":"Cafe","tx_date":"2024-03-15","currency_code":"USD","total":"$13.77"}`
		assert.Error(t, ValidateJSONAgainstSchema(schema, []byte(doc)))
	})

	t.Run("bad currency code", func(t *testing.T) {
		doc := `{"merchant_name":"Cafe","tx_date":"2024-03-15","currency_code":"dollars","total":"13.77"}`
		assert.Error(t, ValidateJSONAgainstSchema(schema, []byte(doc)))
	})
}
