package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleReceipt = `COFFEE CORNER
123 Main Street
2024-03-15 09:41
2 x Cappuccino 9.00
Blueberry Muffin 3.75
Subtotal 12.75
Tax 1.02
TOTAL $13.77
VISA ****1234
Thank you!`

func TestHeuristicParser_Parse(t *testing.T) {
	parser := NewHeuristicParser("USD", zap.NewNop())

	t.Run("full receipt", func(t *testing.T) {
		data := parser.Parse(sampleReceipt)

		assert.Equal(t, "COFFEE CORNER", data.MerchantName)
		assert.Equal(t, "2024-03-15", data.TxDate)
		assert.Equal(t, "12.75", data.Subtotal)
		assert.Equal(t, "1.02", data.Tax)
		assert.Equal(t, "13.77", data.Total)
		assert.Equal(t, "VISA", data.PaymentMethod)
		assert.Equal(t, "1234", data.PaymentLast4)

		require.Len(t, data.Items, 2)
		assert.Equal(t, "Cappuccino", data.Items[0].Name)
		assert.Equal(t, float64(2), data.Items[0].Quantity)
		assert.Equal(t, "4.50", data.Items[0].UnitPrice)
		assert.Equal(t, "9.00", data.Items[0].Amount)
		assert.Equal(t, "Blueberry Muffin", data.Items[1].Name)

		assert.Equal(t, 1.0, data.Confidence)
	})

	t.Run("subtotal never taken as total", func(t *testing.T) {
		data := parser.Parse("SHOP\nSubtotal 10.00\nTotal 11.00")
		assert.Equal(t, "10.00", data.Subtotal)
		assert.Equal(t, "11.00", data.Total)
	})

	t.Run("largest amount fallback when no labeled total", func(t *testing.T) {
		data := parser.Parse("SHOP\nWidget 4.00\nGadget 19.99\nThanks")
		assert.Equal(t, "19.99", data.Total)
	})

	t.Run("thousands separator stripped", func(t *testing.T) {
		data := parser.Parse("ELECTRONICS\nTotal 1,299.00")
		assert.Equal(t, "1299.00", data.Total)
	})

	t.Run("empty text scores zero", func(t *testing.T) {
		data := parser.Parse("")
		assert.Empty(t, data.MerchantName)
		assert.Empty(t, data.Total)
		assert.Zero(t, data.Confidence)
	})
}

func TestHeuristicParser_FindDate(t *testing.T) {
	parser := NewHeuristicParser("USD", zap.NewNop())

	tests := []struct {
		name string
		text string
		want string
	}{
		{"iso", "Date: 2024-01-09", "2024-01-09"},
		{"us slash", "03/15/2024", "2024-03-15"},
		{"day first when over twelve", "25/03/2024", "2024-03-25"},
		{"dotted", "15.03.2024", "2024-03-15"},
		{"month name", "Mar 15, 2024", "2024-03-15"},
		{"full month name", "March 5 2024", "2024-03-05"},
		{"invalid day rejected", "99/99/2024", ""},
		{"none", "no date here", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parser.findDate(tt.text))
		})
	}
}

func TestHeuristicParser_FindCurrency(t *testing.T) {
	parser := NewHeuristicParser("USD", zap.NewNop())

	assert.Equal(t, "EUR", parser.findCurrency("Total 10.00 EUR"))
	assert.Equal(t, "EUR", parser.findCurrency("Total €10.00"))
	assert.Equal(t, "GBP", parser.findCurrency("Total £10.00"))
	assert.Equal(t, "USD", parser.findCurrency("Total $10.00"))
	assert.Equal(t, "", parser.findCurrency("Total 10.00"))
}

func TestHeuristicParser_FindMerchant(t *testing.T) {
	parser := NewHeuristicParser("USD", zap.NewNop())

	t.Run("skips dates and digit lines", func(t *testing.T) {
		lines := []string{"2024-03-15", "555-0100", "THE DELI", "item 1.00"}
		assert.Equal(t, "THE DELI", parser.findMerchant(lines))
	})

	t.Run("only scans the header", func(t *testing.T) {
		lines := []string{"1", "2", "3", "4", "5", "6", "LATE NAME"}
		assert.Equal(t, "", parser.findMerchant(lines))
	})
}
