package ocr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	t.Run("collapses CRLF to LF", func(t *testing.T) {
		got := Normalize("line one\r\nline two\rline three")
		assert.Equal(t, "line one\nline two\nline three", got)
	})

	t.Run("collapses tabs and repeated spaces", func(t *testing.T) {
		got := Normalize("TOTAL\t\t  12.50")
		assert.Equal(t, "TOTAL 12.50", got)
	})

	t.Run("caps blank line runs", func(t *testing.T) {
		got := Normalize("header\n\n\n\n\nfooter")
		assert.Equal(t, "header\n\nfooter", got)
	})

	t.Run("drops separator rule lines", func(t *testing.T) {
		got := Normalize("STORE\n--------\nTOTAL 5.00")
		assert.NotContains(t, got, "--------")
		assert.Contains(t, got, "STORE")
		assert.Contains(t, got, "TOTAL 5.00")
	})

	t.Run("trims trailing spaces per line", func(t *testing.T) {
		got := Normalize("abc   \ndef  ")
		assert.Equal(t, "abc\ndef", got)
	})

	t.Run("fixes leading zero-for-O artifacts", func(t *testing.T) {
		got := Normalize("0rder total")
		assert.Equal(t, "Order total", got)
	})

	t.Run("keeps genuine numbers untouched", func(t *testing.T) {
		got := Normalize("12.05 items 0.99")
		assert.Equal(t, "12.05 items 0.99", got)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Equal(t, "", Normalize(""))
	})
}
