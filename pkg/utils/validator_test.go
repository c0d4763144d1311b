package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateCurrencyCode(t *testing.T) {
	assert.NoError(t, ValidateCurrencyCode("USD"))
	assert.NoError(t, ValidateCurrencyCode("EUR"))
	assert.Error(t, ValidateCurrencyCode("usd"))
	assert.Error(t, ValidateCurrencyCode("DOLLARS"))
	assert.Error(t, ValidateCurrencyCode(""))
}

func TestValidateAmountString(t *testing.T) {
	assert.NoError(t, ValidateAmountString("13.77"))
	assert.NoError(t, ValidateAmountString("0.00"))
	assert.NoError(t, ValidateAmountString("-5.00"))
	assert.Error(t, ValidateAmountString("13.7"))
	assert.Error(t, ValidateAmountString("13"))
	assert.Error(t, ValidateAmountString("$13.77"))
	assert.Error(t, ValidateAmountString("1,299.00"))
	assert.Error(t, ValidateAmountString(""))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "receipt.pdf", SanitizeFilename("receipt.pdf"))
	assert.Equal(t, "etc_passwd", SanitizeFilename("etc/passwd"))
	assert.Equal(t, "a_b.pdf", SanitizeFilename("a\\b.pdf"))
	assert.Equal(t, "receipt.pdf", SanitizeFilename("rec\x00eipt.pdf"))
	assert.Equal(t, "upload", SanitizeFilename("   "))
}
