package utils

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)
	amountRegex   = regexp.MustCompile(`^-?\d+\.\d{2}$`)
	controlRegex  = regexp.MustCompile(`[\x00-\x1f\x7f]`)
)

// ValidateCurrencyCode checks for a 3-letter ISO 4217 code.
func ValidateCurrencyCode(code string) error {
	if !currencyRegex.MatchString(code) {
		return fmt.Errorf("invalid currency code: %q", code)
	}
	return nil
}

// ValidateAmountString checks a fixed two-decimal monetary string.
func ValidateAmountString(amount string) error {
	if !amountRegex.MatchString(amount) {
		return fmt.Errorf("invalid amount format: %q", amount)
	}
	return nil
}

// SanitizeFilename strips control characters and path separators from an
// uploaded filename so it is safe to store and display.
func SanitizeFilename(name string) string {
	name = controlRegex.ReplaceAllString(name, "")
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.TrimSpace(name)
	if name == "" {
		name = "upload"
	}
	return name
}
