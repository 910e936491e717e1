package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Validation constants
const (
	MaxDescriptionLength = 500
	MaxAmount            = int64(100_000_000_000_00) // 100 billion major units
	DefaultPageSize      = 50
	MaxPageSize          = 200
)

// Valid currency codes (ISO 4217) mapped to their minor-unit exponent.
var currencyExponents = map[string]int32{
	"USD": 2, "EUR": 2, "GBP": 2, "JPY": 0,
	"CNY": 2, "AUD": 2, "CAD": 2, "CHF": 2,
	"SEK": 2, "NZD": 2, "KRW": 0, "SGD": 2,
	"NOK": 2, "MXN": 2, "INR": 2, "BRL": 2,
	"ZAR": 2, "RUB": 2, "TRY": 2, "HKD": 2,
	"ARS": 2, "CLP": 0, "COP": 2, "PEN": 2,
	"UYU": 2,
}

// NormalizeCurrency upper-cases and trims a currency code.
func NormalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

// ValidateCurrency validates currency code
func ValidateCurrency(currency string) error {
	currency = NormalizeCurrency(currency)

	if _, ok := currencyExponents[currency]; !ok {
		return BadRequest(ErrInvalidCurrency, "%s is not a valid ISO 4217 currency code", currency)
	}

	return nil
}

// ValidateAmount validates a movement amount in minor units.
func ValidateAmount(amount int64) error {
	if amount <= 0 {
		return BadRequest(ErrInvalidAmount, "Amount must be a positive integer in minor units, got %d", amount)
	}

	if amount > MaxAmount {
		return BadRequest(ErrInvalidAmount, "Amount %d exceeds maximum allowed %d", amount, MaxAmount)
	}

	return nil
}

// ValidateDescription validates free-text description length.
func ValidateDescription(description string) error {
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return BadRequest(ErrDescriptionTooLong, "Description exceeds %d characters", MaxDescriptionLength)
	}
	return nil
}

// ValidatePageSize applies the default and the cap to a requested page size.
func ValidatePageSize(limit, defaultSize, maxSize int) int {
	if defaultSize <= 0 {
		defaultSize = DefaultPageSize
	}
	if maxSize <= 0 {
		maxSize = MaxPageSize
	}

	if limit <= 0 {
		limit = defaultSize
	}

	if limit > maxSize {
		limit = maxSize
	}

	return limit
}

// MinorUnitExponent returns the number of decimal places for currency,
// defaulting to 2 for unknown codes.
func MinorUnitExponent(currency string) int32 {
	if exp, ok := currencyExponents[NormalizeCurrency(currency)]; ok {
		return exp
	}
	return 2
}

// ToMinorUnits converts a major-unit decimal amount into integer minor
// units. Amounts with more precision than the currency allows, or above
// MaxAmount, are rejected.
func ToMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	exp := MinorUnitExponent(currency)
	shifted := amount.Shift(exp)

	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, BadRequest(ErrInvalidAmount, "Amount %s has more than %d decimal places for %s", amount, exp, currency)
	}
	if shifted.Abs().GreaterThan(decimal.NewFromInt(MaxAmount)) {
		return 0, BadRequest(ErrInvalidAmount, "Amount %s exceeds maximum allowed %s", amount, FormatMinorUnits(MaxAmount, currency))
	}

	return shifted.IntPart(), nil
}

// FormatMinorUnits renders minor units as a major-unit string, e.g. 3334 USD
// as "33.34".
func FormatMinorUnits(amount int64, currency string) string {
	exp := MinorUnitExponent(currency)
	return decimal.New(amount, -exp).StringFixed(exp)
}

// FormatAmountList renders amounts as a comma separated major-unit list.
func FormatAmountList(amounts []int64, currency string) string {
	parts := make([]string, len(amounts))
	for i, a := range amounts {
		parts[i] = FormatMinorUnits(a, currency)
	}
	return strings.Join(parts, ", ")
}

// DescribeAllocationCount renders a short allocation summary for history.
func DescribeAllocationCount(n int) string {
	if n == 1 {
		return "1 allocation"
	}
	return fmt.Sprintf("%d allocations", n)
}
