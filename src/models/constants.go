package models

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// CSVHeaders is the exact header row of the kryptosekken generic import format.
var CSVHeaders = []string{
	"Tidspunkt",
	"Type",
	"Inn",
	"Inn-Valuta",
	"Ut",
	"Ut-Valuta",
	"Gebyr",
	"Gebyr-Valuta",
	"Marked",
	"Notat",
}

// SupportedTimestampFormats lists the timestamp layouts accepted on input,
// preferred format first.
var SupportedTimestampFormats = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05.999999",
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
}

// Currency codes are 1-16 characters from A-Z, a-z, 0-9 and hyphen.
var currencyCodePattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,16}$`)

const (
	MaxDecimalIntegerDigits = 18
	MaxDecimalPlaces        = 18
)

var (
	// BalanceTolerance is the slack allowed when checking net balances.
	BalanceTolerance = decimal.RequireFromString("0.000001")

	// DustThreshold marks amounts small enough to be rounding noise.
	DustThreshold = decimal.RequireFromString("0.000001")

	// HighFeePercentage flags trades whose fee exceeds this share of Ut.
	HighFeePercentage = decimal.NewFromInt(5)

	// NegligibleAmount is the threshold below which a balance is treated
	// as zero for reporting and persistence.
	NegligibleAmount = decimal.RequireFromString("0.00000001")
)

// IsValidCurrencyCode reports whether code satisfies the kryptosekken
// currency code rules.
func IsValidCurrencyCode(code string) bool {
	return currencyCodePattern.MatchString(code)
}

// IsValidDecimalPrecision reports whether d fits within 18 integer digits
// and 18 decimal places.
func IsValidDecimalPrecision(d decimal.Decimal) bool {
	s := d.Abs().String()
	intPart, fracPart, _ := strings.Cut(s, ".")
	intPart = strings.TrimLeft(intPart, "0")
	return len(intPart) <= MaxDecimalIntegerDigits && len(fracPart) <= MaxDecimalPlaces
}
