// Package validator checks generated kryptosekken transactions against the
// import format rules: required fields, the closed type vocabulary,
// currency code and decimal precision limits, and per-type logic.
// Violations are collected as issues; validation never panics or aborts.
package validator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Laende/cakedefi-kryptosekken-converter/src/models"
)

// Level classifies the severity of a validation finding.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// Issue is a single structured validation finding.
type Issue struct {
	Level   Level
	Message string
	Row     int // CSV row number, 0 when not tied to one row
}

// Result summarizes one validation run.
type Result struct {
	Valid            bool
	TransactionCount int
	Issues           []Issue
}

// Errors returns the messages of all error-level issues.
func (r Result) Errors() []string { return r.messages(LevelError) }

// Warnings returns the messages of all warning-level issues.
func (r Result) Warnings() []string { return r.messages(LevelWarning) }

func (r Result) messages(level Level) []string {
	var out []string
	for _, issue := range r.Issues {
		if issue.Level == level {
			out = append(out, issue.Message)
		}
	}
	return out
}

type validator struct {
	issues []Issue
}

func (v *validator) add(level Level, row int, format string, args ...any) {
	v.issues = append(v.issues, Issue{Level: level, Row: row, Message: fmt.Sprintf(format, args...)})
}

// Validate runs all checks over the transactions. expectedYear of 0 skips
// the year check.
func Validate(txs []models.KryptosekkenTransaction, expectedYear int) Result {
	v := &validator{}
	if len(txs) == 0 {
		v.add(LevelWarning, 0, "no transactions to validate")
		return v.result(txs)
	}

	v.validateStructure(txs)
	v.validateDates(txs, expectedYear)
	v.validateTypeLogic(txs)
	v.validateReasonableness(txs)
	return v.result(txs)
}

func (v *validator) result(txs []models.KryptosekkenTransaction) Result {
	res := Result{
		Valid:            true,
		TransactionCount: len(txs),
		Issues:           v.issues,
	}
	for _, issue := range v.issues {
		if issue.Level == LevelError {
			res.Valid = false
			break
		}
	}
	return res
}

func (v *validator) validateStructure(txs []models.KryptosekkenTransaction) {
	for _, tx := range txs {
		if tx.Tidspunkt.IsZero() {
			v.add(LevelError, tx.RowNum, "Tidspunkt is required")
		}
		if tx.Type == "" {
			v.add(LevelError, tx.RowNum, "Type is required")
		} else if !models.ValidTransactionTypes[tx.Type] {
			v.add(LevelError, tx.RowNum, "invalid Type %q", tx.Type)
		}

		if tx.Inn == nil && tx.Ut == nil {
			v.add(LevelError, tx.RowNum, "transaction must have an Inn or Ut amount")
		}
		if tx.Inn != nil && tx.InnValuta == "" {
			v.add(LevelError, tx.RowNum, "Inn amount present but Inn-Valuta missing")
		}
		if tx.Ut != nil && tx.UtValuta == "" {
			v.add(LevelError, tx.RowNum, "Ut amount present but Ut-Valuta missing")
		}
		if tx.Gebyr != nil && tx.GebyrValuta == "" {
			v.add(LevelError, tx.RowNum, "Gebyr amount present but Gebyr-Valuta missing")
		}

		for _, cur := range []struct {
			code, name string
		}{
			{tx.InnValuta, "Inn-Valuta"},
			{tx.UtValuta, "Ut-Valuta"},
			{tx.GebyrValuta, "Gebyr-Valuta"},
		} {
			if cur.code != "" && !models.IsValidCurrencyCode(cur.code) {
				v.add(LevelError, tx.RowNum, "invalid %s %q (must be 1-16 chars: A-Z, a-z, 0-9, hyphen)", cur.name, cur.code)
			}
		}

		for _, amt := range []struct {
			value *decimal.Decimal
			name  string
		}{
			{tx.Inn, "Inn"},
			{tx.Ut, "Ut"},
			{tx.Gebyr, "Gebyr"},
		} {
			if amt.value != nil && !models.IsValidDecimalPrecision(*amt.value) {
				v.add(LevelError, tx.RowNum, "%s exceeds precision limits (max %d integer digits + %d decimals): %s",
					amt.name, models.MaxDecimalIntegerDigits, models.MaxDecimalPlaces, amt.value)
			}
		}
	}
}

func (v *validator) validateDates(txs []models.KryptosekkenTransaction, expectedYear int) {
	if expectedYear != 0 {
		wrongYear := 0
		firstRow := 0
		for _, tx := range txs {
			if !tx.Tidspunkt.IsZero() && tx.Tidspunkt.Year() != expectedYear {
				if wrongYear == 0 {
					firstRow = tx.RowNum
				}
				wrongYear++
			}
		}
		if wrongYear > 0 {
			v.add(LevelError, firstRow, "%d transactions are not from expected year %d", wrongYear, expectedYear)
		}
	}

	var min, max int
	for i, tx := range txs {
		if tx.Tidspunkt.IsZero() {
			continue
		}
		if min == 0 || tx.Tidspunkt.Before(txs[min-1].Tidspunkt) {
			min = i + 1
		}
		if max == 0 || tx.Tidspunkt.After(txs[max-1].Tidspunkt) {
			max = i + 1
		}
	}
	if min != 0 {
		span := int(txs[max-1].Tidspunkt.Sub(txs[min-1].Tidspunkt).Hours() / 24)
		v.add(LevelInfo, 0, "transaction date range: %s to %s (%d days)",
			txs[min-1].Tidspunkt.Format("2006-01-02"), txs[max-1].Tidspunkt.Format("2006-01-02"), span)
		if span > 370 {
			v.add(LevelWarning, 0, "transactions span %d days, more than a typical tax year", span)
		}
	}
}

func (v *validator) validateTypeLogic(txs []models.KryptosekkenTransaction) {
	var suspicious int
	for _, tx := range txs {
		switch tx.Type {
		case models.TypeHandel:
			if tx.Inn == nil || tx.Ut == nil {
				v.add(LevelError, tx.RowNum, "Handel transaction missing Inn or Ut | Inn: %s %s | Ut: %s %s",
					decimalOrEmpty(tx.Inn), tx.InnValuta, decimalOrEmpty(tx.Ut), tx.UtValuta)
			}
			if tx.InnValuta != "" && tx.InnValuta == tx.UtValuta {
				v.add(LevelError, tx.RowNum, "Handel with same Inn-Valuta and Ut-Valuta (%s)", tx.InnValuta)
			}
			if tx.Inn != nil && tx.Ut != nil && !tx.Ut.IsZero() {
				ratio := tx.Inn.Div(*tx.Ut).Abs()
				if ratio.GreaterThan(decimal.NewFromInt(1000000)) || ratio.LessThan(decimal.New(1, -6)) {
					suspicious++
				}
			}

		case models.TypeInntekt:
			if tx.Inn == nil {
				v.add(LevelError, tx.RowNum, "Inntekt transaction missing Inn")
			} else if !tx.Inn.IsPositive() {
				v.add(LevelError, tx.RowNum, "Inntekt with non-positive amount: %s", tx.Inn)
			}

		case models.TypeOverforingInn:
			if tx.Inn == nil {
				v.add(LevelError, tx.RowNum, "Overføring-Inn missing Inn")
			}

		case models.TypeOverforingUt:
			if tx.Ut == nil {
				v.add(LevelError, tx.RowNum, "Overføring-Ut missing Ut")
			}
		}
	}
	if suspicious > 0 {
		v.add(LevelWarning, 0, "found %d trades with suspicious in/out ratios", suspicious)
	}
}

func (v *validator) validateReasonableness(txs []models.KryptosekkenTransaction) {
	var zeroRows, dustRows, highFees int
	for _, tx := range txs {
		for _, amt := range []*decimal.Decimal{tx.Inn, tx.Ut, tx.Gebyr} {
			if amt != nil && amt.IsZero() {
				zeroRows++
				break
			}
		}
		for _, amt := range []*decimal.Decimal{tx.Inn, tx.Ut, tx.Gebyr} {
			if amt != nil && !amt.IsZero() && amt.Abs().LessThan(models.DustThreshold) {
				dustRows++
				break
			}
		}
		if tx.Type == models.TypeHandel && tx.Gebyr != nil && tx.Ut != nil && !tx.Ut.IsZero() {
			pct := tx.Gebyr.Div(*tx.Ut).Mul(decimal.NewFromInt(100))
			if pct.GreaterThan(models.HighFeePercentage) {
				highFees++
			}
		}
	}
	if zeroRows > 0 {
		v.add(LevelWarning, 0, "found %d transactions with zero amounts", zeroRows)
	}
	if dustRows > 0 {
		v.add(LevelInfo, 0, "found %d transactions with very small amounts (< %s)", dustRows, models.DustThreshold)
	}
	if highFees > 0 {
		v.add(LevelWarning, 0, "found %d trades with fees above %s%% of Ut", highFees, models.HighFeePercentage)
	}
}

func decimalOrEmpty(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.String()
}
