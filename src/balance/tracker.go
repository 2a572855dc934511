// Package balance tracks per-currency balances across tax years. Spending
// in a given year must not exceed the holdings carried over from previous
// years plus the year's own inflows; violations are recorded, never fatal.
package balance

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Laende/cakedefi-kryptosekken-converter/src/logger"
	"github.com/Laende/cakedefi-kryptosekken-converter/src/models"
)

// maxReportedProblems caps how many deficits a year report lists.
const maxReportedProblems = 5

// Problem records one attempt to spend more of a currency than was
// available at that point of the replay.
type Problem struct {
	Row         int
	Currency    string
	Attempted   decimal.Decimal
	Available   decimal.Decimal
	Deficit     decimal.Decimal
	Transaction string
}

// YearReport summarizes the replay of one tax year.
type YearReport struct {
	Year             int
	Valid            bool
	Errors           []string
	Warnings         []string
	Info             []string
	StartingBalances map[string]decimal.Decimal
	EndingBalances   map[string]decimal.Decimal
	Problems         []Problem
}

// Store persists the balance history between runs.
type Store interface {
	Load() (map[int]map[string]decimal.Decimal, error)
	Save(history map[int]map[string]decimal.Decimal) error
}

// Tracker replays yearly transaction sets against a running balance seeded
// from the prior year and keeps the resulting year-end snapshots.
type Tracker struct {
	store   Store
	history map[int]map[string]decimal.Decimal
}

// NewTracker loads any existing history from the store. Missing or corrupt
// state means starting fresh; it is never fatal.
func NewTracker(store Store) *Tracker {
	history, err := store.Load()
	if err != nil {
		logger.L.Warn("Could not load balance state, starting fresh", "error", err)
		history = make(map[int]map[string]decimal.Decimal)
	}
	if history == nil {
		history = make(map[int]map[string]decimal.Decimal)
	}
	if len(history) > 0 {
		years := make([]int, 0, len(history))
		for y := range history {
			years = append(years, y)
		}
		sort.Ints(years)
		logger.L.Info("Loaded balance history", "years", years)
	}
	return &Tracker{store: store, history: history}
}

// StartingBalances returns a copy of the previous year's ending balances,
// or an empty map when there is no record.
func (t *Tracker) StartingBalances(year int) map[string]decimal.Decimal {
	prev, ok := t.history[year-1]
	if !ok {
		logger.L.Info("No balance data for previous year, starting from zero", "year", year)
		return map[string]decimal.Decimal{}
	}
	out := make(map[string]decimal.Decimal, len(prev))
	for currency, amount := range prev {
		out[currency] = amount
	}
	return out
}

// ProcessYear replays one year's transactions in file order and records the
// resulting year-end balances as the seed for the next year. Within a
// transaction, outflows (Ut, then Gebyr) apply before the inflow so a swap
// cannot transiently show a false deficit. Debits below the available
// balance are recorded as problems and still applied.
func (t *Tracker) ProcessYear(year int, txs []models.KryptosekkenTransaction) YearReport {
	starting := t.StartingBalances(year)
	running := make(map[string]decimal.Decimal, len(starting))
	for currency, amount := range starting {
		running[currency] = amount
	}

	var problems []Problem
	for _, tx := range txs {
		for _, delta := range transactionDeltas(tx) {
			if !delta.outflow {
				running[delta.currency] = running[delta.currency].Add(delta.amount)
				continue
			}
			available := running[delta.currency]
			if available.LessThan(delta.amount) {
				problems = append(problems, Problem{
					Row:         tx.RowNum,
					Currency:    delta.currency,
					Attempted:   delta.amount,
					Available:   available,
					Deficit:     delta.amount.Sub(available),
					Transaction: fmt.Sprintf("Row %d: %s (%s)", tx.RowNum, tx.Type, delta.kind),
				})
			}
			running[delta.currency] = available.Sub(delta.amount)
		}
	}

	final := make(map[string]decimal.Decimal)
	for currency, amount := range running {
		if !isNegligible(amount) {
			final[currency] = amount
		}
	}
	t.history[year] = final

	return buildYearReport(year, len(txs), starting, final, problems)
}

type delta struct {
	currency string
	amount   decimal.Decimal
	outflow  bool
	kind     string
}

// transactionDeltas yields the balance changes of one transaction, outflows
// first.
func transactionDeltas(tx models.KryptosekkenTransaction) []delta {
	var out []delta
	if tx.Ut != nil && !tx.Ut.IsZero() && tx.UtValuta != "" {
		out = append(out, delta{tx.UtValuta, *tx.Ut, true, "outflow"})
	}
	if tx.Gebyr != nil && !tx.Gebyr.IsZero() && tx.GebyrValuta != "" {
		out = append(out, delta{tx.GebyrValuta, *tx.Gebyr, true, "fee"})
	}
	if tx.Inn != nil && !tx.Inn.IsZero() && tx.InnValuta != "" {
		out = append(out, delta{tx.InnValuta, *tx.Inn, false, "inflow"})
	}
	return out
}

func buildYearReport(year, txCount int, starting, ending map[string]decimal.Decimal, problems []Problem) YearReport {
	report := YearReport{
		Year:             year,
		StartingBalances: starting,
		EndingBalances:   ending,
		Problems:         problems,
	}

	// Multi-year LP positions acquired before tracking began show up as
	// deficits until reconciled; those are warnings, not errors.
	var regular, lpTokens []Problem
	for _, p := range problems {
		if IsLPTokenCurrency(p.Currency) {
			lpTokens = append(lpTokens, p)
		} else {
			regular = append(regular, p)
		}
	}

	if len(regular) > 0 {
		report.Errors = append(report.Errors,
			fmt.Sprintf("found %d transactions with insufficient funds:", len(regular)))
		sorted := append([]Problem(nil), regular...)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Deficit.GreaterThan(sorted[j].Deficit) })
		for i, p := range sorted {
			if i >= maxReportedProblems {
				report.Errors = append(report.Errors, fmt.Sprintf("  ... and %d more.", len(sorted)-maxReportedProblems))
				break
			}
			report.Errors = append(report.Errors,
				fmt.Sprintf("  %s: tried to spend %s %s, but only %s was available.",
					p.Transaction, p.Attempted.StringFixed(8), p.Currency, p.Available.StringFixed(8)))
		}
	}
	for _, p := range lpTokens {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("LP token %s deficit of %s (likely acquired before tracking began)",
				p.Currency, p.Deficit.StringFixed(8)))
	}
	if len(regular) == 0 {
		report.Info = append(report.Info,
			fmt.Sprintf("all %d transactions respect multi-year balance constraints", txCount))
	}

	report.Valid = len(regular) == 0
	return report
}

// IsLPTokenCurrency reports whether the currency code looks like a
// liquidity-pool pair code (contains a separator and is not a fiat code).
func IsLPTokenCurrency(currency string) bool {
	if !strings.Contains(currency, "-") {
		return false
	}
	switch currency {
	case "NOK", "USD", "EUR":
		return false
	}
	return true
}

// Save persists the balance history through the store.
func (t *Tracker) Save() error {
	if err := t.store.Save(t.history); err != nil {
		logger.L.Error("Could not save balance state", "error", err)
		return err
	}
	logger.L.Info("Saved balance state", "years", len(t.history))
	return nil
}

// History exposes the tracked year-end balances.
func (t *Tracker) History() map[int]map[string]decimal.Decimal {
	return t.history
}

// Report formats a multi-year overview of every tracked currency.
func (t *Tracker) Report() string {
	if len(t.history) == 0 {
		return "No balance history available."
	}

	years := make([]int, 0, len(t.history))
	for y := range t.history {
		years = append(years, y)
	}
	sort.Ints(years)

	currencySet := make(map[string]bool)
	for _, balances := range t.history {
		for currency := range balances {
			currencySet[currency] = true
		}
	}
	currencies := make([]string, 0, len(currencySet))
	for currency := range currencySet {
		currencies = append(currencies, currency)
	}
	sort.Strings(currencies)

	var b strings.Builder
	fmt.Fprintf(&b, "MULTI-YEAR BALANCE TRACKING REPORT\n")
	fmt.Fprintf(&b, "Covering %d years: %d-%d\n", len(years), years[0], years[len(years)-1])
	fmt.Fprintf(&b, "Total currencies tracked: %d\n", len(currencies))
	for _, currency := range currencies {
		fmt.Fprintf(&b, "\n--- %s ---\n", currency)
		for _, year := range years {
			balance, ok := t.history[year][currency]
			if ok && !isNegligible(balance) {
				fmt.Fprintf(&b, "  %d Year-End: %s\n", year, balance.StringFixed(8))
			}
		}
	}
	return b.String()
}

func isNegligible(amount decimal.Decimal) bool {
	return amount.Abs().LessThan(models.NegligibleAmount)
}
