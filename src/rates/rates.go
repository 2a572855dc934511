// Package rates converts USD amounts to NOK using historical exchange rates
// from Norges Bank's EXR.csv data file.
package rates

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/Laende/cakedefi-kryptosekken-converter/src/logger"
)

const (
	// LookupRangeDays bounds the nearest-date search around a missing date.
	LookupRangeDays = 14

	dateKeyFormat = "2006-01-02"
)

// Norges Bank EXR column names.
const (
	colBaseCur    = "BASE_CUR"
	colQuoteCur   = "QUOTE_CUR"
	colTimePeriod = "TIME_PERIOD"
	colObsValue   = "OBS_VALUE"
)

// FallbackUSDNOKRate is used when no observation exists within the lookup
// window.
var FallbackUSDNOKRate = decimal.NewFromInt(10)

// nokPrecision is the number of fractional digits of the target currency.
const nokPrecision = 2

// Converter resolves USD/NOK rates by date. The loaded dataset is read-only;
// resolved per-date lookups are memoized so repeated conversions for the
// same day skip the nearest-date search.
type Converter struct {
	rates    map[string]decimal.Decimal // keyed by YYYY-MM-DD
	resolved *cache.Cache
	minDate  time.Time
	maxDate  time.Time
}

// NewConverter loads USD/NOK observations from a semicolon-separated EXR
// file. Rows for other currency pairs and malformed rows are skipped.
func NewConverter(exrFile string) (*Converter, error) {
	f, err := os.Open(exrFile)
	if err != nil {
		return nil, fmt.Errorf("exchange rate file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = ';'
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading exchange rate file %s: %w", exrFile, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("exchange rate file %s is empty", exrFile)
	}

	header := records[0]
	if len(header) > 0 {
		// Strip a UTF-8 BOM if the exporter added one.
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{colBaseCur, colQuoteCur, colTimePeriod, colObsValue} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("exchange rate file %s missing column %s", exrFile, required)
		}
	}

	loaded := make(map[string]decimal.Decimal)
	for _, row := range records[1:] {
		if len(row) <= col[colObsValue] {
			continue
		}
		if row[col[colBaseCur]] != "USD" || row[col[colQuoteCur]] != "NOK" {
			continue
		}
		dateStr := row[col[colTimePeriod]]
		if _, err := time.Parse(dateKeyFormat, dateStr); err != nil {
			logger.L.Warn("Skipping malformed EXR row", "date", dateStr)
			continue
		}
		// Norwegian exports use a comma decimal separator.
		rateStr := strings.ReplaceAll(row[col[colObsValue]], ",", ".")
		rate, err := decimal.NewFromString(rateStr)
		if err != nil {
			logger.L.Warn("Skipping malformed EXR row", "date", dateStr, "value", row[col[colObsValue]])
			continue
		}
		loaded[dateStr] = rate
	}

	c := newConverter(loaded)
	if len(loaded) > 0 {
		min, max, _ := c.DateRange()
		logger.L.Info("Loaded USD/NOK exchange rates",
			"count", len(loaded),
			"from", min.Format(dateKeyFormat),
			"to", max.Format(dateKeyFormat))
	} else {
		logger.L.Warn("No USD/NOK observations found in exchange rate file", "path", exrFile)
	}
	return c, nil
}

// NewConverterFromRates builds a Converter from an in-memory dataset keyed
// by YYYY-MM-DD date strings.
func NewConverterFromRates(rates map[string]decimal.Decimal) *Converter {
	copied := make(map[string]decimal.Decimal, len(rates))
	for k, v := range rates {
		copied[k] = v
	}
	return newConverter(copied)
}

func newConverter(rates map[string]decimal.Decimal) *Converter {
	c := &Converter{
		rates:    rates,
		resolved: cache.New(cache.NoExpiration, 0),
	}
	for dateStr := range rates {
		d, err := time.Parse(dateKeyFormat, dateStr)
		if err != nil {
			continue
		}
		if c.minDate.IsZero() || d.Before(c.minDate) {
			c.minDate = d
		}
		if c.maxDate.IsZero() || d.After(c.maxDate) {
			c.maxDate = d
		}
	}
	return c
}

// Rate returns the USD/NOK rate for the given timestamp's date. Exact
// matches are preferred, then the nearest prior date, then the nearest
// future date, each within LookupRangeDays. When nothing is found the fixed
// fallback rate is returned.
func (c *Converter) Rate(t time.Time) decimal.Decimal {
	key := t.Format(dateKeyFormat)
	if hit, ok := c.resolved.Get(key); ok {
		return hit.(decimal.Decimal)
	}

	rate, ok := c.findRate(t)
	if !ok {
		logger.L.Warn("No exchange rate near date, using fallback",
			"date", key, "fallback", FallbackUSDNOKRate)
		rate = FallbackUSDNOKRate
	}
	c.resolved.Set(key, rate, cache.NoExpiration)
	return rate
}

func (c *Converter) findRate(t time.Time) (decimal.Decimal, bool) {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

	if rate, ok := c.rates[day.Format(dateKeyFormat)]; ok {
		return rate, true
	}
	for back := 1; back <= LookupRangeDays; back++ {
		if rate, ok := c.rates[day.AddDate(0, 0, -back).Format(dateKeyFormat)]; ok {
			return rate, true
		}
	}
	for fwd := 1; fwd <= LookupRangeDays; fwd++ {
		if rate, ok := c.rates[day.AddDate(0, 0, fwd).Format(dateKeyFormat)]; ok {
			return rate, true
		}
	}
	return decimal.Decimal{}, false
}

// ConvertUSDToNOK converts a USD amount at the rate of the transaction date,
// rounded to the standard NOK precision. Zero input short-circuits without a
// lookup.
func (c *Converter) ConvertUSDToNOK(usdAmount decimal.Decimal, t time.Time) decimal.Decimal {
	if usdAmount.IsZero() {
		return decimal.Zero
	}
	return usdAmount.Mul(c.Rate(t)).Round(nokPrecision)
}

// DateRange returns the first and last observation dates. ok is false when
// the dataset is empty.
func (c *Converter) DateRange() (min, max time.Time, ok bool) {
	if len(c.rates) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return c.minDate, c.maxDate, true
}

// Count returns the number of loaded observations.
func (c *Converter) Count() int {
	return len(c.rates)
}

// Dates returns the sorted observation dates, mainly for diagnostics.
func (c *Converter) Dates() []string {
	out := make([]string, 0, len(c.rates))
	for d := range c.rates {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
