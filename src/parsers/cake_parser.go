package parsers

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Laende/cakedefi-kryptosekken-converter/src/models"
)

// Column headers of a CakeDeFi transaction export.
const (
	colDate               = "Date"
	colOperation          = "Operation"
	colAmount             = "Amount"
	colCoinAsset          = "Coin/Asset"
	colFiatValue          = "FIAT value"
	colFiatCurrency       = "FIAT currency"
	colTransactionID      = "Transaction ID"
	colWithdrawalAddress  = "Withdrawal address"
	colReference          = "Reference"
	colRelatedReferenceID = "Related reference ID"
)

// CakeDeFi exports timestamps in ISO 8601, with and without zone offset.
var cakeDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// CakeCSVParser parses CakeDeFi transaction export CSVs.
type CakeCSVParser struct{}

func NewCakeCSVParser() *CakeCSVParser { return &CakeCSVParser{} }

// Parse reads the export. Malformed rows are reported in rowErrors, keyed
// to their CSV row number, and skipped; the batch continues.
func (p *CakeCSVParser) Parse(r io.Reader) ([]models.CakeTransaction, []string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("reading CSV header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{colDate, colOperation, colAmount, colCoinAsset, colFiatValue, colFiatCurrency} {
		if _, ok := col[required]; !ok {
			return nil, nil, fmt.Errorf("input is missing required column %q", required)
		}
	}

	var txs []models.CakeTransaction
	var rowErrors []string
	for rowNum := 2; ; rowNum++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rowErrors = append(rowErrors, fmt.Sprintf("row %d: %v", rowNum, err))
			continue
		}

		tx, err := parseRecord(record, col)
		if err != nil {
			rowErrors = append(rowErrors, fmt.Sprintf("row %d: failed to parse transaction - %v", rowNum, err))
			continue
		}
		tx.OriginalIndex = rowNum
		txs = append(txs, tx)
	}
	return txs, rowErrors, nil
}

func parseRecord(record []string, col map[string]int) (models.CakeTransaction, error) {
	field := func(name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return record[idx]
	}

	date, err := parseCakeDate(field(colDate))
	if err != nil {
		return models.CakeTransaction{}, err
	}
	amount, err := decimal.NewFromString(field(colAmount))
	if err != nil {
		return models.CakeTransaction{}, fmt.Errorf("invalid amount %q", field(colAmount))
	}
	fiatValue, err := decimal.NewFromString(field(colFiatValue))
	if err != nil {
		return models.CakeTransaction{}, fmt.Errorf("invalid FIAT value %q", field(colFiatValue))
	}
	if field(colCoinAsset) == "" {
		return models.CakeTransaction{}, fmt.Errorf("missing coin/asset")
	}

	return models.CakeTransaction{
		Date:               date,
		Operation:          field(colOperation),
		Amount:             amount,
		CoinAsset:          field(colCoinAsset),
		FiatValue:          fiatValue,
		FiatCurrency:       field(colFiatCurrency),
		TransactionID:      field(colTransactionID),
		WithdrawalAddress:  field(colWithdrawalAddress),
		Reference:          field(colReference),
		RelatedReferenceID: field(colRelatedReferenceID),
	}, nil
}

func parseCakeDate(value string) (time.Time, error) {
	for _, layout := range cakeDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", value)
}
