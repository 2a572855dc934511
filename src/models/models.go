package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CakeTransaction represents a single line from a CakeDeFi CSV export.
// Reference is this event's own identity; RelatedReferenceID points at the
// reference shared by the other events of the same economic action. The two
// are distinct roles and are never merged into one field.
type CakeTransaction struct {
	Date               time.Time       `json:"date"`
	Operation          string          `json:"operation"`
	Amount             decimal.Decimal `json:"amount"` // signed
	CoinAsset          string          `json:"coin_asset"`
	FiatValue          decimal.Decimal `json:"fiat_value"`
	FiatCurrency       string          `json:"fiat_currency"`
	TransactionID      string          `json:"transaction_id,omitempty"`
	WithdrawalAddress  string          `json:"withdrawal_address,omitempty"`
	Reference          string          `json:"reference,omitempty"`
	RelatedReferenceID string          `json:"related_reference_id,omitempty"`
	OriginalIndex      int             `json:"original_index"` // input position, tie-break only
}

// KryptosekkenTransaction is one row of the kryptosekken generic import
// format. At least one of Inn and Ut must be set.
type KryptosekkenTransaction struct {
	Tidspunkt   time.Time
	Type        TransactionType
	Inn         *decimal.Decimal
	InnValuta   string
	Ut          *decimal.Decimal
	UtValuta    string
	Gebyr       *decimal.Decimal
	GebyrValuta string
	Marked      string
	Notat       string
	RowNum      int // CSV row number, set when loaded for validation
}

// CSVRow converts the transaction to a row matching CSVHeaders.
func (tx KryptosekkenTransaction) CSVRow() []string {
	ts := ""
	if !tx.Tidspunkt.IsZero() {
		ts = tx.Tidspunkt.Format("2006-01-02 15:04:05")
	}
	return []string{
		ts,
		string(tx.Type),
		decimalString(tx.Inn),
		tx.InnValuta,
		decimalString(tx.Ut),
		tx.UtValuta,
		decimalString(tx.Gebyr),
		tx.GebyrValuta,
		tx.Marked,
		tx.Notat,
	}
}

func decimalString(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

// Dec is a convenience for taking the address of a decimal when building
// transactions.
func Dec(d decimal.Decimal) *decimal.Decimal {
	return &d
}
