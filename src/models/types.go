package models

// TransactionType is one of the transaction types accepted by the
// kryptosekken generic CSV import.
type TransactionType string

const (
	TypeHandel           TransactionType = "Handel"
	TypeErverv           TransactionType = "Erverv"
	TypeMining           TransactionType = "Mining"
	TypeInntekt          TransactionType = "Inntekt"
	TypeTap              TransactionType = "Tap"
	TypeForbruk          TransactionType = "Forbruk"
	TypeRenteinntekt     TransactionType = "Renteinntekt"
	TypeOverforingInn    TransactionType = "Overføring-Inn"
	TypeOverforingUt     TransactionType = "Overføring-Ut"
	TypeGaveInn          TransactionType = "Gave-Inn"
	TypeGaveUt           TransactionType = "Gave-Ut"
	TypeTapUtenFradrag   TransactionType = "Tap-uten-fradrag"
	TypeForvaltningskost TransactionType = "Forvaltningskostnad"
)

// ValidTransactionTypes is the closed vocabulary for the Type column.
var ValidTransactionTypes = map[TransactionType]bool{
	TypeHandel:           true,
	TypeErverv:           true,
	TypeMining:           true,
	TypeInntekt:          true,
	TypeTap:              true,
	TypeForbruk:          true,
	TypeRenteinntekt:     true,
	TypeOverforingInn:    true,
	TypeOverforingUt:     true,
	TypeGaveInn:          true,
	TypeGaveUt:           true,
	TypeTapUtenFradrag:   true,
	TypeForvaltningskost: true,
}
