package parsers

import (
	"io"

	"github.com/Laende/cakedefi-kryptosekken-converter/src/models"
)

// Parser reads raw exchange export data into CakeTransactions. rowErrors
// carries per-row parse failures keyed to their position; they never abort
// the batch. err is reserved for failures that make the whole input
// unusable (unreadable stream, wrong header).
type Parser interface {
	Parse(r io.Reader) (txs []models.CakeTransaction, rowErrors []string, err error)
}
