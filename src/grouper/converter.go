package grouper

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Laende/cakedefi-kryptosekken-converter/src/logger"
	"github.com/Laende/cakedefi-kryptosekken-converter/src/mapper"
	"github.com/Laende/cakedefi-kryptosekken-converter/src/models"
	"github.com/Laende/cakedefi-kryptosekken-converter/src/rates"
)

// swapNetTolerance cancels per-currency in/out flows that net to zero
// within rounding noise.
var swapNetTolerance = decimal.New(1, -9)

var notePattern = regexp.MustCompile(`[^a-zA-Z0-9\s]`)

// Converter turns transaction groups into kryptosekken transactions. NOK
// annotations go through the rate lookup at the relevant event's own
// timestamp for per-member values, or the group timestamp for group-level
// values.
type Converter struct {
	rates  *rates.Converter
	market string
}

func NewConverter(r *rates.Converter, market string) *Converter {
	return &Converter{rates: r, market: market}
}

// Convert dispatches on group kind. The returned warnings name groups that
// could not be resolved and fell back to per-event conversion; err is only
// set when an event cannot be classified at all.
func (c *Converter) Convert(g Group) (txs []models.KryptosekkenTransaction, warnings []string, err error) {
	switch g.Kind {
	case KindSwap:
		return c.convertSwap(g)
	case KindAddLiquidity:
		return c.convertAddLiquidity(g)
	case KindRemoveLiquidity:
		return c.convertRemoveLiquidity(g)
	case KindRewards:
		txs, err = c.convertRewards(g)
		return txs, nil, err
	default:
		txs, err = c.convertSingle(g.Transactions[0])
		return txs, nil, err
	}
}

// netFlows accumulates per-currency totals preserving first-seen currency
// order, so "first net-out currency" is deterministic.
type netFlows struct {
	amounts map[string]decimal.Decimal
	order   []string
}

func newNetFlows() *netFlows {
	return &netFlows{amounts: make(map[string]decimal.Decimal)}
}

func (f *netFlows) add(currency string, amount decimal.Decimal) {
	if _, ok := f.amounts[currency]; !ok {
		f.order = append(f.order, currency)
	}
	f.amounts[currency] = f.amounts[currency].Add(amount)
}

func (f *netFlows) remove(currency string) {
	if _, ok := f.amounts[currency]; !ok {
		return
	}
	delete(f.amounts, currency)
	for i, cur := range f.order {
		if cur == currency {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}

func (f *netFlows) first() (string, decimal.Decimal, bool) {
	if len(f.order) == 0 {
		return "", decimal.Decimal{}, false
	}
	cur := f.order[0]
	return cur, f.amounts[cur], true
}

func (f *netFlows) len() int { return len(f.order) }

// convertSwap nets all per-currency inflows against matching outflows and
// fees, then emits either a trade or, for pure conversions, an income
// receipt.
func (c *Converter) convertSwap(g Group) ([]models.KryptosekkenTransaction, []string, error) {
	incoming, outgoing, fees := newNetFlows(), newNetFlows(), newNetFlows()
	conversionOp := ""

	for _, tx := range g.Transactions {
		switch {
		case tx.Operation == "Paid swap fee":
			fees.add(tx.CoinAsset, tx.Amount.Abs())
		case tx.Amount.IsNegative():
			outgoing.add(tx.CoinAsset, tx.Amount.Abs())
		case tx.Amount.IsPositive():
			incoming.add(tx.CoinAsset, tx.Amount)
		}
		if strings.Contains(tx.Operation, "Converted") {
			conversionOp = tx.Operation
		}
	}

	// Cancel intermediate assets that appear on both sides.
	for _, currency := range append([]string(nil), incoming.order...) {
		_, inOut := outgoing.amounts[currency]
		_, inFee := fees.amounts[currency]
		if !inOut && !inFee {
			continue
		}
		totalOut := outgoing.amounts[currency].Add(fees.amounts[currency])
		net := incoming.amounts[currency].Sub(totalOut)
		if net.Abs().LessThan(swapNetTolerance) {
			incoming.remove(currency)
			outgoing.remove(currency)
			fees.remove(currency)
		}
	}

	// Standard swap: one net-in currency, at least one net-out.
	if incoming.len() == 1 && outgoing.len() >= 1 {
		innValuta, innAmount, _ := incoming.first()
		utValuta, utAmount, _ := outgoing.first()
		tx := models.KryptosekkenTransaction{
			Tidspunkt: g.Timestamp(),
			Type:      models.TypeHandel,
			Inn:       models.Dec(innAmount),
			InnValuta: innValuta,
			Ut:        models.Dec(utAmount),
			UtValuta:  utValuta,
			Marked:    c.market,
			Notat:     fmt.Sprintf("Swap from %d txs", len(g.Transactions)),
		}
		if feeValuta, feeAmount, ok := fees.first(); ok {
			tx.Gebyr = models.Dec(feeAmount)
			tx.GebyrValuta = feeValuta
		}
		return []models.KryptosekkenTransaction{tx}, nil, nil
	}

	// Internal conversion: one net-in currency, nothing disposed. Treated as
	// a non-disposal receipt.
	if incoming.len() == 1 && outgoing.len() == 0 && conversionOp != "" {
		innValuta, innAmount, _ := incoming.first()

		totalFiat := decimal.Zero
		for _, tx := range g.Transactions {
			if tx.Amount.IsPositive() {
				totalFiat = totalFiat.Add(tx.FiatValue)
			}
		}
		nokValue := c.rates.ConvertUSDToNOK(totalFiat.Abs(), g.Timestamp())

		simpleOp := strings.ReplaceAll(strings.ReplaceAll(conversionOp, "Converted ", ""), " to ", "→")
		return []models.KryptosekkenTransaction{{
			Tidspunkt: g.Timestamp(),
			Type:      models.TypeInntekt,
			Inn:       models.Dec(innAmount),
			InnValuta: innValuta,
			Marked:    c.market,
			Notat:     fmt.Sprintf("%s (NOK value: %s)", simpleOp, nokValue.StringFixed(2)),
		}}, nil, nil
	}

	return c.fallback(g)
}

// convertAddLiquidity pairs the LP-token receipt with its contribution legs.
func (c *Converter) convertAddLiquidity(g Group) ([]models.KryptosekkenTransaction, []string, error) {
	var receipt *models.CakeTransaction
	var provisions []models.CakeTransaction
	for i, tx := range g.Transactions {
		switch {
		case tx.Operation == mapper.OpAddedLiquidity && receipt == nil:
			receipt = &g.Transactions[i]
		case strings.HasPrefix(tx.Operation, mapper.PrefixAddLiquidity):
			provisions = append(provisions, tx)
		}
	}

	switch {
	case receipt != nil && len(provisions) >= 1:
		nokValue := c.rates.ConvertUSDToNOK(receipt.FiatValue.Abs(), receipt.Date)
		tx := models.KryptosekkenTransaction{
			Tidspunkt: receipt.Date,
			Type:      models.TypeHandel,
			Inn:       models.Dec(receipt.Amount.Abs()),
			InnValuta: receipt.CoinAsset,
			Ut:        models.Dec(provisions[0].Amount.Abs()),
			UtValuta:  provisions[0].CoinAsset,
			Marked:    c.market,
			Notat:     fmt.Sprintf("Add liquidity (LP token NOK value: %s)", nokValue.StringFixed(2)),
		}
		if len(provisions) > 1 {
			tx.Gebyr = models.Dec(provisions[1].Amount.Abs())
			tx.GebyrValuta = provisions[1].CoinAsset
		}
		return []models.KryptosekkenTransaction{tx}, nil, nil

	case receipt == nil && len(provisions) > 0:
		// Contributions without their receipt: dropping them avoids double
		// counting when the receipt is processed separately.
		logger.L.Debug("Dropping incomplete liquidity contributions", "reference", g.ReferenceID, "count", len(provisions))
		return nil, nil, nil

	case receipt != nil:
		nokValue := c.rates.ConvertUSDToNOK(receipt.FiatValue.Abs(), receipt.Date)
		return []models.KryptosekkenTransaction{{
			Tidspunkt: receipt.Date,
			Type:      models.TypeOverforingInn,
			Inn:       models.Dec(receipt.Amount.Abs()),
			InnValuta: receipt.CoinAsset,
			Marked:    c.market,
			Notat:     fmt.Sprintf("Received LP token (incomplete - assets provided separately) (NOK value: %s)", nokValue.StringFixed(2)),
		}}, nil, nil
	}

	return c.fallback(g)
}

// convertRemoveLiquidity pairs the LP-token disposal with the received legs.
func (c *Converter) convertRemoveLiquidity(g Group) ([]models.KryptosekkenTransaction, []string, error) {
	var disposal *models.CakeTransaction
	var returns []models.CakeTransaction
	for i, tx := range g.Transactions {
		switch {
		case tx.Operation == mapper.OpRemovedLiquidity && disposal == nil:
			disposal = &g.Transactions[i]
		case strings.HasPrefix(tx.Operation, mapper.PrefixRemoveLiquidity):
			returns = append(returns, tx)
		}
	}

	if disposal != nil && len(returns) >= 1 {
		nokValue := c.rates.ConvertUSDToNOK(disposal.FiatValue.Abs(), g.Timestamp())
		tx := models.KryptosekkenTransaction{
			Tidspunkt: g.Timestamp(),
			Type:      models.TypeHandel,
			Inn:       models.Dec(returns[0].Amount.Abs()),
			InnValuta: returns[0].CoinAsset,
			Ut:        models.Dec(disposal.Amount.Abs()),
			UtValuta:  disposal.CoinAsset,
			Marked:    c.market,
			Notat:     fmt.Sprintf("Remove liquidity (LP token NOK value: %s)", nokValue.StringFixed(2)),
		}
		if len(returns) > 1 {
			tx.Gebyr = models.Dec(returns[1].Amount.Abs())
			tx.GebyrValuta = returns[1].CoinAsset
		}
		return []models.KryptosekkenTransaction{tx}, nil, nil
	}
	return c.fallback(g)
}

// convertRewards emits one income transaction whose amount is the exact sum
// of member amounts. The NOK annotation sums each member's own converted
// value: rounding happens per member, then the rounded values are summed.
func (c *Converter) convertRewards(g Group) ([]models.KryptosekkenTransaction, error) {
	total := decimal.Zero
	totalNOK := decimal.Zero
	for _, tx := range g.Transactions {
		total = total.Add(tx.Amount)
		totalNOK = totalNOK.Add(c.rates.ConvertUSDToNOK(tx.FiatValue.Abs(), tx.Date))
	}

	template := g.Transactions[0]
	timeframe := "Daily"
	if template.CoinAsset == weeklyRewardCurrency {
		timeframe = "Weekly"
	}
	return []models.KryptosekkenTransaction{{
		Tidspunkt: g.Timestamp(),
		Type:      models.TypeInntekt,
		Inn:       models.Dec(total.Abs()),
		InnValuta: template.CoinAsset,
		Marked:    c.market,
		Notat: fmt.Sprintf("%s %s rewards %d txs (NOK value: %s)",
			timeframe, template.CoinAsset, len(g.Transactions), totalNOK.StringFixed(2)),
	}}, nil
}

// convertSingle converts a lone event by its classified type.
func (c *Converter) convertSingle(tx models.CakeTransaction) ([]models.KryptosekkenTransaction, error) {
	txType, err := mapper.Type(tx.Operation, models.Dec(tx.Amount))
	if err != nil {
		return nil, err
	}

	nokValue := c.rates.ConvertUSDToNOK(tx.FiatValue.Abs(), tx.Date)
	note := simplifyOperation(tx.Operation)

	switch txType {
	case models.TypeInntekt:
		if !nokValue.IsZero() {
			note = fmt.Sprintf("%s (NOK value: %s)", note, nokValue.StringFixed(2))
		}
		return []models.KryptosekkenTransaction{{
			Tidspunkt: tx.Date,
			Type:      models.TypeInntekt,
			Inn:       models.Dec(tx.Amount.Abs()),
			InnValuta: tx.CoinAsset,
			Marked:    c.market,
			Notat:     note,
		}}, nil

	case models.TypeOverforingInn:
		return []models.KryptosekkenTransaction{{
			Tidspunkt: tx.Date,
			Type:      models.TypeOverforingInn,
			Inn:       models.Dec(tx.Amount.Abs()),
			InnValuta: tx.CoinAsset,
			Marked:    c.market,
			Notat:     note,
		}}, nil

	case models.TypeOverforingUt:
		return []models.KryptosekkenTransaction{{
			Tidspunkt: tx.Date,
			Type:      models.TypeOverforingUt,
			Ut:        models.Dec(tx.Amount.Abs()),
			UtValuta:  tx.CoinAsset,
			Marked:    c.market,
			Notat:     note,
		}}, nil

	case models.TypeForvaltningskost:
		return []models.KryptosekkenTransaction{{
			Tidspunkt: tx.Date,
			Type:      models.TypeForvaltningskost,
			Ut:        models.Dec(tx.Amount.Abs()),
			UtValuta:  tx.CoinAsset,
			Marked:    c.market,
			Notat:     note,
		}}, nil
	}

	// DeFi operations that should have been grouped but ended up alone:
	// treat the amount sign as transfer direction.
	if isIncompleteDeFiOp(tx.Operation) {
		out := models.KryptosekkenTransaction{
			Tidspunkt: tx.Date,
			Marked:    c.market,
			Notat:     note + " (incomplete DeFi op)",
		}
		if tx.Amount.IsNegative() {
			out.Type = models.TypeOverforingUt
			out.Ut = models.Dec(tx.Amount.Abs())
			out.UtValuta = tx.CoinAsset
		} else {
			out.Type = models.TypeOverforingInn
			out.Inn = models.Dec(tx.Amount.Abs())
			out.InnValuta = tx.CoinAsset
		}
		return []models.KryptosekkenTransaction{out}, nil
	}

	// Remaining types carry the single signed amount on the matching side.
	out := models.KryptosekkenTransaction{
		Tidspunkt: tx.Date,
		Type:      txType,
		Marked:    c.market,
		Notat:     note,
	}
	if tx.Amount.IsNegative() {
		out.Ut = models.Dec(tx.Amount.Abs())
		out.UtValuta = tx.CoinAsset
	} else {
		out.Inn = models.Dec(tx.Amount.Abs())
		out.InnValuta = tx.CoinAsset
	}
	return []models.KryptosekkenTransaction{out}, nil
}

// fallback decomposes a group back into its members and converts each via
// the singleton rule. Nothing is lost or double counted; the caller gets a
// warning naming the group.
func (c *Converter) fallback(g Group) ([]models.KryptosekkenTransaction, []string, error) {
	warning := fmt.Sprintf("unresolvable %s group at %s (ref %s): converted %d events individually",
		g.Kind, g.Timestamp().Format("2006-01-02 15:04:05"), g.ReferenceID, len(g.Transactions))
	logger.L.Warn("Unresolvable group, converting members individually",
		"kind", string(g.Kind), "reference", g.ReferenceID, "timestamp", g.Timestamp())

	var out []models.KryptosekkenTransaction
	for _, tx := range g.Transactions {
		converted, err := c.convertSingle(tx)
		if err != nil {
			return nil, []string{warning}, err
		}
		out = append(out, converted...)
	}
	return out, []string{warning}, nil
}

func isIncompleteDeFiOp(operation string) bool {
	for _, prefix := range []string{"Add liquidity", "Remove liquidity", "Entered Earn", "Exited Earn"} {
		if strings.HasPrefix(operation, prefix) {
			return true
		}
	}
	return false
}

// simplifyOperation reduces an operation label to at most 30 alphanumeric
// and space characters for the note field.
func simplifyOperation(op string) string {
	simplified := notePattern.ReplaceAllString(op, "")
	if len(simplified) > 30 {
		simplified = simplified[:30]
	}
	return strings.TrimSpace(simplified)
}
