// Package mapper classifies CakeDeFi operation labels into kryptosekken
// transaction types. Classification is a pure function of the operation
// label, the signed amount for the one sign-dependent label, and a fixed
// rule table: exact matches first, then the dynamic prefix families.
package mapper

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Laende/cakedefi-kryptosekken-converter/src/models"
)

const (
	// OpEntryStakingWallet is sign-dependent: negative amounts are internal
	// movements into a staking pool, positive amounts are bonuses/income.
	OpEntryStakingWallet = "Entry staking wallet"

	OpAddedLiquidity   = "Added liquidity"
	OpRemovedLiquidity = "Removed liquidity"

	// Dynamic label families, completed by an arbitrary pair code
	// ("Add liquidity BTC-DFI", "Liquidity mining reward ETH-DFI", ...).
	PrefixAddLiquidity    = "Add liquidity "
	PrefixRemoveLiquidity = "Remove liquidity "
	PrefixLiquidityMining = "Liquidity mining reward "
)

// operationTable maps each statically known operation label to exactly one
// transaction type.
var operationTable = map[string]models.TransactionType{
	// Income and rewards
	"Staking reward":                              models.TypeInntekt,
	"Freezer staking bonus":                       models.TypeInntekt,
	"5 years freezer reward":                      models.TypeInntekt,
	"Freezer liquidity mining bonus":              models.TypeInntekt,
	"Earn reward":                                 models.TypeInntekt,
	"YieldVault reward":                           models.TypeInntekt,
	"Referral reward":                             models.TypeInntekt,
	"Lending reward":                              models.TypeInntekt,
	"Promotion bonus":                             models.TypeInntekt,
	"Rewards from DeFiChain voting":               models.TypeInntekt,
	"Entry staking wallet":                        models.TypeInntekt, // positive amounts; negatives handled in Type
	"Entry staking wallet: Signup bonus":          models.TypeInntekt,
	"Entry staking wallet: Referral signup bonus": models.TypeInntekt,
	"Entry staking wallet: Promotion bonus":       models.TypeInntekt,

	// Deposits are acquisitions: they must affect the balance. Withdrawals
	// leave the platform without disposing of the asset.
	"Deposit":    models.TypeErverv,
	"Withdrawal": models.TypeOverforingUt,

	// Staking and vault exits
	"Exit staking wallet": models.TypeOverforingInn,
	"Exited Earn":         models.TypeHandel,
	"Exited YieldVault":   models.TypeOverforingInn,
	"Adjusted Earn entry": models.TypeOverforingInn,
	"Entered YieldVault":  models.TypeOverforingUt,
	"Entered Earn":        models.TypeHandel,

	// Liquidity result receipts; the per-pair legs match the prefix families.
	OpAddedLiquidity:   models.TypeHandel,
	OpRemovedLiquidity: models.TypeHandel,

	// Fees and costs
	"Address creation fee": models.TypeForvaltningskost,
	"Withdrawal fee":       models.TypeForvaltningskost,
	"Paid swap fee":        models.TypeForvaltningskost,

	// Swap legs
	"Withdrew for swap": models.TypeOverforingUt,

	// Conversions treated as receipts rather than disposals
	"Converted ETH Staking Shares to csETH": models.TypeInntekt,
	"Buy token":                             models.TypeInntekt,
}

// groupedOperations are only meaningful combined with their correlated
// siblings and must never be converted in isolation when a reference links
// them to a group.
var groupedOperations = map[string]bool{
	"Withdrew for swap":                     true,
	"Paid swap fee":                         true,
	"Deposit":                               true, // when part of a swap group
	OpAddedLiquidity:                        true,
	OpRemovedLiquidity:                      true,
	"Converted ETH Staking Shares to csETH": true,
}

// Type returns the kryptosekken transaction type for a CakeDeFi operation.
// amount may be nil for callers that do not have one; the sign-dependent
// "Entry staking wallet" label then defaults to income. That default mirrors
// the upstream data (amount-less entries have only been observed as bonuses)
// and is a policy decision, not a derived rule.
func Type(operation string, amount *decimal.Decimal) (models.TransactionType, error) {
	if operation == OpEntryStakingWallet && amount != nil {
		if amount.IsNegative() {
			// Phantom outflow into a staking pool; callers skip these via
			// ShouldSkip before any transaction is emitted.
			return models.TypeOverforingUt, nil
		}
		return models.TypeInntekt, nil
	}

	if t, ok := operationTable[operation]; ok {
		return t, nil
	}

	if strings.HasPrefix(operation, PrefixAddLiquidity) || strings.HasPrefix(operation, PrefixRemoveLiquidity) {
		return models.TypeHandel, nil
	}
	if strings.HasPrefix(operation, PrefixLiquidityMining) {
		return models.TypeInntekt, nil
	}

	return "", fmt.Errorf("unknown operation: %q", operation)
}

// ShouldSkip reports whether the event is an internal movement that must be
// dropped before grouping. Only negative "Entry staking wallet" qualifies;
// "Exit staking wallet" represents funds returning and is never skipped.
func ShouldSkip(operation string, amount *decimal.Decimal) bool {
	return operation == OpEntryStakingWallet && amount != nil && amount.IsNegative()
}

// RequiresGrouping reports whether the operation is part of a
// multi-transaction economic action (swap legs, liquidity legs and their
// result receipts, grouped conversions).
func RequiresGrouping(operation string) bool {
	if groupedOperations[operation] {
		return true
	}
	return strings.HasPrefix(operation, PrefixAddLiquidity) || strings.HasPrefix(operation, PrefixRemoveLiquidity)
}

// IsIncome reports whether the operation classifies as taxable income.
// Unknown operations are not income.
func IsIncome(operation string, amount *decimal.Decimal) bool {
	t, err := Type(operation, amount)
	return err == nil && t == models.TypeInntekt
}
