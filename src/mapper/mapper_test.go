package mapper

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Laende/cakedefi-kryptosekken-converter/src/models"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestTypeStaticTable(t *testing.T) {
	tests := []struct {
		operation string
		want      models.TransactionType
	}{
		{"Staking reward", models.TypeInntekt},
		{"Freezer staking bonus", models.TypeInntekt},
		{"5 years freezer reward", models.TypeInntekt},
		{"Earn reward", models.TypeInntekt},
		{"Referral reward", models.TypeInntekt},
		{"Deposit", models.TypeErverv},
		{"Withdrawal", models.TypeOverforingUt},
		{"Withdrawal fee", models.TypeForvaltningskost},
		{"Paid swap fee", models.TypeForvaltningskost},
		{"Address creation fee", models.TypeForvaltningskost},
		{"Withdrew for swap", models.TypeOverforingUt},
		{"Exit staking wallet", models.TypeOverforingInn},
		{"Entered YieldVault", models.TypeOverforingUt},
		{"Exited YieldVault", models.TypeOverforingInn},
		{"Added liquidity", models.TypeHandel},
		{"Removed liquidity", models.TypeHandel},
		{"Converted ETH Staking Shares to csETH", models.TypeInntekt},
		{"Buy token", models.TypeInntekt},
	}
	for _, tt := range tests {
		got, err := Type(tt.operation, nil)
		if err != nil {
			t.Errorf("Type(%q) returned error: %v", tt.operation, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Type(%q) = %s, want %s", tt.operation, got, tt.want)
		}
	}
}

func TestTypePrefixFamilies(t *testing.T) {
	tests := []struct {
		operation string
		want      models.TransactionType
	}{
		{"Add liquidity BTC-DFI", models.TypeHandel},
		{"Add liquidity ETH-DFI", models.TypeHandel},
		{"Remove liquidity BTC-DFI", models.TypeHandel},
		{"Liquidity mining reward BTC-DFI", models.TypeInntekt},
		{"Liquidity mining reward ETH-DFI", models.TypeInntekt},
	}
	for _, tt := range tests {
		got, err := Type(tt.operation, nil)
		if err != nil {
			t.Errorf("Type(%q) returned error: %v", tt.operation, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Type(%q) = %s, want %s", tt.operation, got, tt.want)
		}
	}
}

func TestTypeEntryStakingWalletSignDependent(t *testing.T) {
	neg := d(-1.5)
	got, err := Type(OpEntryStakingWallet, &neg)
	if err != nil {
		t.Fatalf("negative amount: %v", err)
	}
	if got != models.TypeOverforingUt {
		t.Errorf("negative Entry staking wallet = %s, want %s", got, models.TypeOverforingUt)
	}

	pos := d(0.25)
	got, err = Type(OpEntryStakingWallet, &pos)
	if err != nil {
		t.Fatalf("positive amount: %v", err)
	}
	if got != models.TypeInntekt {
		t.Errorf("positive Entry staking wallet = %s, want %s", got, models.TypeInntekt)
	}

	// No amount available: defaults to income.
	got, err = Type(OpEntryStakingWallet, nil)
	if err != nil {
		t.Fatalf("nil amount: %v", err)
	}
	if got != models.TypeInntekt {
		t.Errorf("amount-less Entry staking wallet = %s, want %s", got, models.TypeInntekt)
	}
}

func TestTypeUnknownOperation(t *testing.T) {
	if _, err := Type("Quantum staking arbitrage", nil); err == nil {
		t.Error("expected error for unknown operation")
	}
}

func TestShouldSkip(t *testing.T) {
	neg, pos := d(-1), d(1)
	if !ShouldSkip(OpEntryStakingWallet, &neg) {
		t.Error("negative Entry staking wallet should be skipped")
	}
	if ShouldSkip(OpEntryStakingWallet, &pos) {
		t.Error("positive Entry staking wallet must not be skipped")
	}
	if ShouldSkip(OpEntryStakingWallet, nil) {
		t.Error("amount-less Entry staking wallet must not be skipped")
	}
	if ShouldSkip("Exit staking wallet", &neg) {
		t.Error("Exit staking wallet must never be skipped")
	}
	if ShouldSkip("Staking reward", &pos) {
		t.Error("Staking reward must not be skipped")
	}
}

func TestRequiresGrouping(t *testing.T) {
	grouped := []string{
		"Withdrew for swap",
		"Paid swap fee",
		"Deposit",
		"Added liquidity",
		"Removed liquidity",
		"Add liquidity BTC-DFI",
		"Remove liquidity ETH-DFI",
		"Converted ETH Staking Shares to csETH",
	}
	for _, op := range grouped {
		if !RequiresGrouping(op) {
			t.Errorf("RequiresGrouping(%q) = false, want true", op)
		}
	}
	standalone := []string{"Staking reward", "Withdrawal", "Liquidity mining reward BTC-DFI"}
	for _, op := range standalone {
		if RequiresGrouping(op) {
			t.Errorf("RequiresGrouping(%q) = true, want false", op)
		}
	}
}

func TestIsIncome(t *testing.T) {
	pos := d(0.1)
	if !IsIncome("Staking reward", &pos) {
		t.Error("Staking reward is income")
	}
	if !IsIncome("Liquidity mining reward BTC-DFI", &pos) {
		t.Error("Liquidity mining reward is income")
	}
	if IsIncome("Withdrawal", &pos) {
		t.Error("Withdrawal is not income")
	}
	if IsIncome("Totally unknown op", &pos) {
		t.Error("unknown operations are not income")
	}
}
