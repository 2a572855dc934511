package grouper

import (
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Laende/cakedefi-kryptosekken-converter/src/models"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func ts(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func tx(date, operation string, amount float64, asset string) models.CakeTransaction {
	return models.CakeTransaction{
		Date:      ts(date),
		Operation: operation,
		Amount:    d(amount),
		CoinAsset: asset,
	}
}

func withRef(t models.CakeTransaction, relatedRef string) models.CakeTransaction {
	t.RelatedReferenceID = relatedRef
	return t
}

func TestGroupCorrelatesSwapLegs(t *testing.T) {
	txs := []models.CakeTransaction{
		withRef(tx("2023-05-01 10:00:00", "Withdrew for swap", -0.191, "ETH"), "swap-1"),
		withRef(tx("2023-05-01 10:00:05", "Paid swap fee", -0.00096, "ETH"), "swap-1"),
		withRef(tx("2023-05-01 10:01:00", "Deposit", 32.79, "DFI"), "swap-1"),
	}
	res := New().Group(txs)
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	if len(res.Groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(res.Groups))
	}
	g := res.Groups[0]
	if g.Kind != KindSwap {
		t.Errorf("Kind = %s, want %s", g.Kind, KindSwap)
	}
	if len(g.Transactions) != 3 {
		t.Errorf("group has %d members, want 3", len(g.Transactions))
	}
	if g.ReferenceID != "swap-1" {
		t.Errorf("ReferenceID = %q, want swap-1", g.ReferenceID)
	}
}

func TestGroupAttachesLiquidityReceipt(t *testing.T) {
	receipt := tx("2023-05-02 12:00:30", "Added liquidity", 5.4, "BTC-DFI")
	receipt.Reference = "liq-1"
	txs := []models.CakeTransaction{
		withRef(tx("2023-05-02 12:00:00", "Add liquidity BTC-DFI", -0.01, "BTC"), "liq-1"),
		withRef(tx("2023-05-02 12:00:00", "Add liquidity BTC-DFI", -120.0, "DFI"), "liq-1"),
		receipt,
	}
	res := New().Group(txs)
	if len(res.Groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(res.Groups))
	}
	g := res.Groups[0]
	if g.Kind != KindAddLiquidity {
		t.Errorf("Kind = %s, want %s", g.Kind, KindAddLiquidity)
	}
	if len(g.Transactions) != 3 {
		t.Errorf("group has %d members, want 3 (receipt attached)", len(g.Transactions))
	}
}

func TestGroupSplitsOnTimeGap(t *testing.T) {
	// Same identifier reused eleven minutes apart must produce two groups.
	txs := []models.CakeTransaction{
		withRef(tx("2023-05-01 10:00:00", "Withdrew for swap", -1.0, "ETH"), "reused"),
		withRef(tx("2023-05-01 10:02:00", "Deposit", 100.0, "DFI"), "reused"),
		withRef(tx("2023-05-01 10:13:00", "Withdrew for swap", -2.0, "ETH"), "reused"),
		withRef(tx("2023-05-01 10:14:00", "Deposit", 200.0, "DFI"), "reused"),
	}
	res := New().Group(txs)
	if len(res.Groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(res.Groups))
	}
	for _, g := range res.Groups {
		if len(g.Transactions) != 2 {
			t.Errorf("group has %d members, want 2", len(g.Transactions))
		}
	}
}

func TestGroupSkipsNegativeStakingEntries(t *testing.T) {
	txs := []models.CakeTransaction{
		tx("2023-05-01 08:00:00", "Entry staking wallet", -3.0, "DFI"),
		tx("2023-05-01 09:00:00", "Entry staking wallet", 0.5, "DFI"),
	}
	res := New().Group(txs)
	if res.SkippedInternal != 1 {
		t.Errorf("SkippedInternal = %d, want 1", res.SkippedInternal)
	}
	if len(res.Groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(res.Groups))
	}
	if !res.Groups[0].Transactions[0].Amount.Equal(d(0.5)) {
		t.Errorf("surviving event has amount %s, want 0.5", res.Groups[0].Transactions[0].Amount)
	}
}

func TestGroupRecordsUnknownOperations(t *testing.T) {
	txs := []models.CakeTransaction{
		tx("2023-05-01 08:00:00", "Mystery operation", 1.0, "DFI"),
		tx("2023-05-01 09:00:00", "Staking reward", 0.5, "DFI"),
	}
	res := New().Group(txs)
	if len(res.Errors) != 1 {
		t.Fatalf("got %d errors, want 1: %v", len(res.Errors), res.Errors)
	}
	if len(res.Groups) != 1 {
		t.Errorf("got %d groups, want 1 (unknown event excluded)", len(res.Groups))
	}
}

func TestGroupMergesSameDayRewards(t *testing.T) {
	txs := []models.CakeTransaction{
		tx("2023-05-01 06:00:00", "Staking reward", 0.1, "DFI"),
		tx("2023-05-01 18:00:00", "Staking reward", 0.2, "DFI"),
		tx("2023-05-02 06:00:00", "Staking reward", 0.3, "DFI"),
	}
	res := New().Group(txs)
	if len(res.Groups) != 2 {
		t.Fatalf("got %d groups, want 2 (one merged day + one singleton)", len(res.Groups))
	}
	if res.Groups[0].Kind != KindRewards || len(res.Groups[0].Transactions) != 2 {
		t.Errorf("first group: kind=%s members=%d, want daily_rewards with 2", res.Groups[0].Kind, len(res.Groups[0].Transactions))
	}
	if res.Groups[1].Kind != KindSingle {
		t.Errorf("lone reward should stay a singleton, got %s", res.Groups[1].Kind)
	}
}

func TestGroupRewardsDoNotAbsorbNonIncome(t *testing.T) {
	// A withdrawal of the same currency on the same day must survive.
	txs := []models.CakeTransaction{
		tx("2023-05-01 06:00:00", "Staking reward", 0.1, "DFI"),
		tx("2023-05-01 12:00:00", "Withdrawal", -5.0, "DFI"),
		tx("2023-05-01 18:00:00", "Staking reward", 0.2, "DFI"),
	}
	res := New().Group(txs)
	if len(res.Groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(res.Groups))
	}
	var sawWithdrawal bool
	for _, g := range res.Groups {
		for _, m := range g.Transactions {
			if m.Operation == "Withdrawal" {
				sawWithdrawal = true
				if g.Kind != KindSingle {
					t.Errorf("withdrawal ended up in a %s group", g.Kind)
				}
			}
		}
	}
	if !sawWithdrawal {
		t.Error("withdrawal event was absorbed into a reward group")
	}
}

func TestGroupMergesETHRewardsWeekly(t *testing.T) {
	// 2023-05-01 is a Monday, 2023-05-04 a Thursday: same calendar week.
	txs := []models.CakeTransaction{
		tx("2023-05-01 06:00:00", "Earn reward", 0.001, "ETH"),
		tx("2023-05-01 18:00:00", "Earn reward", 0.002, "ETH"),
		tx("2023-05-04 06:00:00", "Earn reward", 0.003, "ETH"),
		tx("2023-05-04 18:00:00", "Earn reward", 0.004, "ETH"),
		// Next Monday: separate week.
		tx("2023-05-08 06:00:00", "Earn reward", 0.005, "ETH"),
		tx("2023-05-08 18:00:00", "Earn reward", 0.006, "ETH"),
	}
	res := New().Group(txs)
	if len(res.Groups) != 2 {
		t.Fatalf("got %d groups, want 2 weekly groups", len(res.Groups))
	}
	if len(res.Groups[0].Transactions) != 4 {
		t.Errorf("first week has %d members, want 4", len(res.Groups[0].Transactions))
	}
	if len(res.Groups[1].Transactions) != 2 {
		t.Errorf("second week has %d members, want 2", len(res.Groups[1].Transactions))
	}
}

func TestGroupOrderingIsDeterministic(t *testing.T) {
	txs := []models.CakeTransaction{
		withRef(tx("2023-05-01 10:00:00", "Withdrew for swap", -1.0, "ETH"), "s1"),
		withRef(tx("2023-05-01 10:00:30", "Deposit", 100.0, "DFI"), "s1"),
		tx("2023-05-01 10:00:00", "Staking reward", 0.1, "DFI"),
		tx("2023-05-01 10:00:00", "Withdrawal", -2.0, "BTC"),
	}
	first := New().Group(txs)
	second := New().Group(txs)
	if !reflect.DeepEqual(first.Groups, second.Groups) {
		t.Fatal("grouping is not reproducible across runs")
	}

	// Same timestamp: income sorts before the swap, the plain withdrawal last.
	kinds := make([]GroupKind, 0, len(first.Groups))
	for _, g := range first.Groups {
		kinds = append(kinds, g.Kind)
	}
	want := []GroupKind{KindSingle, KindSwap, KindSingle}
	if !reflect.DeepEqual(kinds, want) {
		t.Errorf("group order = %v, want %v", kinds, want)
	}
	if first.Groups[0].Transactions[0].Operation != "Staking reward" {
		t.Errorf("income should sort first, got %q", first.Groups[0].Transactions[0].Operation)
	}
}

func TestMondayOf(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"2023-05-01 10:00:00", "2023-05-01"}, // Monday maps to itself
		{"2023-05-04 10:00:00", "2023-05-01"}, // Thursday
		{"2023-05-07 23:00:00", "2023-05-01"}, // Sunday closes the week
		{"2023-05-08 00:00:00", "2023-05-08"}, // next Monday
	}
	for _, tt := range tests {
		got := mondayOf(ts(tt.in)).Format("2006-01-02")
		if got != tt.want {
			t.Errorf("mondayOf(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
