// Package grouper correlates raw CakeDeFi events into economic transaction
// groups and converts each group into kryptosekken transactions.
package grouper

import (
	"sort"
	"time"

	"github.com/Laende/cakedefi-kryptosekken-converter/src/logger"
	"github.com/Laende/cakedefi-kryptosekken-converter/src/mapper"
	"github.com/Laende/cakedefi-kryptosekken-converter/src/models"
)

// GroupKind labels the economic action a group represents.
type GroupKind string

const (
	KindSwap            GroupKind = "swap"
	KindAddLiquidity    GroupKind = "add_liquidity"
	KindRemoveLiquidity GroupKind = "remove_liquidity"
	KindRewards         GroupKind = "daily_rewards"
	KindSingle          GroupKind = "single"
)

// maxGroupTimeGap splits reference-correlated events into separate groups
// when consecutive members are further apart than this. Reused identifiers
// across distant actions must not merge.
const maxGroupTimeGap = 10 * time.Minute

// weeklyRewardCurrency is the high-frequency reward currency whose daily
// groups are merged into Monday-anchored weekly groups.
const weeklyRewardCurrency = "ETH"

// Group is an ordered, non-empty set of events sharing one economic action.
type Group struct {
	Transactions []models.CakeTransaction
	Kind         GroupKind
	ReferenceID  string // provenance only
}

// Timestamp returns the earliest member timestamp.
func (g Group) Timestamp() time.Time {
	min := g.Transactions[0].Date
	for _, tx := range g.Transactions[1:] {
		if tx.Date.Before(min) {
			min = tx.Date
		}
	}
	return min
}

// Result carries the groups plus the diagnostics accumulated while grouping.
type Result struct {
	Groups          []Group
	SkippedInternal int      // negative Entry staking wallet events dropped
	Errors          []string // events excluded because classification failed
}

// Grouper builds transaction groups from a full batch of raw events. It
// needs the whole batch up front: both the temporal split and the reward
// aggregation require look-ahead.
type Grouper struct{}

func New() *Grouper { return &Grouper{} }

// Group filters, correlates, splits and aggregates the batch, returning
// groups in a total, reproducible order.
func (g *Grouper) Group(txs []models.CakeTransaction) Result {
	var res Result

	// Phase 1: classify every event, drop skips, exclude unclassifiable
	// events, and partition into correlated vs standalone.
	filtered := make([]models.CakeTransaction, 0, len(txs))
	for i, tx := range txs {
		tx.OriginalIndex = i
		if _, err := mapper.Type(tx.Operation, models.Dec(tx.Amount)); err != nil {
			res.Errors = append(res.Errors, "event "+tx.Date.Format("2006-01-02 15:04:05")+": "+err.Error())
			continue
		}
		if mapper.ShouldSkip(tx.Operation, models.Dec(tx.Amount)) {
			res.SkippedInternal++
			continue
		}
		filtered = append(filtered, tx)
	}
	if res.SkippedInternal > 0 {
		logger.L.Info("Filtered internal staking movements (not taxable)", "count", res.SkippedInternal)
	}

	// Phase 2: correlate by the group identifier another event's reference
	// may point back to. Key order is tracked so grouping stays a pure
	// function of the input order.
	buckets := make(map[string][]models.CakeTransaction)
	var bucketOrder []string
	var singles []models.CakeTransaction
	for _, tx := range filtered {
		if tx.RelatedReferenceID != "" && mapper.RequiresGrouping(tx.Operation) {
			if _, ok := buckets[tx.RelatedReferenceID]; !ok {
				bucketOrder = append(bucketOrder, tx.RelatedReferenceID)
			}
			buckets[tx.RelatedReferenceID] = append(buckets[tx.RelatedReferenceID], tx)
		} else {
			singles = append(singles, tx)
		}
	}

	// Attach liquidity result receipts to the group that produced them:
	// their own reference matches the group identifier.
	remaining := singles[:0]
	for _, tx := range singles {
		if tx.Reference != "" && (tx.Operation == mapper.OpAddedLiquidity || tx.Operation == mapper.OpRemovedLiquidity) {
			if _, ok := buckets[tx.Reference]; ok {
				buckets[tx.Reference] = append(buckets[tx.Reference], tx)
				continue
			}
		}
		remaining = append(remaining, tx)
	}
	singles = remaining

	// Phase 3: sort each bucket by time and split on large gaps.
	var groups []Group
	for _, key := range bucketOrder {
		members := buckets[key]
		sort.SliceStable(members, func(i, j int) bool { return members[i].Date.Before(members[j].Date) })

		sub := []models.CakeTransaction{members[0]}
		for _, tx := range members[1:] {
			if tx.Date.Sub(sub[len(sub)-1].Date) > maxGroupTimeGap {
				groups = append(groups, newCorrelatedGroup(sub))
				sub = []models.CakeTransaction{tx}
			} else {
				sub = append(sub, tx)
			}
		}
		groups = append(groups, newCorrelatedGroup(sub))
	}

	// Phase 4: aggregate standalone income events into daily (and, for the
	// high-frequency currency, weekly) reward groups.
	rewardGroups, absorbed := groupRewards(singles)
	groups = append(groups, rewardGroups...)
	for _, tx := range singles {
		if !absorbed[tx.OriginalIndex] {
			groups = append(groups, Group{Transactions: []models.CakeTransaction{tx}, Kind: KindSingle})
		}
	}

	sortGroups(groups)
	res.Groups = groups
	return res
}

func newCorrelatedGroup(members []models.CakeTransaction) Group {
	refID := members[0].RelatedReferenceID
	if refID == "" {
		refID = members[0].Reference
	}
	return Group{
		Transactions: members,
		Kind:         determineKind(members),
		ReferenceID:  refID,
	}
}

// determineKind inspects the operation labels present in a correlated group.
func determineKind(members []models.CakeTransaction) GroupKind {
	for _, tx := range members {
		if tx.Operation == mapper.OpAddedLiquidity || hasPrefix(tx.Operation, mapper.PrefixAddLiquidity) {
			return KindAddLiquidity
		}
	}
	for _, tx := range members {
		if tx.Operation == mapper.OpRemovedLiquidity || hasPrefix(tx.Operation, mapper.PrefixRemoveLiquidity) {
			return KindRemoveLiquidity
		}
	}
	return KindSwap
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// rewardKey identifies one day's rewards in one currency.
type rewardKey struct {
	day      string
	currency string
}

func rewardKeyOf(tx models.CakeTransaction) rewardKey {
	return rewardKey{day: tx.Date.Format("2006-01-02"), currency: tx.CoinAsset}
}

// groupRewards aggregates standalone income events by (day, currency), then
// merges the weekly-aggregated currency's daily groups into calendar-week
// groups anchored on Monday. Only groups with at least two members
// materialize; the rest stay singletons. The returned set marks the original
// indices of absorbed events.
func groupRewards(singles []models.CakeTransaction) ([]Group, map[int]bool) {
	daily := make(map[rewardKey][]models.CakeTransaction)
	var dailyOrder []rewardKey
	for _, tx := range singles {
		if !mapper.IsIncome(tx.Operation, models.Dec(tx.Amount)) {
			continue
		}
		key := rewardKeyOf(tx)
		if _, ok := daily[key]; !ok {
			dailyOrder = append(dailyOrder, key)
		}
		daily[key] = append(daily[key], tx)
	}

	absorbed := make(map[int]bool)
	var dailyGroups []Group
	weekly := make(map[string][]models.CakeTransaction)
	var weeklyOrder []string

	for _, key := range dailyOrder {
		members := daily[key]
		if len(members) < 2 {
			continue
		}
		sort.SliceStable(members, func(i, j int) bool { return members[i].Date.Before(members[j].Date) })
		for _, tx := range members {
			absorbed[tx.OriginalIndex] = true
		}

		if key.currency == weeklyRewardCurrency {
			monday := mondayOf(members[0].Date).Format("2006-01-02")
			if _, ok := weekly[monday]; !ok {
				weeklyOrder = append(weeklyOrder, monday)
			}
			weekly[monday] = append(weekly[monday], members...)
			continue
		}
		dailyGroups = append(dailyGroups, Group{Transactions: members, Kind: KindRewards})
	}

	for _, monday := range weeklyOrder {
		members := weekly[monday]
		sort.SliceStable(members, func(i, j int) bool { return members[i].Date.Before(members[j].Date) })
		dailyGroups = append(dailyGroups, Group{Transactions: members, Kind: KindRewards})
	}
	return dailyGroups, absorbed
}

func mondayOf(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	return day.AddDate(0, 0, -offset)
}

// sortGroups imposes the final total order: UTC timestamp, economic
// priority, then the first member's original input position.
func sortGroups(groups []Group) {
	sort.SliceStable(groups, func(i, j int) bool {
		ti, tj := groups[i].Timestamp().UTC(), groups[j].Timestamp().UTC()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		pi, pj := economicPriority(groups[i]), economicPriority(groups[j])
		if pi != pj {
			return pi < pj
		}
		return groups[i].Transactions[0].OriginalIndex < groups[j].Transactions[0].OriginalIndex
	})
}

// economicPriority breaks same-timestamp ties: income first, then swaps,
// then liquidity events, then everything else.
func economicPriority(g Group) int {
	for _, tx := range g.Transactions {
		if mapper.IsIncome(tx.Operation, models.Dec(tx.Amount)) {
			return 1
		}
	}
	switch g.Kind {
	case KindSwap:
		return 2
	case KindAddLiquidity, KindRemoveLiquidity:
		return 3
	}
	return 4
}
