package waterfall

import (
	"fmt"
	"sort"
)

// Standard tranche names. Waterfall priority is fixed by name, not by
// configuration order: Senior is paid first and absorbs losses last.
const (
	NameSenior    = "Senior"
	NameMezzanine = "Mezzanine"
	NameJunior    = "Junior"
)

// Tranche is one risk-prioritized slice of a pooled debt instrument.
type Tranche struct {
	Name          string
	Allocation    int64 // percent of pool, 0-100
	YieldModifier int64 // multiplier scaled by 100: 70 means 0.7x
	Principal     int64 // smallest currency units
}

// Payout is a single tranche's share of a distribution.
type Payout struct {
	Tranche string
	Amount  int64
}

// Absorption is the loss taken by a single tranche, in absorption order
// (lowest priority first).
type Absorption struct {
	Tranche  string
	Absorbed int64
}

// LossResult is the outcome of running a pool-level loss through the
// waterfall in reverse priority order. Shortfall is the loss remaining
// after every tranche's principal is exhausted; it is reported explicitly
// (liquidation path) rather than clamped away.
type LossResult struct {
	Absorptions []Absorption
	Shortfall   int64
}

// Redemption is the value of redeeming tranche tokens against a bond.
type Redemption struct {
	Gross int64
	Fee   int64
	Net   int64
}

// InvalidAllocationError signals a tranche configuration whose allocations
// do not sum to exactly 100. Never silently normalized: a near-miss hides
// a configuration bug.
type InvalidAllocationError struct {
	Sum int64
}

func (e *InvalidAllocationError) Error() string {
	return fmt.Sprintf("invalid tranche allocation: percentages sum to %d, want exactly 100", e.Sum)
}

// ValidateAllocations rejects any tranche set whose allocations do not sum
// to exactly 100, or with an allocation outside [0, 100].
func ValidateAllocations(tranches []Tranche) error {
	if len(tranches) == 0 {
		return &InvalidAllocationError{Sum: 0}
	}

	var sum int64
	for _, t := range tranches {
		if t.Allocation < 0 || t.Allocation > 100 {
			return &InvalidAllocationError{Sum: t.Allocation}
		}
		sum += t.Allocation
	}

	if sum != 100 {
		return &InvalidAllocationError{Sum: sum}
	}

	return nil
}

// priorityRank orders tranches senior-first. Unknown (user-defined) names
// rank below Junior in their configuration order.
func priorityRank(name string) int {
	switch name {
	case NameSenior:
		return 0
	case NameMezzanine:
		return 1
	case NameJunior:
		return 2
	}
	return 3
}

func byPriority(tranches []Tranche) []Tranche {
	ordered := make([]Tranche, len(tranches))
	copy(ordered, tranches)
	sort.SliceStable(ordered, func(i, j int) bool {
		return priorityRank(ordered[i].Name) < priorityRank(ordered[j].Name)
	})
	return ordered
}

// DistributeYield allocates a pool-level yield across tranches in priority
// order. Every tranche except the lowest-priority one receives
// base*yieldModifier where base = total*allocation/100; the lowest-priority
// tranche receives the exact remainder, so it absorbs surplus or shortfall
// and the payouts always conserve the total. Payouts are clamped at zero.
func DistributeYield(total int64, tranches []Tranche) ([]Payout, error) {
	if total < 0 {
		return nil, fmt.Errorf("negative distribution amount: %d", total)
	}
	if err := ValidateAllocations(tranches); err != nil {
		return nil, err
	}

	ordered := byPriority(tranches)
	payouts := make([]Payout, len(ordered))

	var paid int64
	for i := 0; i < len(ordered)-1; i++ {
		t := ordered[i]
		base := mulDiv(total, t.Allocation, 100)
		amount := mulDiv(base, t.YieldModifier, 100)
		if amount < 0 {
			amount = 0
		}
		payouts[i] = Payout{Tranche: t.Name, Amount: amount}
		paid += amount
	}

	remainder := total - paid
	if remainder < 0 {
		remainder = 0
	}
	last := ordered[len(ordered)-1]
	payouts[len(ordered)-1] = Payout{Tranche: last.Name, Amount: remainder}

	return payouts, nil
}

// ProRata is a tranche allocation's share of a pool total.
func ProRata(total, allocation int64) int64 {
	return mulDiv(total, allocation, 100)
}

// AbsorbLoss applies a pool-level loss through the waterfall in reverse
// priority order: Junior absorbs first, up to its principal, then
// Mezzanine, then Senior. Loss beyond the full principal stack is returned
// as Shortfall. This is a distinct, explicitly-named direction: callers
// never encode direction in the sign of an amount.
func AbsorbLoss(loss int64, tranches []Tranche) (*LossResult, error) {
	if loss < 0 {
		return nil, fmt.Errorf("negative loss amount: %d", loss)
	}
	if err := ValidateAllocations(tranches); err != nil {
		return nil, err
	}

	ordered := byPriority(tranches)
	result := &LossResult{
		Absorptions: make([]Absorption, 0, len(ordered)),
	}

	remaining := loss
	for i := len(ordered) - 1; i >= 0; i-- {
		t := ordered[i]
		take := remaining
		if take > t.Principal {
			take = t.Principal
		}
		result.Absorptions = append(result.Absorptions, Absorption{
			Tranche:  t.Name,
			Absorbed: take,
		})
		remaining -= take
	}

	result.Shortfall = remaining
	return result, nil
}

// EffectiveRate converts a tranche's yield into basis points against its
// principal. Zero when the principal is zero.
func EffectiveRate(trancheYield, tranchePrincipal int64) int64 {
	if tranchePrincipal == 0 {
		return 0
	}
	return mulDiv(trancheYield, 10_000, tranchePrincipal)
}

// RedemptionValue prices the redemption of tokenAmount tranche tokens out
// of totalTokens against the bond's value: the tranche's allocation share
// of bondValue, pro-rated by token holding, minus the redemption fee.
func RedemptionValue(t Tranche, tokenAmount, totalTokens, bondValue, feeBps int64) Redemption {
	if tokenAmount <= 0 || totalTokens <= 0 {
		return Redemption{}
	}

	share := mulDiv(bondValue, t.Allocation, 100)
	gross := mulDiv(share, tokenAmount, totalTokens)
	fee := mulDiv(gross, feeBps, 10_000)

	return Redemption{Gross: gross, Fee: fee, Net: gross - fee}
}

// CoverageRatio is collateralValue divided by the cumulative principal of
// the target tranche and every higher-priority tranche, scaled by 100.
// Senior's target is its own principal; Junior's is the full stack.
// Zero when the cumulative target is zero.
func CoverageRatio(collateralValue int64, target string, tranches []Tranche) (int64, error) {
	targetRank := -1
	for _, t := range tranches {
		if t.Name == target {
			targetRank = priorityRank(t.Name)
		}
	}
	if targetRank == -1 {
		return 0, fmt.Errorf("unknown tranche %q", target)
	}

	var cumulative int64
	for _, t := range tranches {
		if priorityRank(t.Name) <= targetRank {
			cumulative += t.Principal
		}
	}

	if cumulative == 0 {
		return 0, nil
	}

	return mulDiv(collateralValue, 100, cumulative), nil
}
