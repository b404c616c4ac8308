// Package commission holds the tier based payout policy applied to the
// upline of a converting affiliate. The policy is a value: it never touches
// storage and identical inputs always yield identical shares.
package commission

import (
	"fmt"

	"smallbiznis-affiliate/services/internal/money"

	"github.com/shopspring/decimal"
)

// Config is the raw policy configuration. TierRates[0] is the rate for tier 1
// (the immediate upline); tier 0 (the direct affiliate) is always paid the
// full conversion amount by the distribution engine and is not covered here.
type Config struct {
	TierRates            []decimal.Decimal
	MaxTiers             int
	MinimumPayableAmount decimal.Decimal
	// Precision is the number of decimal places kept on a share, at most the
	// scale of the amount columns. Shares are truncated, never rounded up.
	Precision int32
}

type Policy struct {
	rates     []decimal.Decimal
	maxTiers  int
	minimum   decimal.Decimal
	precision int32
}

func NewPolicy(c Config) (Policy, error) {
	if c.MaxTiers < 0 {
		return Policy{}, fmt.Errorf("commission: max tiers must be >= 0, got %d", c.MaxTiers)
	}
	if c.MinimumPayableAmount.IsNegative() {
		return Policy{}, fmt.Errorf("commission: minimum payable amount must be >= 0, got %s", c.MinimumPayableAmount)
	}
	if c.Precision < 0 || c.Precision > money.Scale {
		return Policy{}, fmt.Errorf("commission: precision must be within [0,%d], got %d", money.Scale, c.Precision)
	}

	one := decimal.NewFromInt(1)
	rates := make([]decimal.Decimal, len(c.TierRates))
	for i, r := range c.TierRates {
		if r.IsNegative() || r.GreaterThan(one) {
			return Policy{}, fmt.Errorf("commission: rate for tier %d must be within [0,1], got %s", i+1, r)
		}
		rates[i] = r
	}

	return Policy{
		rates:     rates,
		maxTiers:  c.MaxTiers,
		minimum:   c.MinimumPayableAmount,
		precision: c.Precision,
	}, nil
}

// MustPolicy is NewPolicy for static configurations in tests and tools.
func MustPolicy(c Config) Policy {
	p, err := NewPolicy(c)
	if err != nil {
		panic(err)
	}
	return p
}

// RateForTier returns the configured rate for an upline tier (1-based).
// Tiers outside the table, including tier 0, are zero.
func (p Policy) RateForTier(tier int) decimal.Decimal {
	if tier < 1 || tier > len(p.rates) {
		return decimal.Zero
	}
	return p.rates[tier-1]
}

func (p Policy) MaxTiers() int { return p.maxTiers }

func (p Policy) MinimumPayable() decimal.Decimal { return p.minimum }

func (p Policy) Precision() int32 { return p.precision }

// SumOfRates is Σ rate over tiers 1..MaxTiers.
func (p Policy) SumOfRates() decimal.Decimal {
	sum := decimal.Zero
	for t := 1; t <= p.maxTiers; t++ {
		sum = sum.Add(p.RateForTier(t))
	}
	return sum
}

// Share computes the payout for tier on amount. ok is false when the tier is
// past MaxTiers or the share is zero or below the minimum payable amount.
func (p Policy) Share(tier int, amount decimal.Decimal) (decimal.Decimal, bool) {
	if tier < 1 || tier > p.maxTiers {
		return decimal.Zero, false
	}

	share := amount.Mul(p.RateForTier(tier)).Truncate(p.precision)
	if !share.IsPositive() || share.LessThan(p.minimum) {
		return decimal.Zero, false
	}
	return share, true
}
