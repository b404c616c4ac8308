package commission

import (
	"fmt"

	"smallbiznis-affiliate/pkg/config"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("commission.policy",
	fx.Provide(FromConfig),
)

// FromConfig parses the COMMISSION section. There are no built-in rates: an
// empty table means uplines earn nothing.
func FromConfig(cfg *config.Config) (Policy, error) {
	c := cfg.Commission

	rates := make([]decimal.Decimal, 0, len(c.TierRates))
	for i, raw := range c.TierRates {
		r, err := decimal.NewFromString(raw)
		if err != nil {
			return Policy{}, fmt.Errorf("commission: tier %d rate %q: %w", i+1, raw, err)
		}
		rates = append(rates, r)
	}

	minimum := decimal.Zero
	if c.MinimumPayableAmount != "" {
		m, err := decimal.NewFromString(c.MinimumPayableAmount)
		if err != nil {
			return Policy{}, fmt.Errorf("commission: minimum payable amount %q: %w", c.MinimumPayableAmount, err)
		}
		minimum = m
	}

	p, err := NewPolicy(Config{
		TierRates:            rates,
		MaxTiers:             c.MaxTiers,
		MinimumPayableAmount: minimum,
		Precision:            c.Precision,
	})
	if err != nil {
		return Policy{}, err
	}

	zap.L().Info("commission policy loaded",
		zap.Strings("tier_rates", c.TierRates),
		zap.Int("max_tiers", p.MaxTiers()),
		zap.String("minimum_payable_amount", p.MinimumPayable().String()),
	)
	return p, nil
}
