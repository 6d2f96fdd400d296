package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/coursedesk/sales-assistant/internal/domain/profile"
)

var hundred = decimal.NewFromInt(100)

// scoreOption rates a discount option for the given profile. Discounts in
// the 10-25% band get a trust bonus; discounts above 30% are penalized as
// an over-discounting signal. Scores are clamped to [0,1].
func scoreOption(prof *profile.Profile, discountAmount, baseAmount decimal.Decimal) float64 {
	score := 0.5
	if prof == nil {
		return score
	}

	switch prof.PriceSensitivity {
	case profile.SensitivityHigh:
		score += 0.3
	case profile.SensitivityLow:
		score -= 0.2
	}

	if baseAmount.IsPositive() {
		pct := discountAmount.Div(baseAmount).Mul(hundred)
		switch {
		case pct.GreaterThanOrEqual(decimal.NewFromInt(10)) && pct.LessThanOrEqual(decimal.NewFromInt(25)):
			score += 0.2
		case pct.GreaterThan(decimal.NewFromInt(30)):
			score -= 0.1
		}
	}

	return clamp01(score)
}

// scoreNoDiscount rates keeping the original price. Low price sensitivity
// and high value perception favor it.
func scoreNoDiscount(prof *profile.Profile) float64 {
	score := 0.3
	if prof == nil {
		return score
	}

	switch prof.PriceSensitivity {
	case profile.SensitivityLow:
		score += 0.4
	case profile.SensitivityHigh:
		score -= 0.2
	}
	if prof.ValuePerception == profile.PerceptionHigh {
		score += 0.2
	}

	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
