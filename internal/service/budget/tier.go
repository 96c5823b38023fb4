package budget

import "github.com/shopspring/decimal"

// Tier grades how much of a budget is used.
type Tier string

const (
	TierOK       Tier = "ok"
	TierCaution  Tier = "caution"
	TierWarning  Tier = "warning"
	TierCritical Tier = "critical"
)

var (
	criticalAt = decimal.NewFromInt(120)
	warningAt  = decimal.NewFromInt(100)
	cautionAt  = decimal.NewFromInt(80)
	hundred    = decimal.NewFromInt(100)
)

// TierFor maps a percentage of budget used to its tier. Thresholds are
// checked from the top, first match wins.
func TierFor(pct decimal.Decimal) Tier {
	switch {
	case pct.GreaterThanOrEqual(criticalAt):
		return TierCritical
	case pct.GreaterThanOrEqual(warningAt):
		return TierWarning
	case pct.GreaterThanOrEqual(cautionAt):
		return TierCaution
	default:
		return TierOK
	}
}

// percentOf returns part / whole * 100, or zero when whole is zero.
func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}
