// Package pricing composes course prices, coupon discounts, and the
// discretionary discount catalog into scored options for an agent to pick
// from, and applies the agent's decision.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/coursedesk/sales-assistant/internal/domain/discount"
	"github.com/coursedesk/sales-assistant/internal/domain/profile"
)

// LineItem is one course position inside a price calculation.
type LineItem struct {
	CourseID        string
	CourseName      string
	OriginalPrice   decimal.Decimal
	DiscountedPrice decimal.Decimal
	Quantity        int
}

// Calculation is the monetary outcome of pricing a set of courses.
// FinalTotal = OriginalTotal - CouponDiscount - AgentDiscount, floored at 0.
type Calculation struct {
	OriginalTotal  decimal.Decimal
	DiscountTotal  decimal.Decimal
	CouponDiscount decimal.Decimal
	AgentDiscount  decimal.Decimal
	FinalTotal     decimal.Decimal
	Items          []LineItem
}

// Option is one scored discount choice presented to the deciding agent.
type Option struct {
	Type              discount.OptionType
	CalcType          discount.CalcType
	Value             decimal.Decimal
	Description       string
	EstimatedDiscount decimal.Decimal
	FinalAmount       decimal.Decimal
	Score             float64
	Reasoning         string
}

// Guidance bundles the catalog prompt text with decision considerations.
type Guidance struct {
	Prompt         string
	Considerations []string
}

// Analysis is the full result of enumerating discount options for a cart.
// UnresolvedCourseIDs lists requested ids that matched no course; they do
// not contribute to any total.
type Analysis struct {
	Base                Calculation
	Options             []Option
	Recommended         *Option
	Guidance            Guidance
	Factors             profile.PricingFactors
	UnresolvedCourseIDs []string
}

// Selection is the agent's chosen discount: a catalog category plus the
// concrete value inside that category's range. OptionType "none" (or empty)
// means no discretionary discount.
type Selection struct {
	OptionType discount.OptionType
	CalcType   discount.CalcType
	Value      decimal.Decimal
}

// None reports whether the selection declines a discretionary discount.
func (s Selection) None() bool {
	return s.OptionType == "" || s.OptionType == discount.OptionNone
}

// Amount computes the discount this selection grants on the given base.
func (s Selection) Amount(base decimal.Decimal) decimal.Decimal {
	switch s.CalcType {
	case discount.CalcPercentage:
		return base.Mul(s.Value).Round(2)
	case discount.CalcFixedAmount:
		return decimal.Min(s.Value, base).Round(2)
	default:
		return decimal.Zero
	}
}

// DecisionParams holds the inputs for applying an agent's discount decision.
type DecisionParams struct {
	UserID     string
	CourseIDs  []string
	Selected   Selection
	Reasoning  string
	CouponCode string
}
