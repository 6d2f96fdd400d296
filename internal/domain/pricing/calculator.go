package pricing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/coursedesk/sales-assistant/internal/domain/coupon"
	"github.com/coursedesk/sales-assistant/internal/domain/course"
	"github.com/coursedesk/sales-assistant/internal/domain/discount"
	"github.com/coursedesk/sales-assistant/internal/domain/profile"
)

// two is the candidate divisor for midpoint discount values.
var two = decimal.NewFromInt(2)

// Calculator is the pricing hub: it composes base prices from courses,
// applies coupon discounts via the validator, enumerates scored catalog
// options, and persists agent decisions to the ledger.
type Calculator struct {
	courses course.Repository
	coupons coupon.Validator
	ledger  discount.Ledger
	catalog *discount.Catalog
	now     func() time.Time
}

// NewCalculator creates a Calculator with the required collaborators.
func NewCalculator(
	courses course.Repository,
	coupons coupon.Validator,
	ledger discount.Ledger,
	catalog *discount.Catalog,
) *Calculator {
	return &Calculator{
		courses: courses,
		coupons: coupons,
		ledger:  ledger,
		catalog: catalog,
		now:     time.Now,
	}
}

// CalculateWithOptions prices the given courses and returns the ranked
// discount options for the agent. Unknown course ids never fail the call;
// they are reported in Analysis.UnresolvedCourseIDs. Coupon ineligibility
// yields a zero coupon discount here; full diagnostics are available via
// the standalone coupon validation operation.
func (c *Calculator) CalculateWithOptions(
	ctx context.Context,
	courseIDs []string,
	userID string,
	prof *profile.Profile,
	couponCode string,
) (*Analysis, error) {
	courses, unresolved, err := c.resolveCourses(ctx, courseIDs)
	if err != nil {
		return nil, err
	}

	analysis := &Analysis{
		Factors:             prof.Factors(),
		UnresolvedCourseIDs: unresolved,
	}
	if len(courses) == 0 {
		return analysis, nil
	}

	base, err := c.basePrice(ctx, courses, userID, couponCode)
	if err != nil {
		return nil, err
	}
	analysis.Base = *base

	options := c.enumerateOptions(prof, courses, base.OriginalTotal)
	analysis.Options = options
	if len(options) > 0 {
		analysis.Recommended = &options[0]
	}
	analysis.Guidance = c.guidance(prof)

	return analysis, nil
}

// ApplyAgentDecision recomputes the base price, checks the selected discount
// against its catalog entry (calc type and value range), persists the ledger
// record, and returns the final calculation. Violations are rejected with
// discount.ErrOutOfRange, never clamped.
func (c *Calculator) ApplyAgentDecision(ctx context.Context, p DecisionParams) (*Calculation, error) {
	courses, _, err := c.resolveCourses(ctx, p.CourseIDs)
	if err != nil {
		return nil, err
	}
	if len(courses) == 0 {
		return &Calculation{}, nil
	}

	base, err := c.basePrice(ctx, courses, p.UserID, p.CouponCode)
	if err != nil {
		return nil, err
	}

	agentDiscount := decimal.Zero
	if !p.Selected.None() {
		// The calc type is part of the catalog contract: a fixed-amount
		// value under a percentage-only category would pass the fractional
		// range check while meaning something entirely different.
		entry, ok := c.catalog.Get(p.Selected.OptionType)
		if !ok || p.Selected.CalcType != entry.CalcType {
			return nil, errors.Wrapf(discount.ErrOutOfRange,
				"option %q calc type %q", p.Selected.OptionType, p.Selected.CalcType)
		}
		if !c.catalog.InRange(p.Selected.OptionType, p.Selected.Value) {
			return nil, errors.Wrapf(discount.ErrOutOfRange, "option %q value %s", p.Selected.OptionType, p.Selected.Value)
		}

		agentDiscount = p.Selected.Amount(base.OriginalTotal)
		finalAmount := floorAtZero(base.OriginalTotal.Sub(agentDiscount))

		if _, err := c.ledger.Create(ctx, discount.CreateParams{
			UserID:         p.UserID,
			OptionType:     p.Selected.OptionType,
			CalcType:       p.Selected.CalcType,
			Value:          p.Selected.Value,
			CourseIDs:      p.CourseIDs,
			OriginalAmount: base.OriginalTotal,
			DiscountAmount: agentDiscount,
			FinalAmount:    finalAmount,
			Reasoning:      p.Reasoning,
			ValidUntil:     c.now().Add(24 * time.Hour),
		}); err != nil {
			return nil, errors.Wrap(err, "record applied discount")
		}
	}

	totalDiscount := base.CouponDiscount.Add(agentDiscount)
	return &Calculation{
		OriginalTotal:  base.OriginalTotal,
		DiscountTotal:  totalDiscount,
		CouponDiscount: base.CouponDiscount,
		AgentDiscount:  agentDiscount,
		FinalTotal:     floorAtZero(base.OriginalTotal.Sub(totalDiscount)),
		Items:          base.Items,
	}, nil
}

// resolveCourses batch-fetches the requested courses and reports the ids
// that matched nothing.
func (c *Calculator) resolveCourses(ctx context.Context, ids []string) ([]course.Course, []string, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}

	fetched, err := c.courses.GetByIDs(ctx, ids)
	if err != nil {
		return nil, nil, errors.Wrap(err, "get courses")
	}

	byID := make(map[string]course.Course, len(fetched))
	for _, crs := range fetched {
		byID[crs.ID] = crs
	}

	resolved := make([]course.Course, 0, len(ids))
	var unresolved []string
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if crs, ok := byID[id]; ok {
			resolved = append(resolved, crs)
		} else {
			unresolved = append(unresolved, id)
		}
	}
	return resolved, unresolved, nil
}

// basePrice sums current course prices and applies the coupon discount when
// a code is given and valid.
func (c *Calculator) basePrice(ctx context.Context, courses []course.Course, userID, couponCode string) (*Calculation, error) {
	originalTotal := decimal.Zero
	items := make([]LineItem, len(courses))
	for i, crs := range courses {
		originalTotal = originalTotal.Add(crs.CurrentPrice)
		items[i] = LineItem{
			CourseID:        crs.ID,
			CourseName:      crs.Name,
			OriginalPrice:   crs.CurrentPrice,
			DiscountedPrice: crs.CurrentPrice,
			Quantity:        1,
		}
	}

	couponDiscount := decimal.Zero
	if couponCode != "" {
		validation, err := c.coupons.Validate(ctx, couponCode, userID, originalTotal)
		if err != nil {
			return nil, errors.Wrap(err, "validate coupon")
		}
		if validation.IsValid {
			couponDiscount = validation.DiscountAmount
		}
	}

	return &Calculation{
		OriginalTotal:  originalTotal,
		DiscountTotal:  couponDiscount,
		CouponDiscount: couponDiscount,
		FinalTotal:     floorAtZero(originalTotal.Sub(couponDiscount)),
		Items:          items,
	}, nil
}

// enumerateOptions builds the scored option list: the explicit "no discount"
// choice plus one candidate per eligible catalog category, sorted by score
// descending.
func (c *Calculator) enumerateOptions(prof *profile.Profile, courses []course.Course, base decimal.Decimal) []Option {
	options := []Option{{
		Type:        discount.OptionNone,
		Value:       decimal.Zero,
		Description: "No additional discount",
		FinalAmount: base,
		Score:       scoreNoDiscount(prof),
		Reasoning:   "Keep the original price; suits price-insensitive users with high value perception",
	}}

	for _, entry := range c.catalog.Options() {
		if !eligible(entry.Type, prof, len(courses)) {
			continue
		}

		// Midpoint of the allowed range as the representative candidate;
		// the agent picks the exact value when it commits.
		value := entry.MinDiscount.Add(entry.MaxDiscount).Div(two).Round(2)
		sel := Selection{OptionType: entry.Type, CalcType: entry.CalcType, Value: value}
		amount := sel.Amount(base)
		if !amount.IsPositive() {
			continue
		}

		options = append(options, Option{
			Type:              entry.Type,
			CalcType:          entry.CalcType,
			Value:             value,
			Description:       entry.Description,
			EstimatedDiscount: amount,
			FinalAmount:       floorAtZero(base.Sub(amount)),
			Score:             scoreOption(prof, amount, base),
			Reasoning:         optionReasoning(entry, prof, amount),
		})
	}

	sort.SliceStable(options, func(i, j int) bool { return options[i].Score > options[j].Score })
	return options
}

// eligible applies the per-category predicate. Without profile data every
// category stays on the table.
func eligible(t discount.OptionType, prof *profile.Profile, courseCount int) bool {
	if prof == nil {
		return true
	}
	switch t {
	case discount.OptionNewUser:
		return prof.IsNewUser
	case discount.OptionUrgentConversion:
		return prof.PriceSensitivity == profile.SensitivityHigh
	case discount.OptionReturningUser:
		return prof.PurchaseHistoryCount > 2
	case discount.OptionBulkPurchase:
		return courseCount >= 2
	case discount.OptionVIP:
		return true
	default:
		return false
	}
}

func optionReasoning(entry discount.Option, prof *profile.Profile, amount decimal.Decimal) string {
	parts := []string{fmt.Sprintf("%s saves %s", entry.Name, amount.StringFixed(2))}
	if prof != nil {
		if prof.PriceSensitivity == profile.SensitivityHigh {
			parts = append(parts, "user is price sensitive")
		}
		if prof.UrgencyLevel >= 4 {
			parts = append(parts, "strong purchase intent")
		}
	}
	return strings.Join(parts, "; ")
}

func (c *Calculator) guidance(prof *profile.Profile) Guidance {
	considerations := []string{
		"weigh the user's price sensitivity",
		"balance discount depth against margin",
		"avoid over-discounting; it erodes trust in the original price",
	}
	if prof != nil {
		switch prof.PriceSensitivity {
		case profile.SensitivityHigh:
			considerations = append(considerations, "this user is price sensitive; a moderate discount helps close")
		case profile.SensitivityLow:
			considerations = append(considerations, "this user is not price driven; protect margin")
		}
	}
	return Guidance{
		Prompt:         c.catalog.Guidance(),
		Considerations: considerations,
	}
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
