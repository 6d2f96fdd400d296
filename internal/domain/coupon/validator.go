package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator checks whether a user may redeem a coupon code against a given
// order amount and computes the resulting discount.
type Validator interface {
	Validate(ctx context.Context, code, userID string, orderAmount decimal.Decimal) (*Validation, error)
}

// RepoValidator implements Validator on top of a Repository. Validation has
// no side effects; consumption happens separately via Repository.RecordUsage.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate runs the eligibility checks in order, short-circuiting on the
// first failure. The returned error is reserved for infrastructure failures;
// every expected outcome, including "coupon not found", is reported through
// the Validation verdict.
func (v *RepoValidator) Validate(ctx context.Context, code, userID string, orderAmount decimal.Decimal) (*Validation, error) {
	c, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return invalid(nil, "coupon not found"), nil
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	now := v.now()

	if c.Status != StatusActive {
		return invalid(c, "coupon is deactivated"), nil
	}
	if now.Before(c.ValidFrom) {
		return invalid(c, "coupon is not yet active"), nil
	}
	if now.After(c.ValidTo) {
		return invalid(c, "coupon has expired"), nil
	}
	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return invalid(c, "coupon usage limit reached"), nil
	}
	if orderAmount.LessThan(c.MinOrderAmount) {
		res := invalid(c, fmt.Sprintf("order amount below the required minimum of %s", c.MinOrderAmount.StringFixed(2)))
		minRequired := c.MinOrderAmount
		res.MinOrderRequired = &minRequired
		return res, nil
	}
	if c.UsageLimitPerUser > 0 {
		used, err := v.repo.UserUsageCount(ctx, userID, c.ID)
		if err != nil {
			return nil, errors.Wrap(err, "count user coupon usage")
		}
		if used >= c.UsageLimitPerUser {
			return invalid(c, "per-user usage limit for this coupon reached"), nil
		}
	}

	return &Validation{
		IsValid:           true,
		Coupon:            c,
		DiscountAmount:    c.CalculateDiscount(orderAmount),
		ApplicableCourses: c.ApplicableCourses,
	}, nil
}

func invalid(c *Coupon, reason string) *Validation {
	return &Validation{
		IsValid:        false,
		Errors:         []string{reason},
		Coupon:         c,
		DiscountAmount: decimal.Zero,
	}
}
