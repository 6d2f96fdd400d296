package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported coupon discount strategies.
type Type string

const (
	// TypePercentage applies a fractional discount to the order amount.
	// The discount value is a fraction in [0,1], not 0-100.
	TypePercentage Type = "percentage"
	// TypeFixedAmount subtracts a fixed sum, capped at the order amount.
	TypeFixedAmount Type = "fixed_amount"
)

// Status enumerates coupon lifecycle states set by admins. Exhaustion and
// expiry are derived from usage counters and the validity window, not
// separate states.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

var (
	// ErrNotFound is returned when a coupon code or id does not exist.
	ErrNotFound = errors.New("coupon not found")
	// ErrAlreadyConsumed is returned by RecordUsage when the coupon's global
	// usage limit was reached between validation and consumption.
	ErrAlreadyConsumed = errors.New("coupon usage limit reached")
)

// Coupon is a user-redeemable code granting a bounded discount.
type Coupon struct {
	ID                string
	Code              string
	Name              string
	Type              Type
	DiscountValue     decimal.Decimal
	MinOrderAmount    decimal.Decimal
	MaxDiscount       *decimal.Decimal
	ValidFrom         time.Time
	ValidTo           time.Time
	UsageLimit        int
	UsageLimitPerUser int
	UsedCount         int
	ApplicableCourses []string
	Description       string
	Status            Status
}

// CalculateDiscount computes the discount this coupon grants on the given
// order amount. The result never exceeds the order amount, and for
// percentage coupons never exceeds MaxDiscount when set.
func (c *Coupon) CalculateDiscount(orderAmount decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch c.Type {
	case TypeFixedAmount:
		amount = decimal.Min(c.DiscountValue, orderAmount)
	case TypePercentage:
		amount = orderAmount.Mul(c.DiscountValue)
		if c.MaxDiscount != nil {
			amount = decimal.Min(amount, *c.MaxDiscount)
		}
		amount = decimal.Min(amount, orderAmount)
	default:
		return decimal.Zero
	}
	return amount.Round(2)
}

// Validation is the verdict of checking a coupon against a user and order
// amount. Ineligibility is data, not an error: callers branch on IsValid
// and surface Errors to the user.
type Validation struct {
	IsValid           bool
	Errors            []string
	Coupon            *Coupon
	DiscountAmount    decimal.Decimal
	MinOrderRequired  *decimal.Decimal
	ApplicableCourses []string
}

// Usage is one recorded redemption of a coupon.
type Usage struct {
	ID             string
	CouponID       string
	CouponCode     string
	UserID         string
	OrderID        string
	DiscountAmount decimal.Decimal
	UsedAt         time.Time
}

// Repository provides coupon lookups and atomic consumption.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// UserUsageCount returns how many times the user has redeemed the coupon.
	UserUsageCount(ctx context.Context, userID, couponID string) (int, error)
	// RecordUsage increments used_count and inserts the usage row in a single
	// transaction. It fails with ErrAlreadyConsumed when the global limit is
	// already exhausted.
	RecordUsage(ctx context.Context, couponID, userID, orderID string, discountAmount decimal.Decimal) error
}
