package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status enumerates order lifecycle states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// PaymentStatus enumerates payment outcomes.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Sentinel errors for order validation and lifecycle.
var (
	ErrEmptyItems        = errors.New("order requires at least one course")
	ErrNotFound          = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrAmountMismatch flags a violation of the order amount invariant
	// final = original - discount - coupon_discount (tolerance 0.01).
	// It is an integrity error, rejected at write time.
	ErrAmountMismatch = errors.New("order amounts are inconsistent")
)

// CourseNotFoundError indicates a requested course does not exist.
type CourseNotFoundError struct {
	CourseID string
}

func (e *CourseNotFoundError) Error() string {
	return fmt.Sprintf("course %s not found", e.CourseID)
}

// InvalidCouponError carries the validation reasons for a rejected coupon
// at checkout time.
type InvalidCouponError struct {
	Reasons []string
}

func (e *InvalidCouponError) Error() string {
	if len(e.Reasons) > 0 {
		return "invalid coupon: " + e.Reasons[0]
	}
	return "invalid coupon"
}

// Item is one course position in an order.
type Item struct {
	CourseID        string
	CourseName      string
	OriginalPrice   decimal.Decimal
	DiscountedPrice decimal.Decimal
	Quantity        int
}

// Order aggregates items with its discount breakdown. The order exclusively
// owns its items; applied discounts and coupon usages reference it only by
// id.
type Order struct {
	ID                string
	UserID            string
	Items             []Item
	OriginalAmount    decimal.Decimal
	DiscountAmount    decimal.Decimal
	CouponDiscount    decimal.Decimal
	FinalAmount       decimal.Decimal
	AppliedDiscountID *int64
	CouponCode        string
	Status            Status
	PaymentStatus     PaymentStatus
	PaymentMethod     string
	Notes             string
	CreatedAt         time.Time
	PaidAt            *time.Time
}

// amountTolerance is the rounding slack allowed by the amount invariant.
var amountTolerance = decimal.NewFromFloat(0.01)

// Verify checks the amount invariant. It must pass before the order is
// persisted.
func (o *Order) Verify() error {
	expected := o.OriginalAmount.Sub(o.DiscountAmount).Sub(o.CouponDiscount)
	if o.FinalAmount.Sub(expected).Abs().GreaterThan(amountTolerance) {
		return errors.Wrapf(ErrAmountMismatch,
			"final %s, expected %s", o.FinalAmount, expected)
	}
	for _, it := range o.Items {
		if it.DiscountedPrice.GreaterThan(it.OriginalPrice) {
			return errors.Wrapf(ErrAmountMismatch,
				"item %s discounted price exceeds original", it.CourseID)
		}
	}
	return nil
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists the order and its items in one transaction.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]Order, error)
	// Transition conditionally moves an order from one status to another.
	// Returns false when the order is missing or not in the expected status.
	Transition(ctx context.Context, id string, from, to Status, payment PaymentStatus, paidAt *time.Time) (bool, error)
}
