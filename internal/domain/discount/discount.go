// Package discount holds the discretionary discount catalog and the ledger
// of discounts an agent has granted to users.
package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when an applied-discount record does not exist.
	ErrNotFound = errors.New("applied discount not found")
	// ErrOutOfRange is returned when a discount value falls outside the
	// catalog range for its option type. This is an integrity violation,
	// rejected at write time, never clamped.
	ErrOutOfRange = errors.New("discount value outside the allowed range for its option type")
)

// Applied is one discretionary discount granted to one user: pending until
// consumed by an order, expired once valid_until passes.
type Applied struct {
	ID             int64
	UserID         string
	OptionType     OptionType
	CalcType       CalcType
	Value          decimal.Decimal
	CourseIDs      []string
	OriginalAmount decimal.Decimal
	DiscountAmount decimal.Decimal
	FinalAmount    decimal.Decimal
	Reasoning      string
	OrderID        string
	ValidUntil     time.Time
	IsUsed         bool
	UsedAt         *time.Time
	CreatedAt      time.Time
}

// Amount computes the actual discount this record grants on the given order
// amount: percentage values are fractions of the amount, fixed values are
// capped at the amount.
func (a *Applied) Amount(orderAmount decimal.Decimal) decimal.Decimal {
	switch a.CalcType {
	case CalcPercentage:
		return orderAmount.Mul(a.Value).Round(2)
	case CalcFixedAmount:
		return decimal.Min(a.Value, orderAmount).Round(2)
	default:
		return decimal.Zero
	}
}

// BestFor picks the most valuable discount from candidates. With a positive
// order amount the comparison uses the computed discount amount; otherwise
// it falls back to the raw discount value. Returns nil for an empty slice.
func BestFor(candidates []Applied, orderAmount decimal.Decimal) *Applied {
	var best *Applied
	for i := range candidates {
		d := &candidates[i]
		if best == nil {
			best = d
			continue
		}
		if orderAmount.IsPositive() {
			if d.Amount(orderAmount).GreaterThan(best.Amount(orderAmount)) {
				best = d
			}
		} else if d.Value.GreaterThan(best.Value) {
			best = d
		}
	}
	return best
}

// CreateParams holds the inputs for recording a granted discount.
type CreateParams struct {
	UserID         string
	OptionType     OptionType
	CalcType       CalcType
	Value          decimal.Decimal
	CourseIDs      []string
	OriginalAmount decimal.Decimal
	DiscountAmount decimal.Decimal
	FinalAmount    decimal.Decimal
	Reasoning      string
	// ValidUntil defaults to 24 hours from creation when zero.
	ValidUntil time.Time
}

// Ledger persists granted discounts and guards their at-most-once
// consumption.
type Ledger interface {
	Create(ctx context.Context, p CreateParams) (*Applied, error)
	// ActiveForUser returns unused, unexpired discounts for the user. With a
	// non-empty courseID the result includes both course-specific matches and
	// course-agnostic discounts.
	ActiveForUser(ctx context.Context, userID, courseID string) ([]Applied, error)
	// Use flips is_used on the record and appends the usage-history row in a
	// single transaction. The update is conditional on is_used = false, so
	// concurrent consumers race safely: exactly one observes ok = true.
	// A missing or already-consumed record yields (false, nil); errors are
	// reserved for infrastructure failures.
	Use(ctx context.Context, id int64, orderID string, actualAmount decimal.Decimal) (bool, error)
	// Release undoes a Use for the given record and order, returning the
	// discount to the active pool. Compensation for a checkout that consumed
	// the discount but failed to persist the order.
	Release(ctx context.Context, id int64, orderID string) error
	// ExpireStale marks unused records past their validity as expired and
	// returns how many rows were affected.
	ExpireStale(ctx context.Context) (int64, error)
}
