package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coursedesk/sales-assistant/internal/domain/coupon"
	"github.com/coursedesk/sales-assistant/internal/domain/course"
	"github.com/coursedesk/sales-assistant/internal/domain/discount"
)

// CheckoutRequest holds the input for creating an order.
type CheckoutRequest struct {
	UserID        string
	CourseIDs     []string
	CouponCode    string
	PaymentMethod string
	Notes         string
}

// Service encapsulates checkout business logic: it prices the cart, consumes
// the coupon and the best active ledger discount, and persists the order.
type Service struct {
	courses    course.Repository
	couponRepo coupon.Repository
	validator  coupon.Validator
	ledger     discount.Ledger
	orders     Repository
	now        func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	courses course.Repository,
	couponRepo coupon.Repository,
	validator coupon.Validator,
	ledger discount.Ledger,
	orders Repository,
) *Service {
	return &Service{
		courses:    courses,
		couponRepo: couponRepo,
		validator:  validator,
		ledger:     ledger,
		orders:     orders,
		now:        time.Now,
	}
}

// Checkout creates an order. Unlike price quoting, checkout fails on unknown
// course ids and on ineligible coupons: money is about to move, so every
// input must resolve. The best active discretionary discount for the user is
// consumed automatically; if a concurrent order wins the race for it, this
// order simply proceeds without it.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*Order, error) {
	if len(req.CourseIDs) == 0 {
		return nil, ErrEmptyItems
	}

	courses, err := s.resolveAll(ctx, req.CourseIDs)
	if err != nil {
		return nil, err
	}

	originalAmount := decimal.Zero
	items := make([]Item, len(courses))
	for i, crs := range courses {
		originalAmount = originalAmount.Add(crs.CurrentPrice)
		items[i] = Item{
			CourseID:        crs.ID,
			CourseName:      crs.Name,
			OriginalPrice:   crs.CurrentPrice,
			DiscountedPrice: crs.CurrentPrice,
			Quantity:        1,
		}
	}

	// Coupon eligibility is checked up front; the counter increment happens
	// after the order row exists so the usage record can reference it.
	couponDiscount := decimal.Zero
	var validatedCoupon *coupon.Coupon
	if req.CouponCode != "" {
		validation, err := s.validator.Validate(ctx, req.CouponCode, req.UserID, originalAmount)
		if err != nil {
			return nil, errors.Wrap(err, "validate coupon")
		}
		if !validation.IsValid {
			return nil, &InvalidCouponError{Reasons: validation.Errors}
		}
		couponDiscount = validation.DiscountAmount
		validatedCoupon = validation.Coupon
	}

	orderID := newOrderID(s.now())

	// Consume the best active ledger discount before pricing is finalized.
	// Use is a compare-and-swap: losing the race just means no discount.
	// The discount is capped at what the coupon left of the order, so the
	// recorded amounts always satisfy the order invariant; when the coupon
	// already covers everything, no discount is consumed at all.
	agentDiscount := decimal.Zero
	var appliedID *int64
	if remaining := originalAmount.Sub(couponDiscount); remaining.IsPositive() {
		active, err := s.ledger.ActiveForUser(ctx, req.UserID, "")
		if err != nil {
			return nil, errors.Wrap(err, "load active discounts")
		}
		if best := discount.BestFor(active, originalAmount); best != nil {
			amount := decimal.Min(best.Amount(originalAmount), remaining)
			ok, err := s.ledger.Use(ctx, best.ID, orderID, amount)
			if err != nil {
				return nil, errors.Wrap(err, "consume applied discount")
			}
			if ok {
				agentDiscount = amount
				id := best.ID
				appliedID = &id
			}
		}
	}

	totalDiscount := agentDiscount.Add(couponDiscount)
	finalAmount := originalAmount.Sub(totalDiscount)
	if finalAmount.IsNegative() {
		finalAmount = decimal.Zero
	}

	o := &Order{
		ID:                orderID,
		UserID:            req.UserID,
		Items:             items,
		OriginalAmount:    originalAmount,
		DiscountAmount:    agentDiscount,
		CouponDiscount:    couponDiscount,
		FinalAmount:       finalAmount,
		AppliedDiscountID: appliedID,
		CouponCode:        req.CouponCode,
		Status:            StatusPending,
		PaymentStatus:     PaymentPending,
		PaymentMethod:     req.PaymentMethod,
		Notes:             req.Notes,
	}
	if err := o.Verify(); err != nil {
		return nil, err
	}
	if err := s.orders.Create(ctx, o); err != nil {
		// Return the consumed discount to the active pool; otherwise a
		// failed checkout burns it.
		if appliedID != nil {
			if relErr := s.ledger.Release(ctx, *appliedID, orderID); relErr != nil {
				return nil, errors.Wrapf(err, "create order (discount %d not released: %v)", *appliedID, relErr)
			}
		}
		return nil, errors.Wrap(err, "create order")
	}

	if validatedCoupon != nil && couponDiscount.IsPositive() {
		if err := s.couponRepo.RecordUsage(ctx, validatedCoupon.ID, req.UserID, orderID, couponDiscount); err != nil {
			return nil, errors.Wrap(err, "record coupon usage")
		}
	}

	return o, nil
}

// Get returns a single order by id.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// ListForUser returns a page of the user's orders, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string, limit, offset int) ([]Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.orders.ListForUser(ctx, userID, limit, offset)
}

// MarkPaid transitions a pending order to paid.
func (s *Service) MarkPaid(ctx context.Context, id string) error {
	paidAt := s.now()
	ok, err := s.orders.Transition(ctx, id, StatusPending, StatusPaid, PaymentPaid, &paidAt)
	if err != nil {
		return errors.Wrap(err, "mark paid")
	}
	if !ok {
		return ErrInvalidTransition
	}
	return nil
}

// Cancel transitions a pending order to cancelled.
func (s *Service) Cancel(ctx context.Context, id string) error {
	ok, err := s.orders.Transition(ctx, id, StatusPending, StatusCancelled, PaymentPending, nil)
	if err != nil {
		return errors.Wrap(err, "cancel order")
	}
	if !ok {
		return ErrInvalidTransition
	}
	return nil
}

// resolveAll fetches every requested course and fails on the first id that
// matches nothing.
func (s *Service) resolveAll(ctx context.Context, ids []string) ([]course.Course, error) {
	fetched, err := s.courses.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get courses")
	}

	byID := make(map[string]course.Course, len(fetched))
	for _, crs := range fetched {
		byID[crs.ID] = crs
	}

	out := make([]course.Course, 0, len(ids))
	for _, id := range ids {
		crs, ok := byID[id]
		if !ok {
			return nil, &CourseNotFoundError{CourseID: id}
		}
		out = append(out, crs)
	}
	return out, nil
}

// newOrderID builds a sortable order id: ORD-<UTC timestamp>-<short uuid>.
func newOrderID(now time.Time) string {
	short := strings.ToUpper(uuid.New().String()[:8])
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102150405"), short)
}
