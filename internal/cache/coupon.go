package cache

import (
	"context"
	"time"

	"github.com/coursedesk/sales-assistant/internal/domain/coupon"
)

// CouponStore covers the coupon reads and writes worth decorating.
type CouponStore interface {
	Create(ctx context.Context, c *coupon.Coupon) error
	ListValid(ctx context.Context, now time.Time) ([]coupon.Coupon, error)
	AvailableForUser(ctx context.Context, userID string, now time.Time) ([]coupon.Coupon, error)
	UserUsageHistory(ctx context.Context, userID string) ([]coupon.Usage, error)
}

var _ CouponStore = (*CouponRepository)(nil)

const validCouponsKey = "valid"

// CouponRepository decorates a CouponStore with caching of the valid-coupon
// list. The list depends only on the clock and usage counters, so it gets a
// short TTL and is invalidated on every create. Per-user views hit the store
// directly: they change with each redemption.
type CouponRepository struct {
	inner CouponStore
	cache *Cache
}

// NewCouponRepository wraps inner with the given cache.
func NewCouponRepository(inner CouponStore, cache *Cache) *CouponRepository {
	return &CouponRepository{inner: inner, cache: cache}
}

// Create inserts the coupon and drops the cached valid list.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	if err := r.inner.Create(ctx, c); err != nil {
		return err
	}
	r.cache.Delete(ctx, validCouponsKey)
	return nil
}

// ListValid returns the currently redeemable coupons, served from cache when
// possible.
func (r *CouponRepository) ListValid(ctx context.Context, now time.Time) ([]coupon.Coupon, error) {
	var cached []coupon.Coupon
	if r.cache.Get(ctx, validCouponsKey, &cached) {
		return cached, nil
	}

	coupons, err := r.inner.ListValid(ctx, now)
	if err != nil {
		return nil, err
	}
	r.cache.Set(ctx, validCouponsKey, coupons)
	return coupons, nil
}

// AvailableForUser delegates to the underlying store.
func (r *CouponRepository) AvailableForUser(ctx context.Context, userID string, now time.Time) ([]coupon.Coupon, error) {
	return r.inner.AvailableForUser(ctx, userID, now)
}

// UserUsageHistory delegates to the underlying store.
func (r *CouponRepository) UserUsageHistory(ctx context.Context, userID string) ([]coupon.Usage, error) {
	return r.inner.UserUsageHistory(ctx, userID)
}
