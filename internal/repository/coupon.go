package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/coursedesk/sales-assistant/internal/domain/coupon"
)

const couponColumns = `id, code, name, coupon_type, discount_value, min_order_amount,
	max_discount, valid_from, valid_to, usage_limit, usage_limit_per_user,
	used_count, applicable_courses, description, status`

const (
	getCouponByCodeSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE UPPER(code) = UPPER($1)`

	listValidCouponsSQL = `SELECT ` + couponColumns + `
		FROM coupons
		WHERE status = 'active'
		  AND valid_from <= $1 AND valid_to >= $1
		  AND (usage_limit = 0 OR used_count < usage_limit)
		ORDER BY discount_value DESC`

	availableCouponsSQL = `SELECT ` + couponColumns + `
		FROM coupons c
		WHERE status = 'active'
		  AND valid_from <= $2 AND valid_to >= $2
		  AND (usage_limit = 0 OR used_count < usage_limit)
		  AND (usage_limit_per_user = 0 OR usage_limit_per_user >
		       (SELECT COUNT(*) FROM coupon_usages u
		        WHERE u.coupon_id = c.id AND u.user_id = $1))
		ORDER BY discount_value DESC`

	userUsageCountSQL = `SELECT COUNT(*) FROM coupon_usages
		WHERE user_id = $1 AND coupon_id = $2`

	userUsageHistorySQL = `SELECT id, coupon_id, coupon_code, user_id, order_id, discount_amount, used_at
		FROM coupon_usages WHERE user_id = $1 ORDER BY used_at DESC`

	// The increment is conditional on the global cap so that concurrent
	// redemptions past the limit fail instead of overshooting.
	consumeCouponSQL = `UPDATE coupons
		SET used_count = used_count + 1, updated_at = now()
		WHERE id = $1 AND (usage_limit = 0 OR used_count < usage_limit)`

	insertUsageSQL = `INSERT INTO coupon_usages (id, coupon_id, coupon_code, user_id, order_id, discount_amount)
		SELECT $1, c.id, c.code, $3, $4, $5 FROM coupons c WHERE c.id = $2`

	insertCouponSQL = `INSERT INTO coupons (id, code, name, coupon_type, discount_value,
			min_order_amount, max_discount, valid_from, valid_to, usage_limit,
			usage_limit_per_user, applicable_courses, description, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	upsertCouponSQL = `INSERT INTO coupons (id, code, name, coupon_type, discount_value,
			min_order_amount, max_discount, valid_from, valid_to, usage_limit,
			usage_limit_per_user, applicable_courses, description, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			coupon_type = EXCLUDED.coupon_type,
			discount_value = EXCLUDED.discount_value,
			min_order_amount = EXCLUDED.min_order_amount,
			max_discount = EXCLUDED.max_discount,
			valid_from = EXCLUDED.valid_from,
			valid_to = EXCLUDED.valid_to,
			usage_limit = EXCLUDED.usage_limit,
			usage_limit_per_user = EXCLUDED.usage_limit_per_user,
			applicable_courses = EXCLUDED.applicable_courses,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			updated_at = now()`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code (case-insensitive).
// Returns coupon.ErrNotFound when no such coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// ListValid returns the coupons redeemable at the given instant, largest
// discount first.
func (r *CouponRepository) ListValid(ctx context.Context, now time.Time) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listValidCouponsSQL, now)
	if err != nil {
		return nil, fmt.Errorf("listing valid coupons: %w", err)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

// AvailableForUser returns the coupons the user can still redeem at the
// given instant: valid, under the global cap, and under the user's own cap.
func (r *CouponRepository) AvailableForUser(ctx context.Context, userID string, now time.Time) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, availableCouponsSQL, userID, now)
	if err != nil {
		return nil, fmt.Errorf("listing available coupons for user %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

// UserUsageHistory returns the user's coupon redemptions, newest first.
func (r *CouponRepository) UserUsageHistory(ctx context.Context, userID string) ([]coupon.Usage, error) {
	rows, err := r.pool.Query(ctx, userUsageHistorySQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing coupon usage for user %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (coupon.Usage, error) {
		var u coupon.Usage
		err := row.Scan(&u.ID, &u.CouponID, &u.CouponCode, &u.UserID, &u.OrderID, &u.DiscountAmount, &u.UsedAt)
		return u, err
	})
}

// UserUsageCount returns how many times the user has redeemed the coupon.
func (r *CouponRepository) UserUsageCount(ctx context.Context, userID, couponID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, userUsageCountSQL, userID, couponID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting coupon usage for user %q: %w", userID, err)
	}
	return n, nil
}

// RecordUsage increments used_count and inserts the usage row in a single
// transaction. The increment is guarded by the global usage cap, so the two
// writes stay consistent under concurrent redemption.
func (r *CouponRepository) RecordUsage(ctx context.Context, couponID, userID, orderID string, discountAmount decimal.Decimal) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin coupon usage tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, consumeCouponSQL, couponID)
	if err != nil {
		return fmt.Errorf("incrementing used_count for coupon %q: %w", couponID, err)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(coupon.ErrAlreadyConsumed, "coupon %q", couponID)
	}

	usageID := uuid.New().String()
	if _, err := tx.Exec(ctx, insertUsageSQL, usageID, couponID, userID, orderID, discountAmount); err != nil {
		return fmt.Errorf("inserting usage row for coupon %q: %w", couponID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit coupon usage tx: %w", err)
	}
	return nil
}

// Create inserts a new coupon. Intended for admin use.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := r.pool.Exec(ctx, insertCouponSQL,
		c.ID, c.Code, c.Name, string(c.Type), c.DiscountValue,
		c.MinOrderAmount, c.MaxDiscount, c.ValidFrom, c.ValidTo,
		c.UsageLimit, c.UsageLimitPerUser, c.ApplicableCourses,
		c.Description, string(c.Status),
	)
	if err != nil {
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// Upsert inserts or updates a coupon by code. Intended for seeding and bulk
// import; usage counters are left untouched on update.
func (r *CouponRepository) Upsert(ctx context.Context, c *coupon.Coupon) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := r.pool.Exec(ctx, upsertCouponSQL,
		c.ID, c.Code, c.Name, string(c.Type), c.DiscountValue,
		c.MinOrderAmount, c.MaxDiscount, c.ValidFrom, c.ValidTo,
		c.UsageLimit, c.UsageLimitPerUser, c.ApplicableCourses,
		c.Description, string(c.Status),
	)
	if err != nil {
		return fmt.Errorf("upserting coupon %q: %w", c.Code, err)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c           coupon.Coupon
		couponType  string
		status      string
		maxDiscount *decimal.Decimal
		limit       int32
		perUser     int32
		used        int32
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Name, &couponType, &c.DiscountValue, &c.MinOrderAmount,
		&maxDiscount, &c.ValidFrom, &c.ValidTo, &limit, &perUser,
		&used, &c.ApplicableCourses, &c.Description, &status,
	)
	c.Type = coupon.Type(couponType)
	c.Status = coupon.Status(status)
	c.MaxDiscount = maxDiscount
	c.UsageLimit = int(limit)
	c.UsageLimitPerUser = int(perUser)
	c.UsedCount = int(used)
	return c, err
}
