package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/coursedesk/sales-assistant/internal/domain/discount"
)

const (
	insertAppliedSQL = `INSERT INTO applied_discounts (user_id, option_type, discount_type,
			discount_value, course_ids, original_amount, discount_amount, final_amount,
			reasoning, valid_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	activeDiscountsSQL = `SELECT id, user_id, option_type, discount_type, discount_value,
			course_ids, original_amount, discount_amount, final_amount, reasoning,
			COALESCE(order_id, ''), valid_until, is_used, used_at, created_at
		FROM applied_discounts
		WHERE user_id = $1
		  AND NOT is_used AND NOT is_expired
		  AND valid_until > $2
		  AND ($3 = '' OR course_ids = '{}' OR $3 = ANY(course_ids))
		ORDER BY discount_value DESC`

	// Conditional on is_used so concurrent consumers race safely: the row is
	// flipped exactly once.
	useDiscountSQL = `UPDATE applied_discounts
		SET is_used = TRUE, used_at = now(), order_id = $2, updated_at = now()
		WHERE id = $1 AND NOT is_used
		RETURNING user_id`

	insertHistorySQL = `INSERT INTO discount_usage_history
			(applied_discount_id, user_id, order_id, discount_amount)
		VALUES ($1, $2, $3, $4)`

	// Conditional on the consuming order so a release can never undo some
	// other checkout's consumption.
	releaseDiscountSQL = `UPDATE applied_discounts
		SET is_used = FALSE, used_at = NULL, order_id = NULL, updated_at = now()
		WHERE id = $1 AND is_used AND order_id = $2`

	deleteHistorySQL = `DELETE FROM discount_usage_history
		WHERE applied_discount_id = $1 AND order_id = $2`

	expireStaleSQL = `UPDATE applied_discounts
		SET is_expired = TRUE, updated_at = now()
		WHERE NOT is_used AND NOT is_expired AND valid_until < now()`
)

var _ discount.Ledger = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Ledger backed by PostgreSQL.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// Create persists a pending applied-discount record. ValidUntil defaults to
// 24 hours from now when unset.
func (r *DiscountRepository) Create(ctx context.Context, p discount.CreateParams) (*discount.Applied, error) {
	validUntil := p.ValidUntil
	if validUntil.IsZero() {
		validUntil = time.Now().Add(24 * time.Hour)
	}
	courseIDs := p.CourseIDs
	if courseIDs == nil {
		courseIDs = []string{}
	}

	a := &discount.Applied{
		UserID:         p.UserID,
		OptionType:     p.OptionType,
		CalcType:       p.CalcType,
		Value:          p.Value,
		CourseIDs:      courseIDs,
		OriginalAmount: p.OriginalAmount,
		DiscountAmount: p.DiscountAmount,
		FinalAmount:    p.FinalAmount,
		Reasoning:      p.Reasoning,
		ValidUntil:     validUntil,
	}

	err := r.pool.QueryRow(ctx, insertAppliedSQL,
		p.UserID, string(p.OptionType), string(p.CalcType), p.Value, courseIDs,
		p.OriginalAmount, p.DiscountAmount, p.FinalAmount, p.Reasoning, validUntil,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating applied discount for user %q: %w", p.UserID, err)
	}
	return a, nil
}

// ActiveForUser returns unused, unexpired discounts for the user, largest
// value first. A non-empty courseID also matches course-agnostic records.
func (r *DiscountRepository) ActiveForUser(ctx context.Context, userID, courseID string) ([]discount.Applied, error) {
	rows, err := r.pool.Query(ctx, activeDiscountsSQL, userID, time.Now(), courseID)
	if err != nil {
		return nil, fmt.Errorf("listing active discounts for user %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanApplied)
}

// Use flips is_used and appends the history row in one transaction. Returns
// (false, nil) when the record is missing or already consumed.
func (r *DiscountRepository) Use(ctx context.Context, id int64, orderID string, actualAmount decimal.Decimal) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin discount use tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var userID string
	err = tx.QueryRow(ctx, useDiscountSQL, id, orderID).Scan(&userID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("consuming discount %d: %w", id, err)
	}

	if _, err := tx.Exec(ctx, insertHistorySQL, id, userID, orderID, actualAmount); err != nil {
		return false, fmt.Errorf("inserting discount history for %d: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit discount use tx: %w", err)
	}
	return true, nil
}

// Release undoes a Use for the given record and order: the row is returned
// to the active pool and its history entry removed, in one transaction.
func (r *DiscountRepository) Release(ctx context.Context, id int64, orderID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin discount release tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, releaseDiscountSQL, id, orderID); err != nil {
		return fmt.Errorf("releasing discount %d: %w", id, err)
	}
	if _, err := tx.Exec(ctx, deleteHistorySQL, id, orderID); err != nil {
		return fmt.Errorf("deleting discount history for %d: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit discount release tx: %w", err)
	}
	return nil
}

// ExpireStale marks unused records past their validity as expired.
func (r *DiscountRepository) ExpireStale(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, expireStaleSQL)
	if err != nil {
		return 0, fmt.Errorf("expiring stale discounts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanApplied(row pgx.CollectableRow) (discount.Applied, error) {
	var (
		a          discount.Applied
		optionType string
		calcType   string
	)
	err := row.Scan(
		&a.ID, &a.UserID, &optionType, &calcType, &a.Value,
		&a.CourseIDs, &a.OriginalAmount, &a.DiscountAmount, &a.FinalAmount,
		&a.Reasoning, &a.OrderID, &a.ValidUntil, &a.IsUsed, &a.UsedAt, &a.CreatedAt,
	)
	a.OptionType = discount.OptionType(optionType)
	a.CalcType = discount.CalcType(calcType)
	return a, err
}
