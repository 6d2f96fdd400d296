package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coursedesk/sales-assistant/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders (id, user_id, original_amount, discount_amount,
			coupon_discount, final_amount, applied_discount_id, coupon_code,
			order_status, payment_status, payment_method, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11, $12)
		RETURNING created_at`

	insertItemSQL = `INSERT INTO order_items (order_id, course_id, course_name,
			original_price, discounted_price, quantity)
		VALUES ($1, $2, $3, $4, $5, $6)`

	orderColumns = `id, user_id, original_amount, discount_amount, coupon_discount,
		final_amount, applied_discount_id, COALESCE(coupon_code, ''),
		order_status, payment_status, payment_method, notes, created_at, paid_at`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	getItemsSQL = `SELECT course_id, course_name, original_price, discounted_price, quantity
		FROM order_items WHERE order_id = $1 ORDER BY id`

	transitionSQL = `UPDATE orders
		SET order_status = $3, payment_status = $4, paid_at = $5, updated_at = now()
		WHERE id = $1 AND order_status = $2`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order header and its items in one transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin order tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, insertOrderSQL,
		o.ID, o.UserID, o.OriginalAmount, o.DiscountAmount, o.CouponDiscount,
		o.FinalAmount, o.AppliedDiscountID, o.CouponCode,
		string(o.Status), string(o.PaymentStatus), o.PaymentMethod, o.Notes,
	).Scan(&o.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	for _, it := range o.Items {
		if _, err := tx.Exec(ctx, insertItemSQL,
			o.ID, it.CourseID, it.CourseName, it.OriginalPrice, it.DiscountedPrice, it.Quantity,
		); err != nil {
			return fmt.Errorf("creating order item %q: %w", it.CourseID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit order tx: %w", err)
	}
	return nil
}

// GetByID returns an order with its items.
// Returns order.ErrNotFound when no such order exists.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	items, err := r.itemsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

// ListForUser returns a page of the user's orders, newest first, with items.
func (r *OrderRepository) ListForUser(ctx context.Context, userID string, limit, offset int) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing orders for user %q: %w", userID, err)
	}

	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		items, err := r.itemsFor(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

// Transition conditionally moves an order between statuses. Returns false
// when the order is missing or not in the expected status.
func (r *OrderRepository) Transition(ctx context.Context, id string, from, to order.Status, payment order.PaymentStatus, paidAt *time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, transitionSQL, id, string(from), string(to), string(payment), paidAt)
	if err != nil {
		return false, fmt.Errorf("transitioning order %q: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *OrderRepository) itemsFor(ctx context.Context, orderID string) ([]order.Item, error) {
	rows, err := r.pool.Query(ctx, getItemsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting items for order %q: %w", orderID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Item, error) {
		var it order.Item
		err := row.Scan(&it.CourseID, &it.CourseName, &it.OriginalPrice, &it.DiscountedPrice, &it.Quantity)
		return it, err
	})
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o             order.Order
		status        string
		paymentStatus string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.OriginalAmount, &o.DiscountAmount, &o.CouponDiscount,
		&o.FinalAmount, &o.AppliedDiscountID, &o.CouponCode,
		&status, &paymentStatus, &o.PaymentMethod, &o.Notes, &o.CreatedAt, &o.PaidAt,
	)
	o.Status = order.Status(status)
	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	return o, err
}
