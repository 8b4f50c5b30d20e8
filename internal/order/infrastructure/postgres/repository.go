package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/boutique-commerce/internal/order/domain"
	"github.com/dmehra2102/boutique-commerce/pkg/apperr"
	"github.com/dmehra2102/boutique-commerce/pkg/pgtx"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

// ClaimCheckoutKey records the key for orderID. A key already used by the
// user yields domain.ErrDuplicateCheckoutKey.
func (r *Repository) ClaimCheckoutKey(ctx context.Context, userID, key, orderID string) error {
	_, err := pgtx.Conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO checkout_keys (user_id, idempotency_key, order_id) VALUES ($1,$2,$3)`, userID, key, orderID)
	if pgtx.IsUniqueViolation(err) {
		return domain.ErrDuplicateCheckoutKey
	}
	if err != nil {
		return fmt.Errorf("claim checkout key: %w", err)
	}
	return nil
}

func (r *Repository) FindByCheckoutKey(ctx context.Context, userID, key string) (domain.Order, error) {
	var id string
	err := pgtx.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT order_id FROM checkout_keys WHERE user_id=$1 AND idempotency_key=$2`, userID, key).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, apperr.NotFound("checkout key", key)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("select checkout key: %w", err)
	}
	return r.GetOrder(ctx, id)
}

func (r *Repository) Create(ctx context.Context, o domain.Order) error {
	db := pgtx.Conn(ctx, r.pool)
	_, err := db.Exec(ctx, `
		INSERT INTO orders (id, user_id, status, payment_status, shipping_address, total_amount, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		o.ID, o.UserID, string(o.Status), string(o.PaymentStatus), o.ShippingAddress, o.TotalAmount, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order %s: %w", o.ID, err)
	}

	batch := &pgx.Batch{}
	for i, it := range o.Items {
		batch.Queue(`INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price, position)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			o.ID, it.ProductID, it.ProductName, it.Quantity, it.UnitPrice, i)
	}
	if err := db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert order items %s: %w", o.ID, err)
	}
	return nil
}

func (r *Repository) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	db := pgtx.Conn(ctx, r.pool)
	var (
		o           domain.Order
		status, pay string
	)
	err := db.QueryRow(ctx, `
		SELECT id, user_id, status, payment_status, shipping_address, total_amount, created_at, updated_at
		FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.UserID, &status, &pay, &o.ShippingAddress, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, apperr.NotFound("order", id)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("select order %s: %w", id, err)
	}
	o.Status = domain.Status(status)
	o.PaymentStatus = domain.PaymentStatus(pay)

	rows, err := db.Query(ctx, `
		SELECT product_id, product_name, quantity, unit_price
		FROM order_items WHERE order_id=$1 ORDER BY position`, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("select order items %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice); err != nil {
			return domain.Order{}, err
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

func (r *Repository) UpdateStatus(ctx context.Context, id string, from, to domain.Status, at time.Time) error {
	return r.compareAndSet(ctx, "status", id, string(from), string(to), at)
}

func (r *Repository) UpdatePayment(ctx context.Context, id string, from, to domain.PaymentStatus, at time.Time) error {
	return r.compareAndSet(ctx, "payment_status", id, string(from), string(to), at)
}

// column is one of two constants above, never user input.
func (r *Repository) compareAndSet(ctx context.Context, column, id, from, to string, at time.Time) error {
	db := pgtx.Conn(ctx, r.pool)
	ct, err := db.Exec(ctx,
		fmt.Sprintf(`UPDATE orders SET %s=$3, updated_at=$4 WHERE id=$1 AND %s=$2`, column, column), id, from, to, at)
	if err != nil {
		return fmt.Errorf("update order %s %s: %w", id, column, err)
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id=$1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check order %s: %w", id, err)
	}
	if !exists {
		return apperr.NotFound("order", id)
	}
	return &apperr.ConflictError{Resource: "order", ID: id}
}
