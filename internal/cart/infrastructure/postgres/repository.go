package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/boutique-commerce/internal/cart/domain"
	"github.com/dmehra2102/boutique-commerce/pkg/pgtx"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
	tx   *pgtx.Transactor
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool, tx: pgtx.NewTransactor(pool)}
}

func (r *Repository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	db := pgtx.Conn(ctx, r.pool)
	c := domain.New(userID)
	err := db.QueryRow(ctx, `SELECT version, updated_at FROM carts WHERE user_id=$1`, userID).
		Scan(&c.Version, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, nil
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("select cart %s: %w", userID, err)
	}

	rows, err := db.Query(ctx, `SELECT product_id, quantity, unit_price FROM cart_items WHERE user_id=$1 ORDER BY position`, userID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("select cart items %s: %w", userID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var it domain.Item
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.UnitPrice); err != nil {
			return domain.Cart{}, err
		}
		c.Items = append(c.Items, it)
	}
	return c, rows.Err()
}

// Save replaces the stored items. Versions come from a sequence so a cart
// deleted and recreated never reuses a version a checkout may still hold.
func (r *Repository) Save(ctx context.Context, c domain.Cart) (domain.Cart, error) {
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		db := pgtx.Conn(ctx, r.pool)
		err := db.QueryRow(ctx, `
			INSERT INTO carts (user_id, version, updated_at) VALUES ($1, nextval('cart_version_seq'), $2)
			ON CONFLICT (user_id) DO UPDATE SET version = nextval('cart_version_seq'), updated_at = $2
			RETURNING version`, c.UserID, c.UpdatedAt).Scan(&c.Version)
		if err != nil {
			return fmt.Errorf("upsert cart %s: %w", c.UserID, err)
		}
		if _, err := db.Exec(ctx, `DELETE FROM cart_items WHERE user_id=$1`, c.UserID); err != nil {
			return fmt.Errorf("delete cart items %s: %w", c.UserID, err)
		}
		if len(c.Items) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for i, it := range c.Items {
			batch.Queue(`INSERT INTO cart_items (user_id, product_id, quantity, unit_price, position) VALUES ($1,$2,$3,$4,$5)`,
				c.UserID, it.ProductID, it.Quantity, it.UnitPrice, i)
		}
		return db.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return domain.Cart{}, err
	}
	return c, nil
}

func (r *Repository) Delete(ctx context.Context, userID string) error {
	if _, err := pgtx.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM carts WHERE user_id=$1`, userID); err != nil {
		return fmt.Errorf("delete cart %s: %w", userID, err)
	}
	return nil
}

func (r *Repository) DeleteIfVersion(ctx context.Context, userID string, version int64) (bool, error) {
	ct, err := pgtx.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM carts WHERE user_id=$1 AND version=$2`, userID, version)
	if err != nil {
		return false, fmt.Errorf("delete cart %s: %w", userID, err)
	}
	return ct.RowsAffected() == 1, nil
}
