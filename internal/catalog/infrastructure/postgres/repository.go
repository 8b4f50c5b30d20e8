package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/boutique-commerce/internal/catalog/domain"
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

func (r *Repository) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	var p domain.Product
	err := pgtx.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id, name, price, stock_quantity, updated_at FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, apperr.NotFound("product", id)
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("select product %s: %w", id, err)
	}
	return p, nil
}

// DecrementStockIfAvailable relies on the row lock taken by UPDATE: a
// concurrent decrement waits and then re-evaluates the stock predicate.
func (r *Repository) DecrementStockIfAvailable(ctx context.Context, id string, qty int) (bool, error) {
	if qty < 1 {
		return false, apperr.Validation("decrement quantity must be at least 1, got %d", qty)
	}
	ct, err := pgtx.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity - $2, updated_at = now()
		WHERE id = $1 AND stock_quantity >= $2`, id, qty)
	if err != nil {
		return false, fmt.Errorf("decrement stock %s: %w", id, err)
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repository) IncrementStock(ctx context.Context, id string, qty int) error {
	if qty < 1 {
		return apperr.Validation("increment quantity must be at least 1, got %d", qty)
	}
	ct, err := pgtx.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity + $2, updated_at = now()
		WHERE id = $1`, id, qty)
	if err != nil {
		return fmt.Errorf("increment stock %s: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return apperr.NotFound("product", id)
	}
	return nil
}

func (r *Repository) Upsert(ctx context.Context, p domain.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := pgtx.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO products (id, name, price, stock_quantity, updated_at)
		VALUES ($1,$2,$3,$4,now())
		ON CONFLICT (id) DO UPDATE SET name=$2, price=$3, stock_quantity=$4, updated_at=now()`,
		p.ID, p.Name, p.Price, p.Stock)
	if err != nil {
		return fmt.Errorf("upsert product %s: %w", p.ID, err)
	}
	return nil
}
