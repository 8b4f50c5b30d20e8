package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/boutique-commerce/pkg/apperr"
)

// PriceScale matches the NUMERIC(12,2) price column.
const PriceScale = 2

// Product is the catalog record the core reads. Stock is only changed through
// the conditional decrement and the restock primitive.
type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock_quantity"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Validate rejects records the products table would refuse or silently round.
func (p Product) Validate() error {
	if p.ID == "" {
		return apperr.Validation("product id is required")
	}
	if p.Stock < 0 {
		return apperr.Validation("stock must not be negative")
	}
	if p.Price.IsNegative() {
		return apperr.Validation("price must not be negative")
	}
	if !p.Price.Equal(p.Price.Truncate(PriceScale)) {
		return apperr.Validation("price %s of %s has more than %d decimal places", p.Price, p.ID, PriceScale)
	}
	return nil
}
