package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/boutique-commerce/pkg/apperr"
)

const (
	// MaxQuantity bounds a single line, merged quantities included.
	MaxQuantity = 999
	priceScale  = 2
)

type Item struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Cart holds at most one item per product. Version grows with every
// persisted mutation so checkout can detect a cart changed under it.
type Cart struct {
	UserID    string    `json:"user_id"`
	Items     []Item    `json:"items"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

func New(userID string) Cart {
	return Cart{UserID: userID, Items: []Item{}}
}

// Add merges into an existing line and keeps that line's original price snapshot.
func (c *Cart) Add(productID string, quantity int, unitPrice decimal.Decimal) error {
	if productID == "" {
		return apperr.Validation("product_id is required")
	}
	if quantity < 1 || quantity > MaxQuantity {
		return apperr.Validation("quantity must be between 1 and %d, got %d", MaxQuantity, quantity)
	}
	if unitPrice.IsNegative() {
		return apperr.Validation("unit price must not be negative")
	}
	if !unitPrice.Equal(unitPrice.Truncate(priceScale)) {
		return apperr.Validation("unit price %s has more than %d decimal places", unitPrice, priceScale)
	}
	if i := c.index(productID); i >= 0 {
		if c.Items[i].Quantity > MaxQuantity-quantity {
			return apperr.Validation("quantity of %s would exceed %d", productID, MaxQuantity)
		}
		c.Items[i].Quantity += quantity
		return nil
	}
	c.Items = append(c.Items, Item{ProductID: productID, Quantity: quantity, UnitPrice: unitPrice})
	return nil
}

// SetQuantity replaces a line's quantity. Zero or less removes the line.
func (c *Cart) SetQuantity(productID string, quantity int) error {
	i := c.index(productID)
	if i < 0 {
		return apperr.NotFound("cart item", productID)
	}
	if quantity <= 0 {
		c.Remove(productID)
		return nil
	}
	if quantity > MaxQuantity {
		return apperr.Validation("quantity must be at most %d, got %d", MaxQuantity, quantity)
	}
	c.Items[i].Quantity = quantity
	return nil
}

// Remove reports whether a line was removed.
func (c *Cart) Remove(productID string) bool {
	n := len(c.Items)
	c.Items = slices.DeleteFunc(c.Items, func(it Item) bool { return it.ProductID == productID })
	return len(c.Items) != n
}

func (c Cart) IsEmpty() bool { return len(c.Items) == 0 }

func (c Cart) Quantity(productID string) int {
	if i := c.index(productID); i >= 0 {
		return c.Items[i].Quantity
	}
	return 0
}

// Subtotal is computed from the add-time snapshots and is for display only.
func (c Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

func (c Cart) Clone() Cart {
	out := c
	out.Items = slices.Clone(c.Items)
	if out.Items == nil {
		out.Items = []Item{}
	}
	return out
}

func (c Cart) index(productID string) int {
	return slices.IndexFunc(c.Items, func(it Item) bool { return it.ProductID == productID })
}
