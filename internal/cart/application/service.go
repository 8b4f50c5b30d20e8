package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/dmehra2102/boutique-commerce/internal/cart/domain"
	"github.com/dmehra2102/boutique-commerce/pkg/apperr"
)

type Service struct {
	log      *slog.Logger
	repo     Repository
	cache    Cache
	products ProductReader
	sfg      singleflight.Group
}

// NewService accepts a nil cache.
func NewService(log *slog.Logger, repo Repository, products ProductReader, cache Cache) *Service {
	if cache == nil {
		cache = noCache{}
	}
	return &Service{log: log, repo: repo, cache: cache, products: products}
}

func (s *Service) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	v, err, _ := s.sfg.Do(userID, func() (any, error) {
		c, err := s.cache.Get(ctx, userID)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			s.log.Warn("cart cache get failed", "user_id", userID, "err", err)
		}

		gen, genErr := s.cache.Generation(ctx, userID)
		c, err = s.repo.Get(ctx, userID)
		if err != nil {
			return domain.Cart{}, fmt.Errorf("load cart: %w", err)
		}
		if genErr != nil {
			s.log.Warn("cart cache generation failed", "user_id", userID, "err", genErr)
			return c, nil
		}
		if err := s.cache.Set(ctx, c, gen); errors.Is(err, ErrStaleFill) {
			s.log.Debug("cart changed during cache fill", "user_id", userID)
		} else if err != nil {
			s.log.Warn("cart cache set failed", "user_id", userID, "err", err)
		}
		return c, nil
	})
	if err != nil {
		return domain.Cart{}, err
	}
	return v.(domain.Cart).Clone(), nil
}

// AddProduct prices the line from the live catalog. Stock is not checked here.
func (s *Service) AddProduct(ctx context.Context, userID, productID string, quantity int) (domain.Cart, error) {
	if quantity < 1 {
		return domain.Cart{}, apperr.Validation("quantity must be at least 1, got %d", quantity)
	}
	p, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return domain.Cart{}, err
	}
	return s.AddItem(ctx, userID, productID, quantity, p.Price)
}

func (s *Service) AddItem(ctx context.Context, userID, productID string, quantity int, unitPrice decimal.Decimal) (domain.Cart, error) {
	return s.mutate(ctx, userID, func(c *domain.Cart) (bool, error) {
		return true, c.Add(productID, quantity, unitPrice)
	})
}

func (s *Service) UpdateQuantity(ctx context.Context, userID, productID string, quantity int) (domain.Cart, error) {
	return s.mutate(ctx, userID, func(c *domain.Cart) (bool, error) {
		return true, c.SetQuantity(productID, quantity)
	})
}

func (s *Service) RemoveItem(ctx context.Context, userID, productID string) (domain.Cart, error) {
	return s.mutate(ctx, userID, func(c *domain.Cart) (bool, error) {
		return c.Remove(productID), nil
	})
}

func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.repo.Delete(ctx, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	s.invalidate(userID)
	return nil
}

func (s *Service) mutate(ctx context.Context, userID string, fn func(c *domain.Cart) (bool, error)) (domain.Cart, error) {
	c, err := s.repo.Get(ctx, userID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("load cart: %w", err)
	}
	changed, err := fn(&c)
	if err != nil {
		return domain.Cart{}, err
	}
	if !changed {
		return c, nil
	}
	c.UpdatedAt = time.Now().UTC()
	saved, err := s.repo.Save(ctx, c)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("save cart: %w", err)
	}
	s.invalidate(userID)
	return saved, nil
}

func (s *Service) invalidate(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.log.Warn("cart cache invalidate failed", "user_id", userID, "err", err)
	}
}
