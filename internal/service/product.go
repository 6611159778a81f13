// Package service implements business logic on top of ports.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/entgrid/entitled/internal/domain"
	"github.com/entgrid/entitled/internal/domain/product"
	"github.com/entgrid/entitled/internal/port/cache"
	"github.com/entgrid/entitled/internal/port/database"
	"github.com/entgrid/entitled/internal/port/messagequeue"
)

// ProductService is the registry of canonical product records. Updates to
// an existing product trigger an out-of-band certificate regeneration
// request; the update request itself never blocks on signing.
type ProductService struct {
	store    database.Store
	queue    messagequeue.Queue
	cache    cache.Cache
	cacheTTL time.Duration
}

// NewProductService creates a new ProductService. cache may be nil to
// disable read caching.
func NewProductService(store database.Store, queue messagequeue.Queue, c cache.Cache, cacheTTL time.Duration) *ProductService {
	return &ProductService{store: store, queue: queue, cache: c, cacheTTL: cacheTTL}
}

func productCacheKey(id string) string { return "product:" + id }

// LookupByID returns the product with the given identifier, or nil when
// no product matches. Absence is an expected outcome, not an error.
func (s *ProductService) LookupByID(ctx context.Context, id string) (*product.Product, error) {
	if s.cache != nil {
		if data, ok, _ := s.cache.Get(ctx, productCacheKey(id)); ok {
			var p product.Product
			if err := json.Unmarshal(data, &p); err == nil {
				return &p, nil
			}
			// Corrupt entry; fall through to the store.
			_ = s.cache.Delete(ctx, productCacheKey(id))
		}
	}

	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	s.cacheProduct(ctx, p)
	return p, nil
}

// LookupByName returns the product with the given name, or nil when no
// product matches. Name uniqueness is not guaranteed by this contract.
func (s *ProductService) LookupByName(ctx context.Context, name string) (*product.Product, error) {
	p, err := s.store.GetProductByName(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// CreateOrUpdate upserts a product keyed by its identifier. An existing
// record is replaced wholesale with the incoming value after every
// incoming attribute is re-parented to it; callers always supply the
// complete desired state. Updating an existing product enqueues a
// certificate regeneration request for it.
func (s *ProductService) CreateOrUpdate(ctx context.Context, p *product.Product) error {
	if err := product.Validate(p); err != nil {
		return err
	}

	existing, err := s.store.GetProduct(ctx, p.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("lookup existing %s: %w", p.ID, err)
	}
	if existing == nil {
		return s.create(ctx, p)
	}

	p.ReparentAttributes()
	if err := s.store.ReplaceProduct(ctx, p); err != nil {
		return fmt.Errorf("replace product %s: %w", p.ID, err)
	}
	s.invalidate(ctx, p.ID)

	s.publishRegenRequest(ctx, p, "product updated")
	s.publishProductUpdated(ctx, p)

	slog.Info("product replaced", "product_id", p.ID, "attributes", len(p.Attributes))
	return nil
}

// Create persists a new product. Attributes referencing another product
// are silently re-parented before persisting; incoming payloads routinely
// carry stale owner references and this is normalization, not an error.
func (s *ProductService) Create(ctx context.Context, p *product.Product) error {
	if err := product.Validate(p); err != nil {
		return err
	}
	return s.create(ctx, p)
}

func (s *ProductService) create(ctx context.Context, p *product.Product) error {
	p.ReparentAttributes()
	if err := s.store.CreateProduct(ctx, p); err != nil {
		return fmt.Errorf("create product %s: %w", p.ID, err)
	}
	s.invalidate(ctx, p.ID)
	slog.Info("product created", "product_id", p.ID)
	return nil
}

// RemoveProductContent removes the association with the given content
// identifier and persists the product. A miss is a no-op, not an error.
func (s *ProductService) RemoveProductContent(ctx context.Context, productID, contentID string) error {
	p, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return fmt.Errorf("get product %s: %w", productID, err)
	}

	if !p.RemoveContent(contentID) {
		return nil
	}

	if err := s.store.ReplaceProduct(ctx, p); err != nil {
		return fmt.Errorf("persist product %s: %w", productID, err)
	}
	s.invalidate(ctx, productID)
	return nil
}

// HasSubscriptions reports whether any pool references the product.
// Used by callers as a deletion guard.
func (s *ProductService) HasSubscriptions(ctx context.Context, productID string) (bool, error) {
	return s.store.ProductHasSubscriptions(ctx, productID)
}

// Delete removes a product, refusing while pools still reference it.
func (s *ProductService) Delete(ctx context.Context, id string) error {
	referenced, err := s.store.ProductHasSubscriptions(ctx, id)
	if err != nil {
		return fmt.Errorf("deletion guard %s: %w", id, err)
	}
	if referenced {
		return fmt.Errorf("product %s still referenced by pools: %w", id, domain.ErrConflict)
	}

	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	slog.Info("product deleted", "product_id", id)
	return nil
}

func (s *ProductService) cacheProduct(ctx context.Context, p *product.Product) {
	if s.cache == nil {
		return
	}
	if data, err := json.Marshal(p); err == nil {
		_ = s.cache.Set(ctx, productCacheKey(p.ID), data, s.cacheTTL)
	}
}

func (s *ProductService) invalidate(ctx context.Context, id string) {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, productCacheKey(id))
	}
}

// publishRegenRequest enqueues an out-of-band regeneration request. A
// publish failure is logged, not returned: the product write already
// committed and the periodic sweep will still pick the product up.
func (s *ProductService) publishRegenRequest(ctx context.Context, p *product.Product, reason string) {
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(messagequeue.RegenRequestPayload{ProductID: p.ID, Reason: reason})
	if err != nil {
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectCertRegen, data); err != nil {
		slog.Warn("regen request publish failed", "product_id", p.ID, "error", err)
	}
}

func (s *ProductService) publishProductUpdated(ctx context.Context, p *product.Product) {
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(messagequeue.ProductUpdatedPayload{ProductID: p.ID, Name: p.Name})
	if err != nil {
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectProductUpdated, data); err != nil {
		slog.Warn("product updated publish failed", "product_id", p.ID, "error", err)
	}
}
