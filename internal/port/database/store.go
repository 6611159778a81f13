// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/entgrid/entitled/internal/domain/consumer"
	"github.com/entgrid/entitled/internal/domain/hypervisor"
	"github.com/entgrid/entitled/internal/domain/pool"
	"github.com/entgrid/entitled/internal/domain/product"
)

// Store is the port interface for database operations. Lookup misses are
// reported as errors wrapping domain.ErrNotFound; guarded inserts that hit
// a uniqueness constraint wrap domain.ErrConflict.
type Store interface {
	// Products
	ListProducts(ctx context.Context) ([]product.Product, error)
	GetProduct(ctx context.Context, id string) (*product.Product, error)
	GetProductByName(ctx context.Context, name string) (*product.Product, error)
	CreateProduct(ctx context.Context, p *product.Product) error
	// ReplaceProduct swaps the whole stored record for p, attributes and
	// content included. Partial updates are never supported.
	ReplaceProduct(ctx context.Context, p *product.Product) error
	DeleteProduct(ctx context.Context, id string) error
	ProductHasSubscriptions(ctx context.Context, productID string) (bool, error)

	// Pools and entitlements
	CreatePool(ctx context.Context, p *pool.Pool) error
	GetPool(ctx context.Context, id string) (*pool.Pool, error)
	ListPoolsByProduct(ctx context.Context, productID string) ([]pool.Pool, error)
	ListEntitlementsByPool(ctx context.Context, poolID string) ([]pool.Entitlement, error)
	ListEntitlementsByConsumer(ctx context.Context, consumerID string) ([]pool.Entitlement, error)
	CreateEntitlement(ctx context.Context, e *pool.Entitlement) error
	// ReplaceEntitlementCert overwrites the entitlement's certificate in
	// place; regeneration is idempotent because of this.
	ReplaceEntitlementCert(ctx context.Context, entitlementID string, cert *pool.Certificate) error
	NextCertSerial(ctx context.Context) (int64, error)

	// Hypervisor identities
	GetHypervisorID(ctx context.Context, ownerID, normalizedID string) (*hypervisor.HypervisorID, error)
	// InsertHypervisorID is the atomic unique-constrained insert. A
	// (owner_id, hypervisor_id) collision wraps domain.ErrConflict so the
	// caller can re-read the winner.
	InsertHypervisorID(ctx context.Context, h *hypervisor.HypervisorID) error
	// GetHypervisorIDByConsumer returns the one identity bound to the
	// consumer, if any. Backed by the consumer_id unique constraint.
	GetHypervisorIDByConsumer(ctx context.Context, consumerID string) (*hypervisor.HypervisorID, error)
	UpdateHypervisorIdentifier(ctx context.Context, id, normalizedID string) error

	// Consumers and owners (identity only; lifecycle is external)
	GetConsumer(ctx context.Context, id string) (*consumer.Consumer, error)
	CreateConsumer(ctx context.Context, c *consumer.Consumer) error
	GetOwner(ctx context.Context, id string) (*consumer.Owner, error)
	CreateOwner(ctx context.Context, o *consumer.Owner) error
}
