// Package signer defines the certificate signing backend port.
package signer

import (
	"context"

	"github.com/entgrid/entitled/internal/domain/pool"
	"github.com/entgrid/entitled/internal/domain/product"
)

// Signer mints entitlement certificates. Signing is comparatively
// expensive and may block; callers must keep it off request-handling
// goroutines.
type Signer interface {
	// Sign produces certificate material for one entitlement of the given
	// product using the supplied serial. The same (entitlement, serial)
	// input always yields a structurally equivalent certificate, which is
	// what makes regeneration safe to re-run.
	Sign(ctx context.Context, p *product.Product, e *pool.Entitlement, serial int64) (*pool.Certificate, error)
}
