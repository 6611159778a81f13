// Package resilience shields regeneration sweeps from a failing signing
// backend. When signing fails repeatedly, continuing the sweep only turns
// every remaining entitlement into a recorded failure, so the circuit
// opens and fails fast until the backend recovers.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/entgrid/entitled/internal/domain/pool"
	"github.com/entgrid/entitled/internal/domain/product"
	"github.com/entgrid/entitled/internal/port/signer"
)

// ErrCircuitOpen is returned while the circuit is open and rejecting calls.
var ErrCircuitOpen = errors.New("signing circuit is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

// Breaker opens after maxFailures consecutive failures and rejects calls
// for the cooldown period, then admits a single probe.
type Breaker struct {
	mu          sync.Mutex
	state       state
	failures    int
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	now         func() time.Time // for testing
}

// NewBreaker creates a closed breaker.
func NewBreaker(maxFailures int, cooldown time.Duration) *Breaker {
	return &Breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// Do runs fn unless the circuit is open.
func (b *Breaker) Do(fn func() error) error {
	if !b.admit() {
		return ErrCircuitOpen
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failures++
		if b.state == stateHalfOpen || b.failures >= b.maxFailures {
			b.state = stateOpen
			b.openedAt = b.now()
		}
		return err
	}
	b.failures = 0
	b.state = stateClosed
	return nil
}

func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed, stateHalfOpen:
		return true
	case stateOpen:
		if b.now().Sub(b.openedAt) >= b.cooldown {
			b.state = stateHalfOpen
			return true
		}
	}
	return false
}

// GuardedSigner wraps a signer with a breaker. A tripped breaker turns
// each Sign into an immediate ErrCircuitOpen, which the sweep records as
// an entitlement failure without waiting on a dead backend.
type GuardedSigner struct {
	inner   signer.Signer
	breaker *Breaker
}

// NewGuardedSigner wraps inner. A zero maxFailures disables the guard.
func NewGuardedSigner(inner signer.Signer, maxFailures int, cooldown time.Duration) *GuardedSigner {
	var b *Breaker
	if maxFailures > 0 {
		b = NewBreaker(maxFailures, cooldown)
	}
	return &GuardedSigner{inner: inner, breaker: b}
}

// Sign delegates to the wrapped signer through the breaker.
func (g *GuardedSigner) Sign(ctx context.Context, p *product.Product, e *pool.Entitlement, serial int64) (*pool.Certificate, error) {
	if g.breaker == nil {
		return g.inner.Sign(ctx, p, e, serial)
	}
	var cert *pool.Certificate
	err := g.breaker.Do(func() error {
		var err error
		cert, err = g.inner.Sign(ctx, p, e, serial)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cert, nil
}
