// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
// The context carries request-scoped values such as the request ID.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subjects for entitlement certificate lifecycle traffic.
const (
	// SubjectCertRegen carries regeneration requests keyed by product.
	// Consumed by the regeneration job worker.
	SubjectCertRegen = "certs.regen"

	// SubjectCertRegenResult carries the aggregate report of one
	// regeneration sweep, for operator alerting.
	SubjectCertRegenResult = "certs.regen.result"

	// SubjectProductUpdated announces that a product's canonical
	// definition changed.
	SubjectProductUpdated = "products.updated"
)
