// Package pool defines entitlement pools, entitlements, and their
// certificate regeneration report.
package pool

import "time"

// Pool is a bucket of entitlement grants tied to one subscription and
// one product. Certificate regeneration is scoped by the product a pool
// references.
type Pool struct {
	ID             string    `json:"id"`
	ProductID      string    `json:"product_id"`
	SubscriptionID string    `json:"subscription_id"`
	Quantity       int64     `json:"quantity"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Entitlement is a grant drawn from a pool by a consumer. Its certificate
// is replaced in place whenever the underlying product changes.
type Entitlement struct {
	ID          string       `json:"id"`
	PoolID      string       `json:"pool_id"`
	ConsumerID  string       `json:"consumer_id"`
	Quantity    int64        `json:"quantity"`
	Certificate *Certificate `json:"certificate,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Certificate is the signed artifact proving an entitlement. Regeneration
// overwrites Serial, Key and Cert; nothing ever appends a second
// certificate to an entitlement.
type Certificate struct {
	Serial    int64     `json:"serial"`
	Key       []byte    `json:"-"`
	Cert      []byte    `json:"cert"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EntitlementFailure records one entitlement that could not be
// regenerated during a sweep.
type EntitlementFailure struct {
	EntitlementID string `json:"entitlement_id"`
	PoolID        string `json:"pool_id"`
	Error         string `json:"error"`
}

// RegenReport aggregates the outcome of one regeneration invocation.
// Per-entitlement failures never abort the remaining work; they are
// collected here for operator visibility.
type RegenReport struct {
	ProductID   string               `json:"product_id"`
	Pools       int                  `json:"pools"`
	Regenerated int                  `json:"regenerated"`
	Failures    []EntitlementFailure `json:"failures,omitempty"`
}

// TotalFailure reports whether every entitlement in scope failed.
// Only then does the job as a whole fail, so the scheduler can retry.
func (r *RegenReport) TotalFailure() bool {
	return r.Regenerated == 0 && len(r.Failures) > 0
}
