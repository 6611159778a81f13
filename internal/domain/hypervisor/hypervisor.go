// Package hypervisor defines the organization-scoped hypervisor identity.
//
// The identifier is generated by the hypervisor itself. It is usually a
// uuid, but on some platforms it is a hostname, so it may arrive in mixed
// case. Identifiers are case-insensitive by convention; they are forced to
// lower case once, at write time, so the (owner, hypervisor_id) uniqueness
// constraint and all reads work on plain equality.
package hypervisor

import (
	"strings"
	"time"

	"github.com/entgrid/entitled/internal/domain/consumer"
)

// HypervisorID tags a consumer with the identity its virtualization host
// reports at check-in, unique per owning organization. One identity per
// consumer, one consumer per identity.
type HypervisorID struct {
	ID           string    `json:"id"`
	HypervisorID string    `json:"hypervisor_id"`
	ConsumerID   string    `json:"-"`
	OwnerID      string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Normalize lowercases a raw hypervisor identifier. All writes go through
// this; reads never re-normalize.
func Normalize(raw string) string {
	return strings.ToLower(raw)
}

// SetIdentifier stores the normalized form of raw.
func (h *HypervisorID) SetIdentifier(raw string) {
	h.HypervisorID = Normalize(raw)
}

// SetConsumer binds the identity to a consumer and derives the owner from
// the consumer in the same step. The two fields must never diverge, so
// this is the only way either is set.
func (h *HypervisorID) SetConsumer(c *consumer.Consumer) {
	h.ConsumerID = c.ID
	h.OwnerID = c.OwnerID
}

// New builds an identity bound to c with the normalized form of raw.
func New(c *consumer.Consumer, raw string) *HypervisorID {
	h := &HypervisorID{}
	h.SetIdentifier(raw)
	h.SetConsumer(c)
	return h
}
