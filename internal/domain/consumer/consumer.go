// Package consumer defines the registered host and owning organization
// referenced by entitlements and hypervisor identities. Their lifecycle
// belongs to collaborating services; this core only tracks identity.
package consumer

import "time"

// Owner is an organization/tenant scoping products, pools and consumers.
type Owner struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Consumer is a registered host, physical or virtual.
type Consumer struct {
	ID        string    `json:"id"`
	UUID      string    `json:"uuid"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
