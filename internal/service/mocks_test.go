package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/entgrid/entitled/internal/domain"
	"github.com/entgrid/entitled/internal/domain/consumer"
	"github.com/entgrid/entitled/internal/domain/hypervisor"
	"github.com/entgrid/entitled/internal/domain/pool"
	"github.com/entgrid/entitled/internal/domain/product"
	"github.com/entgrid/entitled/internal/port/messagequeue"
)

// mockStore implements database.Store in memory. It enforces the same
// uniqueness constraints as the SQL schema so the conflict paths are
// exercisable without a database.
type mockStore struct {
	mu           sync.Mutex
	products     map[string]*product.Product
	pools        map[string]*pool.Pool
	entitlements map[string]*pool.Entitlement
	hypervisors  map[string]*hypervisor.HypervisorID // keyed by (owner|id)
	consumers    map[string]*consumer.Consumer
	owners       map[string]*consumer.Owner
	serial       int64

	serialErr  error
	replaceErr map[string]error // per-entitlement ReplaceEntitlementCert failures
}

func newMockStore() *mockStore {
	return &mockStore{
		products:     make(map[string]*product.Product),
		pools:        make(map[string]*pool.Pool),
		entitlements: make(map[string]*pool.Entitlement),
		hypervisors:  make(map[string]*hypervisor.HypervisorID),
		consumers:    make(map[string]*consumer.Consumer),
		owners:       make(map[string]*consumer.Owner),
	}
}

func hypervisorKey(ownerID, normalizedID string) string {
	return ownerID + "|" + normalizedID
}

func copyProduct(p *product.Product) *product.Product {
	cp := *p
	cp.Attributes = append([]product.Attribute(nil), p.Attributes...)
	cp.Content = append([]product.ProductContent(nil), p.Content...)
	return &cp
}

func (m *mockStore) ListProducts(context.Context) ([]product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []product.Product
	for _, p := range m.products {
		out = append(out, *copyProduct(p))
	}
	return out, nil
}

func (m *mockStore) GetProduct(_ context.Context, id string) (*product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("get product %s: %w", id, domain.ErrNotFound)
	}
	return copyProduct(p), nil
}

func (m *mockStore) GetProductByName(_ context.Context, name string) (*product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.products {
		if p.Name == name {
			return copyProduct(p), nil
		}
	}
	return nil, fmt.Errorf("get product by name %q: %w", name, domain.ErrNotFound)
}

func (m *mockStore) CreateProduct(_ context.Context, p *product.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[p.ID]; ok {
		return fmt.Errorf("create product %s: %w", p.ID, domain.ErrConflict)
	}
	m.products[p.ID] = copyProduct(p)
	return nil
}

func (m *mockStore) ReplaceProduct(_ context.Context, p *product.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[p.ID]; !ok {
		return fmt.Errorf("replace product %s: %w", p.ID, domain.ErrNotFound)
	}
	m.products[p.ID] = copyProduct(p)
	return nil
}

func (m *mockStore) DeleteProduct(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return fmt.Errorf("delete product %s: %w", id, domain.ErrNotFound)
	}
	delete(m.products, id)
	return nil
}

func (m *mockStore) ProductHasSubscriptions(_ context.Context, productID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pl := range m.pools {
		if pl.ProductID == productID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStore) CreatePool(_ context.Context, p *pool.Pool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[p.ID] = p
	return nil
}

func (m *mockStore) GetPool(_ context.Context, id string) (*pool.Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pools[id]
	if !ok {
		return nil, fmt.Errorf("get pool %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

func (m *mockStore) ListPoolsByProduct(_ context.Context, productID string) ([]pool.Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []pool.Pool
	for _, p := range m.pools {
		if p.ProductID == productID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockStore) ListEntitlementsByPool(_ context.Context, poolID string) ([]pool.Entitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []pool.Entitlement
	for _, e := range m.entitlements {
		if e.PoolID == poolID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *mockStore) ListEntitlementsByConsumer(_ context.Context, consumerID string) ([]pool.Entitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []pool.Entitlement
	for _, e := range m.entitlements {
		if e.ConsumerID == consumerID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *mockStore) CreateEntitlement(_ context.Context, e *pool.Entitlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entitlements[e.ID] = e
	return nil
}

func (m *mockStore) ReplaceEntitlementCert(_ context.Context, entitlementID string, cert *pool.Certificate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.replaceErr[entitlementID]; ok {
		return err
	}
	e, ok := m.entitlements[entitlementID]
	if !ok {
		return fmt.Errorf("replace cert for entitlement %s: %w", entitlementID, domain.ErrNotFound)
	}
	e.Certificate = cert
	return nil
}

func (m *mockStore) NextCertSerial(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.serialErr != nil {
		return 0, m.serialErr
	}
	m.serial++
	return m.serial, nil
}

func (m *mockStore) GetHypervisorID(_ context.Context, ownerID, normalizedID string) (*hypervisor.HypervisorID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hypervisors[hypervisorKey(ownerID, normalizedID)]
	if !ok {
		return nil, fmt.Errorf("get hypervisor id (%s, %s): %w", ownerID, normalizedID, domain.ErrNotFound)
	}
	cp := *h
	return &cp, nil
}

func (m *mockStore) InsertHypervisorID(_ context.Context, h *hypervisor.HypervisorID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := hypervisorKey(h.OwnerID, h.HypervisorID)
	if _, ok := m.hypervisors[key]; ok {
		return fmt.Errorf("insert hypervisor id (%s, %s): %w", h.OwnerID, h.HypervisorID, domain.ErrConflict)
	}
	for _, existing := range m.hypervisors {
		if existing.ConsumerID == h.ConsumerID {
			return fmt.Errorf("insert hypervisor id for consumer %s: %w", h.ConsumerID, domain.ErrConflict)
		}
	}
	cp := *h
	m.hypervisors[key] = &cp
	return nil
}

func (m *mockStore) GetHypervisorIDByConsumer(_ context.Context, consumerID string) (*hypervisor.HypervisorID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.hypervisors {
		if h.ConsumerID == consumerID {
			cp := *h
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("get hypervisor id for consumer %s: %w", consumerID, domain.ErrNotFound)
}

func (m *mockStore) UpdateHypervisorIdentifier(_ context.Context, id, normalizedID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, h := range m.hypervisors {
		if h.ID == id {
			next := hypervisorKey(h.OwnerID, normalizedID)
			if other, ok := m.hypervisors[next]; ok && other.ID != id {
				return fmt.Errorf("update hypervisor id %s: %w", id, domain.ErrConflict)
			}
			delete(m.hypervisors, key)
			h.HypervisorID = normalizedID
			m.hypervisors[next] = h
			return nil
		}
	}
	return fmt.Errorf("update hypervisor id %s: %w", id, domain.ErrNotFound)
}

func (m *mockStore) GetConsumer(_ context.Context, id string) (*consumer.Consumer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.consumers[id]
	if !ok {
		return nil, fmt.Errorf("get consumer %s: %w", id, domain.ErrNotFound)
	}
	return c, nil
}

func (m *mockStore) CreateConsumer(_ context.Context, c *consumer.Consumer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumers[c.ID] = c
	return nil
}

func (m *mockStore) GetOwner(_ context.Context, id string) (*consumer.Owner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.owners[id]
	if !ok {
		return nil, fmt.Errorf("get owner %s: %w", id, domain.ErrNotFound)
	}
	return o, nil
}

func (m *mockStore) CreateOwner(_ context.Context, o *consumer.Owner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[o.ID] = o
	return nil
}

// mockQueue implements messagequeue.Queue for testing.
type mockQueue struct {
	mu        sync.Mutex
	published []struct {
		subject string
		data    []byte
	}
	publishErr error
}

func (q *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	if q.publishErr != nil {
		return q.publishErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, struct {
		subject string
		data    []byte
	}{subject, data})
	return nil
}

func (q *mockQueue) Subscribe(_ context.Context, _ string, _ messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *mockQueue) Drain() error      { return nil }
func (q *mockQueue) Close() error      { return nil }
func (q *mockQueue) IsConnected() bool { return true }

func (q *mockQueue) subjects() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []string
	for _, p := range q.published {
		out = append(out, p.subject)
	}
	return out
}

// mockSigner implements signer.Signer, recording calls. An error, if set,
// applies to the named entitlements only.
type mockSigner struct {
	mu      sync.Mutex
	calls   int
	failFor map[string]error
}

func (s *mockSigner) Sign(_ context.Context, _ *product.Product, e *pool.Entitlement, serial int64) (*pool.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err, ok := s.failFor[e.ID]; ok {
		return nil, err
	}
	return &pool.Certificate{
		Serial: serial,
		Key:    []byte("key-" + e.ID),
		Cert:   []byte("cert-" + e.ID),
	}, nil
}
