package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/entgrid/entitled/internal/config"
	"github.com/entgrid/entitled/internal/domain"
	"github.com/entgrid/entitled/internal/domain/consumer"
	"github.com/entgrid/entitled/internal/domain/hypervisor"
	"github.com/entgrid/entitled/internal/domain/pool"
	"github.com/entgrid/entitled/internal/domain/product"
)

// testStore connects to PostgreSQL or skips the test if TEST_DATABASE_URL
// is not set. Migrations are applied before the first test runs.
func testStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("requires TEST_DATABASE_URL")
	}

	ctx := context.Background()
	if err := RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	cfg := config.Defaults().Postgres
	cfg.DSN = dsn
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(pool.Close)
	return NewStore(pool)
}

func TestProductRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id := "prod-" + uuid.NewString()
	p := &product.Product{
		ID:         id,
		Name:       "Enterprise Server",
		Arch:       "x86_64",
		Multiplier: 2,
		Attributes: []product.Attribute{
			{Name: "sockets", Value: "4", ProductID: id},
			{Name: "ram", Value: "8", ProductID: id},
		},
		Content: []product.ProductContent{{ContentID: "content-1", Enabled: true}},
	}

	if err := s.CreateProduct(ctx, p); err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	got, err := s.GetProduct(ctx, id)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if got.Name != p.Name || got.Multiplier != 2 {
		t.Fatalf("got %+v", got)
	}
	if len(got.Attributes) != 2 || got.Attributes[0].Name != "sockets" {
		t.Fatalf("attributes not preserved in order: %+v", got.Attributes)
	}
	for _, a := range got.Attributes {
		if a.ProductID != id {
			t.Fatalf("attribute back-reference = %q, want %q", a.ProductID, id)
		}
	}
}

func TestReplaceProductIsFullSwap(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id := "prod-" + uuid.NewString()
	p := &product.Product{
		ID:         id,
		Name:       "Before",
		Attributes: []product.Attribute{{Name: "sockets", Value: "4"}},
		Content:    []product.ProductContent{{ContentID: "c1"}},
	}
	if err := s.CreateProduct(ctx, p); err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	next := &product.Product{
		ID:         id,
		Name:       "After",
		Attributes: []product.Attribute{{Name: "cores", Value: "16"}},
	}
	if err := s.ReplaceProduct(ctx, next); err != nil {
		t.Fatalf("ReplaceProduct: %v", err)
	}

	got, err := s.GetProduct(ctx, id)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if got.Name != "After" {
		t.Fatalf("Name = %q, want After", got.Name)
	}
	if len(got.Attributes) != 1 || got.Attributes[0].Name != "cores" {
		t.Fatalf("old attributes survived the swap: %+v", got.Attributes)
	}
	if len(got.Content) != 0 {
		t.Fatalf("old content survived the swap: %+v", got.Content)
	}
}

func TestGetProductNotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.GetProduct(context.Background(), "no-such-product")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHypervisorUniqueConstraint(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	owner := &consumer.Owner{ID: "org-" + uuid.NewString(), Key: uuid.NewString(), Name: "Acme"}
	if err := s.CreateOwner(ctx, owner); err != nil {
		t.Fatalf("CreateOwner: %v", err)
	}

	newConsumer := func() *consumer.Consumer {
		c := &consumer.Consumer{ID: "cons-" + uuid.NewString(), UUID: uuid.NewString(), Name: "host", OwnerID: owner.ID}
		if err := s.CreateConsumer(ctx, c); err != nil {
			t.Fatalf("CreateConsumer: %v", err)
		}
		return c
	}

	raw := "Host-" + uuid.NewString()
	first := hypervisor.New(newConsumer(), raw)
	first.ID = uuid.NewString()
	if err := s.InsertHypervisorID(ctx, first); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	second := hypervisor.New(newConsumer(), raw)
	second.ID = uuid.NewString()
	err := s.InsertHypervisorID(ctx, second)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate (owner, id), got %v", err)
	}

	got, err := s.GetHypervisorID(ctx, owner.ID, hypervisor.Normalize(raw))
	if err != nil {
		t.Fatalf("GetHypervisorID: %v", err)
	}
	if got.ConsumerID != first.ConsumerID {
		t.Fatalf("winner = %q, want first inserter %q", got.ConsumerID, first.ConsumerID)
	}
}

func TestEntitlementLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	owner := &consumer.Owner{ID: "org-" + uuid.NewString(), Key: uuid.NewString(), Name: "Acme"}
	if err := s.CreateOwner(ctx, owner); err != nil {
		t.Fatalf("CreateOwner: %v", err)
	}
	gotOwner, err := s.GetOwner(ctx, owner.ID)
	if err != nil {
		t.Fatalf("GetOwner: %v", err)
	}
	if gotOwner.Key != owner.Key {
		t.Fatalf("owner key = %q, want %q", gotOwner.Key, owner.Key)
	}

	c := &consumer.Consumer{ID: "cons-" + uuid.NewString(), UUID: uuid.NewString(), Name: "host", OwnerID: owner.ID}
	if err := s.CreateConsumer(ctx, c); err != nil {
		t.Fatalf("CreateConsumer: %v", err)
	}

	p := &product.Product{ID: "prod-" + uuid.NewString(), Name: "Enterprise Server"}
	if err := s.CreateProduct(ctx, p); err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	pl := &pool.Pool{ID: "pool-" + uuid.NewString(), ProductID: p.ID, SubscriptionID: "sub-" + uuid.NewString(), Quantity: 5}
	if err := s.CreatePool(ctx, pl); err != nil {
		t.Fatalf("CreatePool: %v", err)
	}

	e := &pool.Entitlement{ID: "ent-" + uuid.NewString(), PoolID: pl.ID, ConsumerID: c.ID, Quantity: 1}
	if err := s.CreateEntitlement(ctx, e); err != nil {
		t.Fatalf("CreateEntitlement: %v", err)
	}

	cert := &pool.Certificate{Serial: 7, Key: []byte("key"), Cert: []byte("cert")}
	if err := s.ReplaceEntitlementCert(ctx, e.ID, cert); err != nil {
		t.Fatalf("ReplaceEntitlementCert: %v", err)
	}

	ents, err := s.ListEntitlementsByConsumer(ctx, c.ID)
	if err != nil {
		t.Fatalf("ListEntitlementsByConsumer: %v", err)
	}
	if len(ents) != 1 {
		t.Fatalf("%d entitlements, want 1", len(ents))
	}
	if ents[0].Certificate == nil || ents[0].Certificate.Serial != 7 {
		t.Fatalf("certificate = %+v, want serial 7", ents[0].Certificate)
	}
}

func TestUpdateHypervisorIdentifierMovesRow(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	owner := &consumer.Owner{ID: "org-" + uuid.NewString(), Key: uuid.NewString(), Name: "Acme"}
	if err := s.CreateOwner(ctx, owner); err != nil {
		t.Fatalf("CreateOwner: %v", err)
	}
	c := &consumer.Consumer{ID: "cons-" + uuid.NewString(), UUID: uuid.NewString(), Name: "host", OwnerID: owner.ID}
	if err := s.CreateConsumer(ctx, c); err != nil {
		t.Fatalf("CreateConsumer: %v", err)
	}

	oldRaw := "Host-" + uuid.NewString()
	h := hypervisor.New(c, oldRaw)
	h.ID = uuid.NewString()
	if err := s.InsertHypervisorID(ctx, h); err != nil {
		t.Fatalf("InsertHypervisorID: %v", err)
	}

	next := hypervisor.Normalize("Host-" + uuid.NewString())
	if err := s.UpdateHypervisorIdentifier(ctx, h.ID, next); err != nil {
		t.Fatalf("UpdateHypervisorIdentifier: %v", err)
	}

	got, err := s.GetHypervisorIDByConsumer(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetHypervisorIDByConsumer: %v", err)
	}
	if got.HypervisorID != next {
		t.Fatalf("identifier = %q, want %q", got.HypervisorID, next)
	}
	if _, err := s.GetHypervisorID(ctx, owner.ID, hypervisor.Normalize(oldRaw)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("old identifier still resolves: %v", err)
	}

	if err := s.UpdateHypervisorIdentifier(ctx, uuid.NewString(), next); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for unknown row", err)
	}
}

func TestNextCertSerialMonotonic(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a, err := s.NextCertSerial(ctx)
	if err != nil {
		t.Fatalf("NextCertSerial: %v", err)
	}
	b, err := s.NextCertSerial(ctx)
	if err != nil {
		t.Fatalf("NextCertSerial: %v", err)
	}
	if b <= a {
		t.Fatalf("serials not monotonic: %d then %d", a, b)
	}
}
