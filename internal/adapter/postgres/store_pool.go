package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/entgrid/entitled/internal/domain"
	"github.com/entgrid/entitled/internal/domain/pool"
)

func (s *Store) CreatePool(ctx context.Context, p *pool.Pool) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO pools (id, product_id, subscription_id, quantity, start_date, end_date)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at, updated_at`,
		p.ID, p.ProductID, p.SubscriptionID, p.Quantity, p.StartDate, p.EndDate,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create pool %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) GetPool(ctx context.Context, id string) (*pool.Pool, error) {
	var p pool.Pool
	err := s.pool.QueryRow(ctx,
		`SELECT id, product_id, subscription_id, quantity, start_date, end_date, created_at, updated_at
		 FROM pools WHERE id = $1`, id,
	).Scan(&p.ID, &p.ProductID, &p.SubscriptionID, &p.Quantity,
		&p.StartDate, &p.EndDate, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get pool %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get pool %s: %w", id, err)
	}
	return &p, nil
}

func (s *Store) ListPoolsByProduct(ctx context.Context, productID string) ([]pool.Pool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, product_id, subscription_id, quantity, start_date, end_date, created_at, updated_at
		 FROM pools WHERE product_id = $1 ORDER BY created_at ASC`, productID)
	if err != nil {
		return nil, fmt.Errorf("list pools for product %s: %w", productID, err)
	}
	defer rows.Close()

	var pools []pool.Pool
	for rows.Next() {
		var p pool.Pool
		if err := rows.Scan(&p.ID, &p.ProductID, &p.SubscriptionID, &p.Quantity,
			&p.StartDate, &p.EndDate, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan pool: %w", err)
		}
		pools = append(pools, p)
	}
	return pools, rows.Err()
}

func (s *Store) ListEntitlementsByPool(ctx context.Context, poolID string) ([]pool.Entitlement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, pool_id, consumer_id, quantity, cert_serial, cert_key, cert_pem, cert_updated_at, created_at, updated_at
		 FROM entitlements WHERE pool_id = $1 ORDER BY created_at ASC`, poolID)
	if err != nil {
		return nil, fmt.Errorf("list entitlements for pool %s: %w", poolID, err)
	}
	defer rows.Close()
	return scanEntitlements(rows)
}

func (s *Store) ListEntitlementsByConsumer(ctx context.Context, consumerID string) ([]pool.Entitlement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, pool_id, consumer_id, quantity, cert_serial, cert_key, cert_pem, cert_updated_at, created_at, updated_at
		 FROM entitlements WHERE consumer_id = $1 ORDER BY created_at ASC`, consumerID)
	if err != nil {
		return nil, fmt.Errorf("list entitlements for consumer %s: %w", consumerID, err)
	}
	defer rows.Close()
	return scanEntitlements(rows)
}

func (s *Store) CreateEntitlement(ctx context.Context, e *pool.Entitlement) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO entitlements (id, pool_id, consumer_id, quantity)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`,
		e.ID, e.PoolID, e.ConsumerID, e.Quantity,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create entitlement %s: %w", e.ID, err)
	}
	return nil
}

// ReplaceEntitlementCert overwrites the certificate columns in place.
// There is never more than one certificate per entitlement.
func (s *Store) ReplaceEntitlementCert(ctx context.Context, entitlementID string, cert *pool.Certificate) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE entitlements
		 SET cert_serial = $2, cert_key = $3, cert_pem = $4, cert_updated_at = now(), updated_at = now()
		 WHERE id = $1`,
		entitlementID, cert.Serial, cert.Key, cert.Cert)
	if err != nil {
		return fmt.Errorf("replace cert for entitlement %s: %w", entitlementID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("replace cert for entitlement %s: %w", entitlementID, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) NextCertSerial(ctx context.Context) (int64, error) {
	var serial int64
	if err := s.pool.QueryRow(ctx, `SELECT nextval('cert_serial_seq')`).Scan(&serial); err != nil {
		return 0, fmt.Errorf("next cert serial: %w", err)
	}
	return serial, nil
}

func scanEntitlements(rows pgx.Rows) ([]pool.Entitlement, error) {
	var ents []pool.Entitlement
	for rows.Next() {
		var e pool.Entitlement
		var serial *int64
		var key, pem []byte
		var certUpdated *time.Time
		if err := rows.Scan(&e.ID, &e.PoolID, &e.ConsumerID, &e.Quantity,
			&serial, &key, &pem, &certUpdated, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan entitlement: %w", err)
		}
		if serial != nil {
			e.Certificate = &pool.Certificate{Serial: *serial, Key: key, Cert: pem}
			if certUpdated != nil {
				e.Certificate.UpdatedAt = *certUpdated
			}
		}
		ents = append(ents, e)
	}
	return ents, rows.Err()
}
