package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/entgrid/entitled/internal/domain"
	"github.com/entgrid/entitled/internal/domain/hypervisor"
)

func (s *Store) GetHypervisorID(ctx context.Context, ownerID, normalizedID string) (*hypervisor.HypervisorID, error) {
	var h hypervisor.HypervisorID
	err := s.pool.QueryRow(ctx,
		`SELECT id, hypervisor_id, consumer_id, owner_id, created_at, updated_at
		 FROM hypervisor_ids WHERE owner_id = $1 AND hypervisor_id = $2`,
		ownerID, normalizedID,
	).Scan(&h.ID, &h.HypervisorID, &h.ConsumerID, &h.OwnerID, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get hypervisor id (%s, %s): %w", ownerID, normalizedID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get hypervisor id (%s, %s): %w", ownerID, normalizedID, err)
	}
	return &h, nil
}

func (s *Store) GetHypervisorIDByConsumer(ctx context.Context, consumerID string) (*hypervisor.HypervisorID, error) {
	var h hypervisor.HypervisorID
	err := s.pool.QueryRow(ctx,
		`SELECT id, hypervisor_id, consumer_id, owner_id, created_at, updated_at
		 FROM hypervisor_ids WHERE consumer_id = $1`, consumerID,
	).Scan(&h.ID, &h.HypervisorID, &h.ConsumerID, &h.OwnerID, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get hypervisor id for consumer %s: %w", consumerID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get hypervisor id for consumer %s: %w", consumerID, err)
	}
	return &h, nil
}

// InsertHypervisorID performs the guarded insert. The hypervisor_owner_ukey
// unique constraint is the arbiter for concurrent first-time check-ins: a
// violation surfaces as domain.ErrConflict so the caller re-reads the winner.
// The consumer_id unique constraint likewise refuses a second identity for
// the same consumer.
func (s *Store) InsertHypervisorID(ctx context.Context, h *hypervisor.HypervisorID) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO hypervisor_ids (id, hypervisor_id, consumer_id, owner_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`,
		h.ID, h.HypervisorID, h.ConsumerID, h.OwnerID,
	).Scan(&h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert hypervisor id (%s, %s): %w", h.OwnerID, h.HypervisorID, domain.ErrConflict)
		}
		return fmt.Errorf("insert hypervisor id (%s, %s): %w", h.OwnerID, h.HypervisorID, err)
	}
	return nil
}

// UpdateHypervisorIdentifier changes only the stored identifier value.
// Owner and consumer binding are immutable after creation.
func (s *Store) UpdateHypervisorIdentifier(ctx context.Context, id, normalizedID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE hypervisor_ids SET hypervisor_id = $2, updated_at = now() WHERE id = $1`,
		id, normalizedID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update hypervisor id %s: %w", id, domain.ErrConflict)
		}
		return fmt.Errorf("update hypervisor id %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update hypervisor id %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
