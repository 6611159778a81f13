package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/entgrid/entitled/internal/domain"
	"github.com/entgrid/entitled/internal/domain/consumer"
)

func (s *Store) GetConsumer(ctx context.Context, id string) (*consumer.Consumer, error) {
	var c consumer.Consumer
	err := s.pool.QueryRow(ctx,
		`SELECT id, uuid, name, owner_id, created_at, updated_at
		 FROM consumers WHERE id = $1`, id,
	).Scan(&c.ID, &c.UUID, &c.Name, &c.OwnerID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get consumer %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get consumer %s: %w", id, err)
	}
	return &c, nil
}

func (s *Store) CreateConsumer(ctx context.Context, c *consumer.Consumer) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO consumers (id, uuid, name, owner_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`,
		c.ID, c.UUID, c.Name, c.OwnerID,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create consumer %s: %w", c.ID, domain.ErrConflict)
		}
		return fmt.Errorf("create consumer %s: %w", c.ID, err)
	}
	return nil
}

func (s *Store) GetOwner(ctx context.Context, id string) (*consumer.Owner, error) {
	var o consumer.Owner
	err := s.pool.QueryRow(ctx,
		`SELECT id, owner_key, name, created_at FROM owners WHERE id = $1`, id,
	).Scan(&o.ID, &o.Key, &o.Name, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get owner %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get owner %s: %w", id, err)
	}
	return &o, nil
}

func (s *Store) CreateOwner(ctx context.Context, o *consumer.Owner) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO owners (id, owner_key, name) VALUES ($1, $2, $3)
		 RETURNING created_at`,
		o.ID, o.Key, o.Name,
	).Scan(&o.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create owner %s: %w", o.ID, domain.ErrConflict)
		}
		return fmt.Errorf("create owner %s: %w", o.ID, err)
	}
	return nil
}
