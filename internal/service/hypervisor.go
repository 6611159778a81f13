package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/entgrid/entitled/internal/adapter/otel"
	"github.com/entgrid/entitled/internal/domain"
	"github.com/entgrid/entitled/internal/domain/hypervisor"
	"github.com/entgrid/entitled/internal/port/database"
)

// HypervisorService resolves organization-scoped hypervisor identities at
// check-in time. The (owner, normalized id) unique constraint in storage
// is the arbiter for concurrent first-time check-ins; no in-process lock
// is involved, so the guarantee holds across replicas.
type HypervisorService struct {
	store   database.Store
	metrics *otel.Metrics
}

// NewHypervisorService creates a new HypervisorService. metrics may be nil.
func NewHypervisorService(store database.Store, metrics *otel.Metrics) *HypervisorService {
	return &HypervisorService{store: store, metrics: metrics}
}

// Resolve normalizes rawID and reconciles it against the identities of
// ownerID. Outcomes:
//   - CheckInUnchanged: a row already holds (ownerID, normalized).
//   - CheckInUpdated: the consumer already holds a row under another
//     identifier; the stored identifier is moved in place. A host
//     re-identifying itself after a platform change is the usual cause.
//   - CheckInCreated: no row on either axis; one is inserted.
//
// Two concurrent first-time resolves of the same identity both succeed:
// the insert loser re-reads and returns the winner's row.
func (s *HypervisorService) Resolve(ctx context.Context, ownerID, rawID, consumerID string) (*hypervisor.HypervisorID, CheckInOutcome, error) {
	if rawID == "" {
		return nil, CheckInFailed, fmt.Errorf("hypervisor id is required: %w", domain.ErrValidation)
	}
	normalized := hypervisor.Normalize(rawID)

	h, err := s.store.GetHypervisorID(ctx, ownerID, normalized)
	if err == nil {
		return h, CheckInUnchanged, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, CheckInFailed, err
	}

	c, err := s.store.GetConsumer(ctx, consumerID)
	if err != nil {
		return nil, CheckInFailed, fmt.Errorf("resolve consumer %s: %w", consumerID, err)
	}
	if c.OwnerID != ownerID {
		return nil, CheckInFailed, fmt.Errorf("consumer %s belongs to owner %s, not %s: %w",
			consumerID, c.OwnerID, ownerID, domain.ErrConflict)
	}

	// One identity per consumer. A consumer reporting a new identifier is
	// the same host re-identified, so the identifier moves with it rather
	// than spawning a second row.
	existing, err := s.store.GetHypervisorIDByConsumer(ctx, consumerID)
	if err == nil {
		if uerr := s.store.UpdateHypervisorIdentifier(ctx, existing.ID, normalized); uerr != nil {
			if errors.Is(uerr, domain.ErrConflict) && s.metrics != nil {
				s.metrics.HypervisorConflicts.Add(ctx, 1)
			}
			return nil, CheckInFailed, fmt.Errorf("move hypervisor id of consumer %s: %w", consumerID, uerr)
		}
		existing.HypervisorID = normalized
		slog.Info("hypervisor identity updated",
			"owner_id", ownerID,
			"hypervisor_id", normalized,
			"consumer_id", consumerID,
		)
		return existing, CheckInUpdated, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, CheckInFailed, err
	}

	// SetConsumer inside New derives the owner from the consumer, so the
	// two fields cannot diverge.
	created := hypervisor.New(c, rawID)
	created.ID = uuid.NewString()

	if err := s.store.InsertHypervisorID(ctx, created); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Lost the first-resolve race; the winner's row is authoritative.
			if s.metrics != nil {
				s.metrics.HypervisorConflicts.Add(ctx, 1)
			}
			winner, rerr := s.store.GetHypervisorID(ctx, ownerID, normalized)
			if rerr != nil {
				return nil, CheckInFailed, fmt.Errorf("re-read after conflict: %w", rerr)
			}
			return winner, CheckInUnchanged, nil
		}
		return nil, CheckInFailed, err
	}

	slog.Info("hypervisor identity created",
		"owner_id", ownerID,
		"hypervisor_id", normalized,
		"consumer_id", consumerID,
	)
	return created, CheckInCreated, nil
}

// Bind attaches consumerID to an existing unclaimed identity row, or
// reports domain.ErrConflict when the pair is already bound to a
// different consumer. Owner and consumer binding are immutable after
// creation, so a conflicting bind is refused rather than overwritten.
func (s *HypervisorService) Bind(ctx context.Context, ownerID, rawID, consumerID string) (*hypervisor.HypervisorID, error) {
	h, outcome, err := s.Resolve(ctx, ownerID, rawID, consumerID)
	if err != nil {
		return nil, err
	}
	if outcome == CheckInUnchanged && h.ConsumerID != consumerID {
		if s.metrics != nil {
			s.metrics.HypervisorConflicts.Add(ctx, 1)
		}
		return nil, fmt.Errorf("hypervisor id (%s, %s) already bound to consumer %s: %w",
			ownerID, hypervisor.Normalize(rawID), h.ConsumerID, domain.ErrConflict)
	}
	return h, nil
}

// CheckInOutcome classifies one identity's result within a check-in batch.
type CheckInOutcome string

const (
	CheckInCreated   CheckInOutcome = "created"
	CheckInUpdated   CheckInOutcome = "updated"
	CheckInUnchanged CheckInOutcome = "unchanged"
	CheckInFailed    CheckInOutcome = "failed"
)

// CheckInReport is one reported hypervisor within a batch: the raw
// identifier and the consumer record standing for that host.
type CheckInReport struct {
	HypervisorID string `json:"hypervisor_id"`
	ConsumerID   string `json:"consumer_id"`
}

// CheckInResult maps each reported raw hypervisor id to its outcome.
type CheckInResult struct {
	Outcomes map[string]CheckInOutcome `json:"outcomes"`
	Errors   map[string]string         `json:"errors,omitempty"`
}

// CheckIn resolves a batch of reported hypervisors in a single call. A
// check-in for an unknown organization is refused outright; after that,
// each report carries its own consumer and individual failures never
// abort the batch.
func (s *HypervisorService) CheckIn(ctx context.Context, ownerID string, reports []CheckInReport) (*CheckInResult, error) {
	if _, err := s.store.GetOwner(ctx, ownerID); err != nil {
		return nil, fmt.Errorf("check-in owner %s: %w", ownerID, err)
	}

	result := &CheckInResult{Outcomes: make(map[string]CheckInOutcome)}
	for _, r := range reports {
		_, outcome, err := s.Resolve(ctx, ownerID, r.HypervisorID, r.ConsumerID)
		if err != nil {
			result.Outcomes[r.HypervisorID] = CheckInFailed
			if result.Errors == nil {
				result.Errors = make(map[string]string)
			}
			result.Errors[r.HypervisorID] = err.Error()
			continue
		}
		result.Outcomes[r.HypervisorID] = outcome
	}
	return result, nil
}
