package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/entgrid/entitled/internal/adapter/otel"
	"github.com/entgrid/entitled/internal/domain"
	"github.com/entgrid/entitled/internal/domain/pool"
	"github.com/entgrid/entitled/internal/domain/product"
	"github.com/entgrid/entitled/internal/keyedlock"
	"github.com/entgrid/entitled/internal/port/database"
	"github.com/entgrid/entitled/internal/port/messagequeue"
	"github.com/entgrid/entitled/internal/port/signer"
)

// PoolManagerService owns entitlement pools and their certificate
// regeneration. Regenerations for distinct products run concurrently up
// to a configured bound; regenerations for the same product are
// serialized so two workers never race to overwrite the same material.
type PoolManagerService struct {
	store   database.Store
	signer  signer.Signer
	queue   messagequeue.Queue
	metrics *otel.Metrics
	locks   *keyedlock.Keyed
	workers *semaphore.Weighted
}

// NewPoolManagerService creates a new PoolManagerService. maxConcurrent
// bounds how many products regenerate at once; queue and metrics may be
// nil.
func NewPoolManagerService(store database.Store, sign signer.Signer, queue messagequeue.Queue, metrics *otel.Metrics, maxConcurrent int) *PoolManagerService {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &PoolManagerService{
		store:   store,
		signer:  sign,
		queue:   queue,
		metrics: metrics,
		locks:   keyedlock.New(),
		workers: semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// RegenerateCertificatesOf reissues the certificate of every entitlement
// drawn from every pool referencing the given product. One entitlement's
// failure never aborts the rest; failures are collected into the report.
// The returned error is non-nil only when nothing could be regenerated:
// infrastructure failure before any work, or every entitlement failing.
func (s *PoolManagerService) RegenerateCertificatesOf(ctx context.Context, productID string) (*pool.RegenReport, error) {
	if err := s.workers.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.workers.Release(1)

	var report *pool.RegenReport
	err := s.locks.Run(ctx, productID, func() error {
		var err error
		report, err = s.regenerateLocked(ctx, productID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publishReport(ctx, report)
	if report.TotalFailure() {
		return report, fmt.Errorf("all %d entitlements of product %s failed regeneration", len(report.Failures), productID)
	}
	return report, nil
}

func (s *PoolManagerService) regenerateLocked(ctx context.Context, productID string) (*pool.RegenReport, error) {
	start := time.Now()
	if s.metrics != nil {
		s.metrics.RegensStarted.Add(ctx, 1)
	}

	report := &pool.RegenReport{ProductID: productID}

	p, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// The product vanished between trigger and execution. No pools
			// can reference it, so there is nothing to regenerate.
			slog.Warn("regeneration target no longer exists", "product_id", productID)
			return report, nil
		}
		return nil, err
	}

	pools, err := s.store.ListPoolsByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("list pools for %s: %w", productID, err)
	}
	report.Pools = len(pools)

	for i := range pools {
		ents, err := s.store.ListEntitlementsByPool(ctx, pools[i].ID)
		if err != nil {
			return nil, fmt.Errorf("list entitlements for pool %s: %w", pools[i].ID, err)
		}
		for j := range ents {
			s.regenerateOne(ctx, p, &ents[j], report)
		}
	}

	s.finishReport(ctx, report, start)
	return report, nil
}

// regenerateOne reissues a single entitlement certificate, recording the
// outcome in the report. Errors are isolated here so the sweep continues.
func (s *PoolManagerService) regenerateOne(ctx context.Context, p *product.Product, e *pool.Entitlement, report *pool.RegenReport) {
	serial, err := s.store.NextCertSerial(ctx)
	if err != nil {
		s.recordFailure(ctx, report, e, fmt.Errorf("allocate serial: %w", err))
		return
	}

	cert, err := s.signer.Sign(ctx, p, e, serial)
	if err != nil {
		s.recordFailure(ctx, report, e, fmt.Errorf("sign: %w", err))
		return
	}

	if err := s.store.ReplaceEntitlementCert(ctx, e.ID, cert); err != nil {
		s.recordFailure(ctx, report, e, err)
		return
	}

	report.Regenerated++
	if s.metrics != nil {
		s.metrics.CertsRegenerated.Add(ctx, 1)
	}
}

func (s *PoolManagerService) recordFailure(ctx context.Context, report *pool.RegenReport, e *pool.Entitlement, err error) {
	slog.Error("entitlement regeneration failed",
		"entitlement_id", e.ID,
		"pool_id", e.PoolID,
		"error", err,
	)
	report.Failures = append(report.Failures, pool.EntitlementFailure{
		EntitlementID: e.ID,
		PoolID:        e.PoolID,
		Error:         err.Error(),
	})
	if s.metrics != nil {
		s.metrics.CertsFailed.Add(ctx, 1)
	}
}

func (s *PoolManagerService) finishReport(ctx context.Context, report *pool.RegenReport, start time.Time) {
	if s.metrics != nil {
		s.metrics.RegensCompleted.Add(ctx, 1)
		s.metrics.RegenDuration.Record(ctx, time.Since(start).Seconds())
	}
	if len(report.Failures) > 0 {
		slog.Warn("regeneration finished with failures",
			"product_id", report.ProductID,
			"regenerated", report.Regenerated,
			"failed", len(report.Failures),
		)
		return
	}
	slog.Info("regeneration finished",
		"product_id", report.ProductID,
		"pools", report.Pools,
		"regenerated", report.Regenerated,
	)
}

// publishReport sends the aggregate outcome for operator alerting.
// Best effort: a publish failure never fails the sweep.
func (s *PoolManagerService) publishReport(ctx context.Context, report *pool.RegenReport) {
	if s.queue == nil {
		return
	}
	payload := messagequeue.RegenResultPayload{
		ProductID:   report.ProductID,
		Pools:       report.Pools,
		Regenerated: report.Regenerated,
	}
	for _, f := range report.Failures {
		payload.Failures = append(payload.Failures, messagequeue.RegenFailureDetail{
			EntitlementID: f.EntitlementID,
			PoolID:        f.PoolID,
			Error:         f.Error,
		})
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectCertRegenResult, data); err != nil {
		slog.Warn("regen result publish failed", "product_id", report.ProductID, "error", err)
	}
}

// RegenerateCertificatesOfConsumer reissues every certificate held by one
// consumer, grouped by product so per-product serialization still holds.
// Used by the check-in path when consumer facts change.
func (s *PoolManagerService) RegenerateCertificatesOfConsumer(ctx context.Context, consumerID string) (*pool.RegenReport, error) {
	ents, err := s.store.ListEntitlementsByConsumer(ctx, consumerID)
	if err != nil {
		return nil, fmt.Errorf("list entitlements for consumer %s: %w", consumerID, err)
	}

	byProduct := make(map[string][]pool.Entitlement)
	for i := range ents {
		pl, err := s.store.GetPool(ctx, ents[i].PoolID)
		if err != nil {
			return nil, fmt.Errorf("resolve pool %s: %w", ents[i].PoolID, err)
		}
		byProduct[pl.ProductID] = append(byProduct[pl.ProductID], ents[i])
	}

	report := &pool.RegenReport{}
	for productID, group := range byProduct {
		// Each per-product group counts against the same worker bound as a
		// product-wide regeneration.
		if err := s.workers.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		err := s.locks.Run(ctx, productID, func() error {
			p, err := s.store.GetProduct(ctx, productID)
			if err != nil {
				return fmt.Errorf("get product %s: %w", productID, err)
			}
			for j := range group {
				s.regenerateOne(ctx, p, &group[j], report)
			}
			return nil
		})
		s.workers.Release(1)
		if err != nil {
			return nil, err
		}
	}

	if report.TotalFailure() {
		return report, fmt.Errorf("all %d entitlements of consumer %s failed regeneration", len(report.Failures), consumerID)
	}
	return report, nil
}

// CreatePool registers a pool tying a subscription to a product.
func (s *PoolManagerService) CreatePool(ctx context.Context, p *pool.Pool) error {
	if p.ProductID == "" {
		return fmt.Errorf("pool requires a product_id: %w", domain.ErrValidation)
	}
	if _, err := s.store.GetProduct(ctx, p.ProductID); err != nil {
		return fmt.Errorf("pool product %s: %w", p.ProductID, err)
	}
	return s.store.CreatePool(ctx, p)
}

// CreateEntitlement draws a grant from a pool for a consumer. The
// certificate is minted separately by the regeneration paths, so a fresh
// entitlement has none until the product's next sweep.
func (s *PoolManagerService) CreateEntitlement(ctx context.Context, e *pool.Entitlement) error {
	if e.PoolID == "" {
		return fmt.Errorf("entitlement requires a pool_id: %w", domain.ErrValidation)
	}
	if e.ConsumerID == "" {
		return fmt.Errorf("entitlement requires a consumer_id: %w", domain.ErrValidation)
	}
	if _, err := s.store.GetPool(ctx, e.PoolID); err != nil {
		return fmt.Errorf("entitlement pool %s: %w", e.PoolID, err)
	}
	if _, err := s.store.GetConsumer(ctx, e.ConsumerID); err != nil {
		return fmt.Errorf("entitlement consumer %s: %w", e.ConsumerID, err)
	}
	if e.Quantity < 1 {
		e.Quantity = 1
	}
	return s.store.CreateEntitlement(ctx, e)
}
