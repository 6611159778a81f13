package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/entgrid/entitled/internal/domain/pool"
	"github.com/entgrid/entitled/internal/port/messagequeue"
)

// ParamProductID is the job parameter key carrying the regeneration
// target. It is the only contractually required parameter.
const ParamProductID = "product_id"

// CertRegenerator is the collaborator a regeneration job delegates to.
// Satisfied by *PoolManagerService.
type CertRegenerator interface {
	RegenerateCertificatesOf(ctx context.Context, productID string) (*pool.RegenReport, error)
}

// CertRegenJob is the asynchronously scheduled regeneration task. It is a
// pure function from a parameter bag to one delegated call: scheduler
// adapters translate their native trigger payloads into the bag, keeping
// this logic scheduler-agnostic. Re-running with the same product id is
// safe because regeneration is idempotent per entitlement.
type CertRegenJob struct {
	regen CertRegenerator
}

// NewCertRegenJob creates a job wired to the given regenerator.
func NewCertRegenJob(regen CertRegenerator) *CertRegenJob {
	return &CertRegenJob{regen: regen}
}

// Execute extracts the product id from params and delegates exactly once.
// A missing product_id is a hard error, never a silent no-op.
func (j *CertRegenJob) Execute(ctx context.Context, params map[string]string) error {
	productID, ok := params[ParamProductID]
	if !ok || productID == "" {
		return fmt.Errorf("job parameters missing %q", ParamProductID)
	}

	report, err := j.regen.RegenerateCertificatesOf(ctx, productID)
	if err != nil {
		return fmt.Errorf("regenerate %s: %w", productID, err)
	}
	if len(report.Failures) > 0 {
		slog.Warn("regeneration job finished partially",
			"product_id", productID,
			"regenerated", report.Regenerated,
			"failed", len(report.Failures),
		)
	}
	return nil
}

// StartRegenSubscriber consumes certs.regen requests from the queue and
// executes the job for each. A returned error naks the message, handing
// retry to the queue's redelivery policy.
func (j *CertRegenJob) StartRegenSubscriber(ctx context.Context, queue messagequeue.Queue) (cancel func(), err error) {
	return queue.Subscribe(ctx, messagequeue.SubjectCertRegen, func(msgCtx context.Context, _ string, data []byte) error {
		var req messagequeue.RegenRequestPayload
		if err := json.Unmarshal(data, &req); err != nil {
			return fmt.Errorf("unmarshal regen request: %w", err)
		}
		return j.Execute(msgCtx, map[string]string{ParamProductID: req.ProductID})
	})
}
