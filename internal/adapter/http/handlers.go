// Package http exposes the service layer over a chi-routed JSON API. The
// API layer is glue: access control and request plumbing live here, never
// in the services it fronts.
package http

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/entgrid/entitled/internal/domain/pool"
	"github.com/entgrid/entitled/internal/domain/product"
	"github.com/entgrid/entitled/internal/middleware"
	"github.com/entgrid/entitled/internal/port/messagequeue"
	"github.com/entgrid/entitled/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Products    *service.ProductService
	Pools       *service.PoolManagerService
	Hypervisors *service.HypervisorService
	Queue       messagequeue.Queue
}

// --- Products ---

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Products.LookupByID(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "product not found")
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handlers) GetProductByName(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if !requireField(w, name, "name") {
		return
	}
	p, err := h.Products.LookupByName(r.Context(), name)
	if err != nil {
		writeDomainError(w, err, "product not found")
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpsertProduct creates or replaces the product with the body's id. The
// body is the complete desired state; an update enqueues certificate
// regeneration out of band and returns before any signing happens.
func (h *Handlers) UpsertProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := readJSON[product.Product](w, r)
	if !ok {
		return
	}
	if id := urlParam(r, "id"); id != "" {
		p.ID = id
	}
	if err := h.Products.CreateOrUpdate(r.Context(), &p); err != nil {
		writeDomainError(w, err, "product not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handlers) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.Products.Delete(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "product not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) RemoveProductContent(w http.ResponseWriter, r *http.Request) {
	err := h.Products.RemoveProductContent(r.Context(), urlParam(r, "id"), urlParam(r, "contentID"))
	if err != nil {
		writeDomainError(w, err, "product not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Pools & regeneration ---

func (h *Handlers) CreatePool(w http.ResponseWriter, r *http.Request) {
	p, ok := readJSON[pool.Pool](w, r)
	if !ok {
		return
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := h.Pools.CreatePool(r.Context(), &p); err != nil {
		writeDomainError(w, err, "product not found")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// CreateEntitlement draws a grant from the pool in the path for the
// consumer in the body. The certificate arrives with the product's next
// regeneration, not here.
func (h *Handlers) CreateEntitlement(w http.ResponseWriter, r *http.Request) {
	e, ok := readJSON[pool.Entitlement](w, r)
	if !ok {
		return
	}
	e.PoolID = urlParam(r, "id")
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if err := h.Pools.CreateEntitlement(r.Context(), &e); err != nil {
		writeDomainError(w, err, "pool not found")
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// RegenerateProduct runs a regeneration synchronously and returns the
// report. The asynchronous path goes through the queue; this endpoint is
// the operator's manual trigger.
func (h *Handlers) RegenerateProduct(w http.ResponseWriter, r *http.Request) {
	productID := urlParam(r, "id")
	report, err := h.Pools.RegenerateCertificatesOf(r.Context(), productID)
	if err != nil {
		if report != nil {
			// Every entitlement failed; the report carries the detail.
			writeJSON(w, http.StatusBadGateway, report)
			return
		}
		writeDomainError(w, err, "product not found")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// EnqueueRegeneration schedules a regeneration through the queue, the
// same path product updates take. The subscriber picks it up off any
// request-handling goroutine.
func (h *Handlers) EnqueueRegeneration(w http.ResponseWriter, r *http.Request) {
	if h.Queue == nil {
		writeError(w, http.StatusServiceUnavailable, "queue not configured")
		return
	}
	payload, err := json.Marshal(messagequeue.RegenRequestPayload{
		ProductID: urlParam(r, "id"),
		Reason:    "manual trigger",
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if err := h.Queue.Publish(r.Context(), messagequeue.SubjectCertRegen, payload); err != nil {
		writeError(w, http.StatusServiceUnavailable, "could not enqueue regeneration")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handlers) RegenerateConsumer(w http.ResponseWriter, r *http.Request) {
	report, err := h.Pools.RegenerateCertificatesOfConsumer(r.Context(), urlParam(r, "id"))
	if err != nil {
		if report != nil {
			writeJSON(w, http.StatusBadGateway, report)
			return
		}
		writeDomainError(w, err, "consumer not found")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// --- Hypervisors ---

type resolveRequest struct {
	HypervisorID string `json:"hypervisor_id"`
	ConsumerID   string `json:"consumer_id"`
}

func (h *Handlers) ResolveHypervisor(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.OwnerIDFromContext(r.Context())
	if !requireField(w, ownerID, "X-Owner-ID header") {
		return
	}
	req, ok := readJSON[resolveRequest](w, r)
	if !ok {
		return
	}
	hid, outcome, err := h.Hypervisors.Resolve(r.Context(), ownerID, req.HypervisorID, req.ConsumerID)
	if err != nil {
		writeDomainError(w, err, "consumer not found")
		return
	}
	status := http.StatusOK
	if outcome == service.CheckInCreated {
		status = http.StatusCreated
	}
	writeJSON(w, status, hid)
}

func (h *Handlers) HypervisorCheckIn(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.OwnerIDFromContext(r.Context())
	if !requireField(w, ownerID, "X-Owner-ID header") {
		return
	}
	reports, ok := readJSON[[]service.CheckInReport](w, r)
	if !ok {
		return
	}
	if len(reports) == 0 {
		writeError(w, http.StatusBadRequest, "empty check-in batch")
		return
	}
	result, err := h.Hypervisors.CheckIn(r.Context(), ownerID, reports)
	if err != nil {
		writeDomainError(w, err, "owner not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
