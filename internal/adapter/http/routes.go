package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/entgrid/entitled/internal/middleware"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.OwnerScope)

		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Products
		r.Get("/products", h.GetProductByName)
		r.Post("/products", h.UpsertProduct)
		r.Get("/products/{id}", h.GetProduct)
		r.Put("/products/{id}", h.UpsertProduct)
		r.Delete("/products/{id}", h.DeleteProduct)
		r.Delete("/products/{id}/content/{contentID}", h.RemoveProductContent)

		// Regeneration
		r.Post("/products/{id}/regenerate", h.RegenerateProduct)
		r.Post("/products/{id}/regenerate/async", h.EnqueueRegeneration)
		r.Post("/consumers/{id}/regenerate", h.RegenerateConsumer)

		// Pools
		r.Post("/pools", h.CreatePool)
		r.Post("/pools/{id}/entitlements", h.CreateEntitlement)

		// Hypervisors
		r.Post("/hypervisors/resolve", h.ResolveHypervisor)
		r.Post("/hypervisors/checkin", h.HypervisorCheckIn)
	})
}
