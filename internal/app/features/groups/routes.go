// internal/app/features/groups/routes.go
package groups

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the group endpoints at the root of r. limit wraps
// the endpoints that create state or check membership; it may be nil.
func MountRoutes(r chi.Router, h *Handler, limit func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}
		r.Post("/create-group", h.ServeCreate)
		r.Post("/join-group", h.ServeJoin)
	})
	r.Get("/groups/{code}", h.ServeGroup)
}
