// internal/app/features/realtime/routes.go
package realtime

import "github.com/go-chi/chi/v5"

// MountRoutes registers GET /ws on r.
func MountRoutes(r chi.Router, h *Handler) {
	r.Get("/ws", h.ServeWS)
}
