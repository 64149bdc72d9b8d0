// internal/app/features/files/routes.go
package files

import "github.com/go-chi/chi/v5"

// MountRoutes registers the upload and download endpoints on r.
func MountRoutes(r chi.Router, h *Handler) {
	r.Post("/upload/{groupCode}/{memberName}", h.ServeUpload)
	r.Get("/download/{groupCode}/{storedName}", h.ServeDownload)
}
