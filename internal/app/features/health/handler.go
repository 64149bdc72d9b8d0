package health

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dalemusser/groupdrop/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Pinger checks the storage backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Counter reports a gauge such as live groups or in-flight uploads.
type Counter func() int

// Handler holds dependencies needed for health checks.
type Handler struct {
	Storage Pinger
	Groups  Counter
	Uploads Counter
	Log     *zap.Logger
}

// NewHandler constructs a health Handler.
func NewHandler(storage Pinger, groups, uploads Counter, logger *zap.Logger) *Handler {
	return &Handler{
		Storage: storage,
		Groups:  groups,
		Uploads: uploads,
		Log:     logger,
	}
}

// healthResponse is the JSON structure for the health check response.
type healthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
	Groups  int    `json:"groups"`
	Uploads int    `json:"uploads"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Serve handles GET /health.
//
// On success: 200 and
//
//	{ "status":"ok", "storage":"connected", "groups":3, "uploads":1 }
//
// On storage failure: 503 and
//
//	{ "status":"error", "storage":"disconnected", "message":"Storage unavailable", "error":"…" }
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	resp := healthResponse{
		Status:  "ok",
		Storage: "connected",
	}
	if h.Groups != nil {
		resp.Groups = h.Groups()
	}
	if h.Uploads != nil {
		resp.Uploads = h.Uploads()
	}

	if err := h.Storage.Ping(ctx); err != nil {
		h.Log.Error("health-check: storage ping failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		resp.Status = "error"
		resp.Storage = "disconnected"
		resp.Message = "Storage unavailable"
		resp.Error = err.Error()
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	_ = json.NewEncoder(w).Encode(resp)
}
