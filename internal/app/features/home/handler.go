package home

import (
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Handler serves the browser client's entry page.
type Handler struct {
	Root string
	Log  *zap.Logger
}

// NewHandler serves index.html from root (the public directory).
func NewHandler(root string, logger *zap.Logger) *Handler {
	return &Handler{
		Root: root,
		Log:  logger,
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET / – landing                                                             |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeRoot(w http.ResponseWriter, r *http.Request) {
	index := filepath.Join(h.Root, "index.html")
	if _, err := os.Stat(index); err != nil {
		h.Log.Error("client page missing", zap.String("path", index), zap.Error(err))
		http.Error(w, "client not installed", http.StatusNotFound)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, index)
}
