// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	errorsfeature "github.com/dalemusser/groupdrop/internal/app/features/errors"
	filesfeature "github.com/dalemusser/groupdrop/internal/app/features/files"
	groupsfeature "github.com/dalemusser/groupdrop/internal/app/features/groups"
	healthfeature "github.com/dalemusser/groupdrop/internal/app/features/health"
	homefeature "github.com/dalemusser/groupdrop/internal/app/features/home"
	realtimefeature "github.com/dalemusser/groupdrop/internal/app/features/realtime"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/pantry/fileserver"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// publicDir holds the browser client and its static assets.
const publicDir = "public"

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, backend connections, schema setup,
// and any Startup hooks have completed. At this point you have access to:
//   - coreCfg: WAFFLE core configuration (ports, env, timeouts, etc.)
//   - appCfg: app-specific configuration defined in AppConfig
//   - deps: the storage backend and in-memory services bundled in DBDeps
//   - logger: the fully configured zap.Logger for this app
//
// groupdrop mounts the browser client, the JSON group endpoints, the
// multipart upload and download endpoints, and the realtime websocket.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	// Create error logger for handlers.
	errLog := errorsfeature.NewErrorLogger(logger)

	r := chi.NewRouter()

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.Storage, deps.Groups.Count, deps.Uploads.Active, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	// Static assets with pre-compressed file support (gzip/brotli)
	r.Handle("/static/*", fileserver.Handler("/static", publicDir))

	// Browser client
	homeHandler := homefeature.NewHandler(publicDir, logger)
	r.Mount("/", homefeature.Routes(homeHandler))

	// Group creation and join checks, rate limited per client IP
	var limit func(http.Handler) http.Handler
	if deps.CreateLimiter != nil {
		limit = deps.CreateLimiter.Middleware
	}
	groupsHandler := groupsfeature.NewHandler(deps.Groups, deps.Members, appCfg.MaxGroupMembers, errLog, logger)
	groupsfeature.MountRoutes(r, groupsHandler, limit)

	// Whole-file upload and download
	filesHandler := filesfeature.NewHandler(deps.Groups, deps.Members, deps.Storage, appCfg.MaxUploadSize, errLog, logger)
	filesfeature.MountRoutes(r, filesHandler)

	// Realtime channel: membership, group-log broadcasts, chunked uploads
	realtimefeature.MountRoutes(r, deps.Realtime)

	return r, nil
}
