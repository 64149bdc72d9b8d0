// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/groupdrop/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs one-time application initialization after backends are
// ready and before the HTTP handler is built: it applies configured
// timeouts and starts background workers.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{Storage: appCfg.StorageTimeout})
	if deps.Eviction != nil {
		deps.Eviction.Start()
	}
	return nil
}
