// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/groupdrop/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// EnsureSchema checks the storage backend answers before the first
// upload. The local root was created when the backend was built.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Storage())
	defer cancel()

	if err := deps.Storage.Init(ctx); err != nil {
		logger.Error("storage init failed", zap.Error(err))
		return err
	}
	return nil
}
