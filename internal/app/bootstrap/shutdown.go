// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown closes realtime connections, which runs their disconnect
// cleanup, then stops background workers. Group state lives in memory and
// does not survive a restart.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.Groups != nil {
		for _, info := range deps.Groups.List() {
			logger.Info("dropping group",
				zap.String("group_code", info.Code),
				zap.Int("members", info.MemberCount))
		}
	}

	var firstErr error
	if deps.Realtime != nil {
		logger.Info("closing realtime connections", zap.Int("connections", deps.Realtime.Connections()))
		if err := deps.Realtime.Close(ctx); err != nil {
			logger.Error("realtime shutdown incomplete", zap.Error(err))
			firstErr = err
		}
	}
	if deps.Eviction != nil {
		deps.Eviction.Stop()
	}
	if deps.CreateLimiter != nil {
		deps.CreateLimiter.Stop()
	}
	return firstErr
}
