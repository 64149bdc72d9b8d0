// internal/app/bootstrap/connect.go
package bootstrap

import (
	"context"

	realtimefeature "github.com/dalemusser/groupdrop/internal/app/features/realtime"
	groupstore "github.com/dalemusser/groupdrop/internal/app/store/groups"
	"github.com/dalemusser/groupdrop/internal/app/system/broadcast"
	"github.com/dalemusser/groupdrop/internal/app/system/filestore"
	"github.com/dalemusser/groupdrop/internal/app/system/membership"
	"github.com/dalemusser/groupdrop/internal/app/system/ratelimit"
	"github.com/dalemusser/groupdrop/internal/app/system/reassembly"
	"github.com/dalemusser/groupdrop/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// ConnectDB builds the storage backend and the in-memory services that
// sit on top of it.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	objects, err := newObjectStore(ctx, appCfg)
	if err != nil {
		logger.Error("storage backend init failed", zap.Error(err))
		return DBDeps{}, err
	}
	storage := filestore.New(objects, logger)

	groups := groupstore.New(storage, logger)
	hub := broadcast.NewHub(logger)
	members := membership.New(groups, hub, logger)
	uploads := reassembly.New(storage, members, reassembly.Limits{
		MaxFileSize: appCfg.MaxUploadSize,
		MaxPerConn:  appCfg.UploadMaxPerConn,
		MaxBuffered: appCfg.UploadBufferBudget,
	}, logger)

	rt := realtimefeature.NewHandler(members, uploads, realtimefeature.Options{
		AllowedOrigins: appCfg.WSAllowedOrigins,
		AllowAnyOrigin: coreCfg.Env == "dev",
		SendBuffer:     appCfg.WSSendBuffer,
		WriteTimeout:   appCfg.WSWriteTimeout,
	}, logger)

	logger.Info("storage backend ready", zap.String("storage_type", appCfg.StorageType))
	return DBDeps{
		Storage:       storage,
		Groups:        groups,
		Hub:           hub,
		Members:       members,
		Uploads:       uploads,
		Realtime:      rt,
		Eviction:      workers.NewUploadEviction(uploads, logger, appCfg.UploadSweepInterval, appCfg.UploadIdleTimeout),
		CreateLimiter: ratelimit.New(appCfg.CreateRateLimit),
	}, nil
}
