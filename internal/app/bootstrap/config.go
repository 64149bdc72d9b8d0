// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/groupdrop/internal/app/system/limits"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for groupdrop.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: storage_type, max_upload_size, etc.
//   - Environment variables: GROUPDROP_STORAGE_TYPE, GROUPDROP_MAX_UPLOAD_SIZE, etc.
//   - Command-line flags: --storage_type, --max_upload_size, etc.
var appConfigKeys = []config.AppKey{
	// File storage configuration
	{Name: "storage_type", Default: "local", Desc: "Storage backend: 'local', 's3', 'minio' or 'memory'"},
	{Name: "storage_local_path", Default: "./uploads", Desc: "Local storage root for group folders"},

	// S3 configuration
	{Name: "storage_s3_region", Default: "", Desc: "AWS region for S3"},
	{Name: "storage_s3_bucket", Default: "", Desc: "S3 bucket name"},
	{Name: "storage_s3_prefix", Default: "uploads/", Desc: "S3 key prefix"},
	{Name: "storage_s3_endpoint", Default: "", Desc: "Custom S3 endpoint (R2, gateways)"},
	{Name: "storage_s3_access_key", Default: "", Desc: "S3 access key (blank uses the default credential chain)"},
	{Name: "storage_s3_secret_key", Default: "", Desc: "S3 secret key"},

	// MinIO configuration
	{Name: "storage_minio_endpoint", Default: "localhost:9000", Desc: "MinIO endpoint host:port"},
	{Name: "storage_minio_access_key", Default: "", Desc: "MinIO access key"},
	{Name: "storage_minio_secret_key", Default: "", Desc: "MinIO secret key"},
	{Name: "storage_minio_bucket", Default: "groupdrop", Desc: "MinIO bucket name"},
	{Name: "storage_minio_use_ssl", Default: false, Desc: "Use TLS for MinIO"},

	// Limits
	{Name: "max_upload_size", Default: int(limits.DefaultMaxUploadSize), Desc: "Largest accepted file in bytes"},
	{Name: "max_group_members", Default: limits.DefaultMaxGroupMembers, Desc: "Largest maxMembers a group may request"},
	{Name: "create_rate_limit", Default: 30, Desc: "Group creations and join checks per client IP per minute"},

	// Upload sessions
	{Name: "upload_idle_timeout", Default: "10m", Desc: "Discard chunked uploads idle this long (e.g., 10m)"},
	{Name: "upload_sweep_interval", Default: "1m", Desc: "How often idle uploads are swept"},
	{Name: "upload_max_per_conn", Default: limits.DefaultUploadsPerConn, Desc: "Chunked uploads one connection may have in progress"},
	{Name: "upload_buffer_budget", Default: int(limits.DefaultUploadBuffer), Desc: "Bytes all in-progress chunked uploads may reserve"},

	// Timeouts
	{Name: "storage_timeout", Default: "60s", Desc: "Bound on one storage flush, read or delete"},

	// Realtime channel
	{Name: "ws_write_timeout", Default: "10s", Desc: "Websocket per-frame write deadline"},
	{Name: "ws_send_buffer", Default: 64, Desc: "Outbound frames queued per websocket connection"},
	{Name: "ws_allowed_origins", Default: "", Desc: "Comma-separated allowed origins (blank: same-origin; any in dev)"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// It is called early in startup so that both WAFFLE and the app have
// access to configuration before any backends or handlers are built.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, GROUPDROP_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "GROUPDROP", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		// File storage
		StorageType:      strings.ToLower(strings.TrimSpace(appValues.String("storage_type"))),
		StorageLocalPath: appValues.String("storage_local_path"),

		// S3
		StorageS3Region:    appValues.String("storage_s3_region"),
		StorageS3Bucket:    appValues.String("storage_s3_bucket"),
		StorageS3Prefix:    appValues.String("storage_s3_prefix"),
		StorageS3Endpoint:  appValues.String("storage_s3_endpoint"),
		StorageS3AccessKey: appValues.String("storage_s3_access_key"),
		StorageS3SecretKey: appValues.String("storage_s3_secret_key"),

		// MinIO
		StorageMinIOEndpoint:  appValues.String("storage_minio_endpoint"),
		StorageMinIOAccessKey: appValues.String("storage_minio_access_key"),
		StorageMinIOSecretKey: appValues.String("storage_minio_secret_key"),
		StorageMinIOBucket:    appValues.String("storage_minio_bucket"),
		StorageMinIOUseSSL:    appValues.Bool("storage_minio_use_ssl"),

		// Limits
		MaxUploadSize:   int64(appValues.Int("max_upload_size")),
		MaxGroupMembers: appValues.Int("max_group_members"),
		CreateRateLimit: appValues.Int("create_rate_limit"),

		// Upload sessions
		UploadIdleTimeout:   appValues.Duration("upload_idle_timeout", 10*time.Minute),
		UploadSweepInterval: appValues.Duration("upload_sweep_interval", time.Minute),
		UploadMaxPerConn:    appValues.Int("upload_max_per_conn"),
		UploadBufferBudget:  int64(appValues.Int("upload_buffer_budget")),

		// Timeouts
		StorageTimeout: appValues.Duration("storage_timeout", 60*time.Second),

		// Realtime
		WSWriteTimeout:   appValues.Duration("ws_write_timeout", 10*time.Second),
		WSSendBuffer:     appValues.Int("ws_send_buffer"),
		WSAllowedOrigins: splitList(appValues.String("ws_allowed_origins")),
	}

	return coreCfg, appCfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// groupdrop checks that the chosen storage backend is fully described and
// that every limit and duration is positive, so misconfiguration fails
// before any backend is contacted.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	switch appCfg.StorageType {
	case "", "local":
		if strings.TrimSpace(appCfg.StorageLocalPath) == "" {
			return fmt.Errorf("storage_local_path is required for local storage")
		}
	case "s3":
		if appCfg.StorageS3Bucket == "" {
			return fmt.Errorf("storage_s3_bucket is required for s3 storage")
		}
		if appCfg.StorageS3Region == "" && appCfg.StorageS3Endpoint == "" {
			return fmt.Errorf("storage_s3_region or storage_s3_endpoint is required for s3 storage")
		}
		if (appCfg.StorageS3AccessKey == "") != (appCfg.StorageS3SecretKey == "") {
			return fmt.Errorf("storage_s3_access_key and storage_s3_secret_key must be set together")
		}
	case "minio":
		if appCfg.StorageMinIOEndpoint == "" || appCfg.StorageMinIOBucket == "" {
			return fmt.Errorf("storage_minio_endpoint and storage_minio_bucket are required for minio storage")
		}
	case "memory":
		logger.Warn("memory storage selected; files are lost on restart")
	default:
		return fmt.Errorf("unknown storage_type %q (want local, s3, minio or memory)", appCfg.StorageType)
	}

	positive := []struct {
		name string
		ok   bool
	}{
		{"max_upload_size", appCfg.MaxUploadSize > 0},
		{"max_group_members", appCfg.MaxGroupMembers > 0},
		{"create_rate_limit", appCfg.CreateRateLimit > 0},
		{"upload_idle_timeout", appCfg.UploadIdleTimeout > 0},
		{"upload_sweep_interval", appCfg.UploadSweepInterval > 0},
		{"upload_max_per_conn", appCfg.UploadMaxPerConn > 0},
		{"upload_buffer_budget", appCfg.UploadBufferBudget > 0},
		{"storage_timeout", appCfg.StorageTimeout > 0},
		{"ws_write_timeout", appCfg.WSWriteTimeout > 0},
		{"ws_send_buffer", appCfg.WSSendBuffer > 0},
	}
	for _, p := range positive {
		if !p.ok {
			return fmt.Errorf("%s must be positive", p.name)
		}
	}
	if appCfg.UploadBufferBudget < appCfg.MaxUploadSize {
		return fmt.Errorf("upload_buffer_budget (%d) must be at least max_upload_size (%d)", appCfg.UploadBufferBudget, appCfg.MaxUploadSize)
	}
	return nil
}
