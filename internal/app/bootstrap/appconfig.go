// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration.
//
// WAFFLE's CoreConfig handles framework-level settings like:
//   - HTTP/HTTPS ports and TLS configuration
//   - Logging level and format
//   - CORS settings
//   - Request body size limits
//
// AppConfig carries everything specific to groupdrop: where group files
// are stored, how large they may be, and how the realtime channel and
// background workers behave.
type AppConfig struct {
	// File storage configuration
	StorageType      string // Storage backend: "local", "s3", "minio" or "memory"
	StorageLocalPath string // Root directory for per-group folders (e.g., "./uploads")

	// S3 configuration (only used if StorageType is "s3")
	StorageS3Region    string // AWS region (or "auto" for R2)
	StorageS3Bucket    string // Bucket name
	StorageS3Prefix    string // Key prefix (e.g., "uploads/")
	StorageS3Endpoint  string // Custom endpoint for S3-compatible services
	StorageS3AccessKey string // Static access key (blank uses the default AWS chain)
	StorageS3SecretKey string // Static secret key

	// MinIO configuration (only used if StorageType is "minio")
	StorageMinIOEndpoint  string
	StorageMinIOAccessKey string
	StorageMinIOSecretKey string
	StorageMinIOBucket    string
	StorageMinIOUseSSL    bool

	// Limits
	MaxUploadSize   int64 // Largest accepted file in bytes, both upload paths
	MaxGroupMembers int   // Upper bound a creator may request for maxMembers
	CreateRateLimit int   // Group creations / join checks per client IP per minute

	// Upload sessions
	UploadIdleTimeout   time.Duration // Stalled chunked uploads are discarded after this
	UploadSweepInterval time.Duration // How often the eviction worker runs
	UploadMaxPerConn    int           // Chunked uploads in progress per connection
	UploadBufferBudget  int64         // Bytes reserved across all in-progress uploads

	// Timeouts
	StorageTimeout time.Duration // Bound on one storage flush, read or delete

	// Realtime channel
	WSWriteTimeout   time.Duration // Per-frame write deadline
	WSSendBuffer     int           // Outbound frames queued per connection
	WSAllowedOrigins []string      // Allowed browser origins (empty: same-origin)
}
