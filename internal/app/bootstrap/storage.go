// internal/app/bootstrap/storage.go
package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/dalemusser/waffle/pantry/storage"
)

// newObjectStore builds the object store named by storage_type. MinIO is
// reached through the S3 client with path-style addressing.
func newObjectStore(ctx context.Context, appCfg AppConfig) (storage.Store, error) {
	switch appCfg.StorageType {
	case "", "local":
		return storage.NewLocal(storage.LocalConfig{BasePath: appCfg.StorageLocalPath})
	case "s3":
		return storage.NewS3(ctx, storage.S3Config{
			Bucket:          appCfg.StorageS3Bucket,
			Region:          appCfg.StorageS3Region,
			AccessKeyID:     appCfg.StorageS3AccessKey,
			SecretAccessKey: appCfg.StorageS3SecretKey,
			Endpoint:        appCfg.StorageS3Endpoint,
			UsePathStyle:    appCfg.StorageS3Endpoint != "",
			Prefix:          strings.Trim(appCfg.StorageS3Prefix, "/"),
		})
	case "minio":
		return storage.NewS3(ctx, storage.S3Config{
			Bucket:          appCfg.StorageMinIOBucket,
			Region:          "us-east-1",
			AccessKeyID:     appCfg.StorageMinIOAccessKey,
			SecretAccessKey: appCfg.StorageMinIOSecretKey,
			Endpoint:        minioEndpoint(appCfg.StorageMinIOEndpoint, appCfg.StorageMinIOUseSSL),
			UsePathStyle:    true,
		})
	case "memory":
		return storage.NewMemory(storage.MemoryConfig{}), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", appCfg.StorageType)
	}
}

// minioEndpoint turns a host:port into the URL the S3 client expects.
func minioEndpoint(hostport string, useSSL bool) string {
	if strings.Contains(hostport, "://") {
		return hostport
	}
	if useSSL {
		return "https://" + hostport
	}
	return "http://" + hostport
}
