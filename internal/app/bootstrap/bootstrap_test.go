package bootstrap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

func validConfig() AppConfig {
	return AppConfig{
		StorageType:         "memory",
		StorageLocalPath:    "./uploads",
		MaxUploadSize:       1 << 20,
		MaxGroupMembers:     10,
		CreateRateLimit:     30,
		UploadIdleTimeout:   10 * time.Minute,
		UploadSweepInterval: time.Minute,
		UploadMaxPerConn:    4,
		UploadBufferBudget:  8 << 20,
		StorageTimeout:      time.Minute,
		WSWriteTimeout:      10 * time.Second,
		WSSendBuffer:        64,
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{"memory", func(c *AppConfig) {}, ""},
		{"local", func(c *AppConfig) { c.StorageType = "local" }, ""},
		{"local without path", func(c *AppConfig) { c.StorageType = "local"; c.StorageLocalPath = " " }, "storage_local_path"},
		{"s3 without bucket", func(c *AppConfig) { c.StorageType = "s3"; c.StorageS3Region = "us-east-1" }, "storage_s3_bucket"},
		{"s3 without region", func(c *AppConfig) { c.StorageType = "s3"; c.StorageS3Bucket = "b" }, "storage_s3_region"},
		{"s3 half keys", func(c *AppConfig) {
			c.StorageType = "s3"
			c.StorageS3Bucket = "b"
			c.StorageS3Region = "us-east-1"
			c.StorageS3AccessKey = "AK"
		}, "set together"},
		{"s3 complete", func(c *AppConfig) {
			c.StorageType = "s3"
			c.StorageS3Bucket = "b"
			c.StorageS3Endpoint = "https://r2.example.com"
		}, ""},
		{"minio without bucket", func(c *AppConfig) { c.StorageType = "minio"; c.StorageMinIOEndpoint = "localhost:9000" }, "storage_minio"},
		{"unknown type", func(c *AppConfig) { c.StorageType = "ftp" }, "unknown storage_type"},
		{"zero upload size", func(c *AppConfig) { c.MaxUploadSize = 0 }, "max_upload_size"},
		{"zero members", func(c *AppConfig) { c.MaxGroupMembers = 0 }, "max_group_members"},
		{"zero send buffer", func(c *AppConfig) { c.WSSendBuffer = 0 }, "ws_send_buffer"},
		{"negative idle timeout", func(c *AppConfig) { c.UploadIdleTimeout = -time.Second }, "upload_idle_timeout"},
		{"zero uploads per conn", func(c *AppConfig) { c.UploadMaxPerConn = 0 }, "upload_max_per_conn"},
		{"budget below one file", func(c *AppConfig) { c.UploadBufferBudget = c.MaxUploadSize - 1 }, "upload_buffer_budget"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := ValidateConfig(&config.CoreConfig{}, cfg, zap.NewNop())
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("got %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" https://a.example , ,https://b.example")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Errorf("got %q", got)
	}
	if got := splitList(""); got != nil {
		t.Errorf("empty: got %q, want nil", got)
	}
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	coreCfg := &config.CoreConfig{Env: "dev"}
	appCfg := validConfig()
	logger := zap.NewNop()

	deps, err := ConnectDB(ctx, coreCfg, appCfg, logger)
	if err != nil {
		t.Fatalf("ConnectDB: %v", err)
	}
	if err := EnsureSchema(ctx, coreCfg, appCfg, deps, logger); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if err := Startup(ctx, coreCfg, appCfg, deps, logger); err != nil {
		t.Fatalf("Startup: %v", err)
	}
	h, err := BuildHandler(coreCfg, appCfg, deps, logger)
	if err != nil {
		t.Fatalf("BuildHandler: %v", err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health: got %d, want %d", rec.Code, http.StatusOK)
	}
	var health map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health["status"] != "ok" {
		t.Errorf("status: got %v, want %q", health["status"], "ok")
	}

	body := `{"groupName":"Team A","groupCode":"T1","maxMembers":2}`
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/create-group", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("create-group: got %d, want %d (%s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if deps.Groups.Count() != 1 {
		t.Errorf("groups: got %d, want 1", deps.Groups.Count())
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := Shutdown(shutdownCtx, coreCfg, appCfg, deps, logger); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestNewObjectStore(t *testing.T) {
	ctx := context.Background()

	cfg := validConfig()
	store, err := newObjectStore(ctx, cfg)
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if store.Backend() != "memory" {
		t.Errorf("memory backend: got %q", store.Backend())
	}

	cfg.StorageType = "local"
	cfg.StorageLocalPath = t.TempDir()
	store, err = newObjectStore(ctx, cfg)
	if err != nil {
		t.Fatalf("local: %v", err)
	}
	if store.Backend() != "local" {
		t.Errorf("local backend: got %q", store.Backend())
	}

	cfg.StorageType = "ftp"
	if _, err := newObjectStore(ctx, cfg); err == nil {
		t.Error("expected an unknown storage type to fail")
	}
}

func TestMinioEndpoint(t *testing.T) {
	tests := []struct {
		hostport string
		ssl      bool
		want     string
	}{
		{"localhost:9000", false, "http://localhost:9000"},
		{"minio.internal:9000", true, "https://minio.internal:9000"},
		{"https://minio.example.com", false, "https://minio.example.com"},
	}
	for _, tt := range tests {
		if got := minioEndpoint(tt.hostport, tt.ssl); got != tt.want {
			t.Errorf("minioEndpoint(%q, %v) = %q, want %q", tt.hostport, tt.ssl, got, tt.want)
		}
	}
}
