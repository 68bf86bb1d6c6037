package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

const (
	DefaultLeaseTTLSeconds   = 300
	MinLeaseTTLSeconds       = 60
	DefaultPresignTTLSeconds = 300
	MinPresignTTLSeconds     = 60
	// S3 预签名 URL 的上限为 7 天
	MaxPresignTTLSeconds = 7 * 24 * 3600
)

// 存储后端
const (
	StorageS3     = "s3"
	StorageGCS    = "gcs"
	StorageMemory = "memory"
)

// Config 服务配置，由 main 构造后显式注入各组件
type Config struct {
	ListenAddr   string
	DatabasePath string

	LeaseSigningSecret string
	LeaseTTLSeconds    int
	LeaseIssuer        string
	PresignTTLSeconds  int

	SessionSecret   string
	SessionTTLHours int
	PrivilegedRoles []string

	StorageProvider string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3Prefix        string
	GCSBucket       string
	GCSPrefix       string

	SheetSyncEnabled    bool
	SheetCredentialPath string
	SheetSpreadsheetID  string
	SheetName           string

	BootstrapTenantID      string
	BootstrapAdminUsername string
	BootstrapAdminPassword string

	LogLevel  string
	LogFormat string
}

// Default 默认配置
func Default() *Config {
	return &Config{
		ListenAddr:             ":8080",
		DatabasePath:           "data/lease.db",
		LeaseTTLSeconds:        DefaultLeaseTTLSeconds,
		LeaseIssuer:            "license-lease-system",
		PresignTTLSeconds:      DefaultPresignTTLSeconds,
		SessionTTLHours:        24,
		PrivilegedRoles:        []string{"admin"},
		StorageProvider:        StorageS3,
		S3Region:               "us-east-1",
		SheetName:              "audit",
		BootstrapTenantID:      "default",
		BootstrapAdminUsername: "admin",
		LogLevel:               "info",
		LogFormat:              "text",
	}
}

// FromEnv 从环境变量加载配置
func FromEnv() *Config {
	cfg := Default()

	cfg.ListenAddr = envOrDefault("LISTEN_ADDR", cfg.ListenAddr)
	cfg.DatabasePath = envOrDefault("DATABASE_PATH", cfg.DatabasePath)

	cfg.LeaseSigningSecret = os.Getenv("LEASE_SIGNING_SECRET")
	cfg.LeaseTTLSeconds = envInt("LEASE_TTL_SECONDS", cfg.LeaseTTLSeconds)
	cfg.LeaseIssuer = envOrDefault("LEASE_ISSUER", cfg.LeaseIssuer)
	cfg.PresignTTLSeconds = envInt("ARTIFACT_PRESIGN_TTL_SECONDS", cfg.PresignTTLSeconds)

	cfg.SessionSecret = os.Getenv("SESSION_JWT_SECRET")
	cfg.SessionTTLHours = envInt("SESSION_TTL_HOURS", cfg.SessionTTLHours)
	if v := os.Getenv("PRIVILEGED_ROLES"); v != "" {
		cfg.PrivilegedRoles = splitList(v)
	}

	cfg.StorageProvider = envOrDefault("ARTIFACT_STORAGE_PROVIDER", cfg.StorageProvider)
	cfg.S3Bucket = os.Getenv("ARTIFACT_S3_BUCKET")
	cfg.S3Region = envOrDefault("ARTIFACT_S3_REGION", envOrDefault("AWS_REGION", cfg.S3Region))
	cfg.S3Endpoint = os.Getenv("ARTIFACT_S3_ENDPOINT")
	cfg.S3Prefix = os.Getenv("ARTIFACT_S3_PREFIX")
	cfg.GCSBucket = os.Getenv("ARTIFACT_GCS_BUCKET")
	cfg.GCSPrefix = os.Getenv("ARTIFACT_GCS_PREFIX")

	if v := os.Getenv("AUDIT_SHEET_SYNC_ENABLED"); v != "" {
		cfg.SheetSyncEnabled, _ = strconv.ParseBool(v)
	}
	cfg.SheetCredentialPath = os.Getenv("AUDIT_SHEET_CREDENTIALS")
	cfg.SheetSpreadsheetID = os.Getenv("AUDIT_SHEET_SPREADSHEET_ID")
	cfg.SheetName = envOrDefault("AUDIT_SHEET_NAME", cfg.SheetName)

	cfg.BootstrapTenantID = envOrDefault("BOOTSTRAP_TENANT_ID", cfg.BootstrapTenantID)
	cfg.BootstrapAdminUsername = envOrDefault("BOOTSTRAP_ADMIN_USERNAME", cfg.BootstrapAdminUsername)
	cfg.BootstrapAdminPassword = os.Getenv("BOOTSTRAP_ADMIN_PASSWORD")

	cfg.LogLevel = envOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envOrDefault("LOG_FORMAT", cfg.LogFormat)

	return cfg
}

// BindFlags 注册命令行参数，命令行优先于环境变量
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.ListenAddr, "listen", c.ListenAddr, "HTTP listen address")
	fs.StringVar(&c.DatabasePath, "db", c.DatabasePath, "sqlite database path")
	fs.IntVar(&c.LeaseTTLSeconds, "lease-ttl", c.LeaseTTLSeconds, "execution lease TTL in seconds (min 60)")
	fs.IntVar(&c.PresignTTLSeconds, "presign-ttl", c.PresignTTLSeconds, "artifact download URL TTL in seconds")
	fs.StringVar(&c.StorageProvider, "storage", c.StorageProvider, "artifact storage provider (s3, gcs or memory)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format (text or json)")
}

// Validate 校验存储等启动期必需的配置
func (c *Config) Validate() error {
	switch c.StorageProvider {
	case StorageS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("ARTIFACT_S3_BUCKET is required for s3 storage")
		}
	case StorageGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("ARTIFACT_GCS_BUCKET is required for gcs storage")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unsupported artifact storage provider: %s", c.StorageProvider)
	}
	if c.SheetSyncEnabled && (c.SheetCredentialPath == "" || c.SheetSpreadsheetID == "") {
		return fmt.Errorf("audit sheet sync requires AUDIT_SHEET_CREDENTIALS and AUDIT_SHEET_SPREADSHEET_ID")
	}
	return nil
}

// LeaseTTL 租约有效期，至少 60 秒
func (c *Config) LeaseTTL() time.Duration {
	ttl := c.LeaseTTLSeconds
	if ttl <= 0 {
		ttl = DefaultLeaseTTLSeconds
	}
	if ttl < MinLeaseTTLSeconds {
		ttl = MinLeaseTTLSeconds
	}
	return time.Duration(ttl) * time.Second
}

// PresignTTL 下载链接有效期
func (c *Config) PresignTTL() time.Duration {
	ttl := c.PresignTTLSeconds
	if ttl <= 0 {
		ttl = DefaultPresignTTLSeconds
	}
	if ttl < MinPresignTTLSeconds {
		ttl = MinPresignTTLSeconds
	}
	if ttl > MaxPresignTTLSeconds {
		ttl = MaxPresignTTLSeconds
	}
	return time.Duration(ttl) * time.Second
}

// SessionTTL 管理端会话令牌有效期
func (c *Config) SessionTTL() time.Duration {
	if c.SessionTTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.SessionTTLHours) * time.Hour
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
