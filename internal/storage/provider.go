// Package storage 封装制品对象存储：确认对象存在并生成限时下载链接。
package storage

import (
	"context"
	"fmt"
	"time"

	"license-lease-system/internal/config"
)

// ObjectInfo HeadObject 的结果，对象不存在时 Exists 为 false 且不返回错误
type ObjectInfo struct {
	Exists    bool
	SizeBytes int64
}

// PresignedURL 限时下载链接
type PresignedURL struct {
	URL       string
	ExpiresAt time.Time
}

// Provider 对象存储后端
type Provider interface {
	HeadObject(ctx context.Context, key string) (ObjectInfo, error)
	PresignDownload(ctx context.Context, key string, ttl time.Duration) (PresignedURL, error)
}

// NewFromConfig 按配置创建存储后端
func NewFromConfig(ctx context.Context, cfg *config.Config) (Provider, error) {
	switch cfg.StorageProvider {
	case config.StorageS3:
		return NewS3Provider(ctx, S3Config{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
			Prefix:   cfg.S3Prefix,
		})
	case config.StorageGCS:
		return NewGCSProvider(ctx, GCSConfig{
			Bucket: cfg.GCSBucket,
			Prefix: cfg.GCSPrefix,
		})
	case config.StorageMemory:
		return NewMemoryProvider("memory"), nil
	default:
		return nil, fmt.Errorf("unsupported artifact storage provider: %s", cfg.StorageProvider)
	}
}
