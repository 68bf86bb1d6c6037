package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gcs "cloud.google.com/go/storage"
)

// GCSConfig Google Cloud Storage 配置
type GCSConfig struct {
	Bucket string
	Prefix string
}

// GCSProvider 基于 GCS 的存储后端，签名使用 ADC 的服务账号
type GCSProvider struct {
	client *gcs.Client
	bucket string
	prefix string
	now    func() time.Time
}

func NewGCSProvider(ctx context.Context, cfg GCSConfig) (*GCSProvider, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}

	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSProvider{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		now:    time.Now,
	}, nil
}

func (p *GCSProvider) HeadObject(ctx context.Context, key string) (ObjectInfo, error) {
	attrs, err := p.client.Bucket(p.bucket).Object(p.prefix + key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return ObjectInfo{Exists: false}, nil
		}
		return ObjectInfo{}, fmt.Errorf("gcs attrs %s: %w", key, err)
	}
	return ObjectInfo{Exists: true, SizeBytes: attrs.Size}, nil
}

func (p *GCSProvider) PresignDownload(ctx context.Context, key string, ttl time.Duration) (PresignedURL, error) {
	expiresAt := p.now().Add(ttl)
	url, err := p.client.Bucket(p.bucket).SignedURL(p.prefix+key, &gcs.SignedURLOptions{
		Method:  http.MethodGet,
		Expires: expiresAt,
		Scheme:  gcs.SigningSchemeV4,
	})
	if err != nil {
		return PresignedURL{}, fmt.Errorf("gcs sign %s: %w", key, err)
	}
	return PresignedURL{URL: url, ExpiresAt: expiresAt}, nil
}

// Close 释放 GCS 客户端
func (p *GCSProvider) Close() error {
	return p.client.Close()
}
