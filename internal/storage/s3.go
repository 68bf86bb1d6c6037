package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config S3 兼容存储配置
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string // 可选，MinIO 等自建服务
	Prefix   string // 可选，对象键前缀
}

// S3Provider 基于 S3 的存储后端
type S3Provider struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	prefix    string
	now       func() time.Time
}

// NewS3Provider 使用默认 AWS 凭证链创建 S3Provider
func NewS3Provider(ctx context.Context, cfg S3Config) (*S3Provider, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Provider{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
		prefix:    cfg.Prefix,
		now:       time.Now,
	}, nil
}

func (p *S3Provider) HeadObject(ctx context.Context, key string) (ObjectInfo, error) {
	out, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.prefix + key),
	})
	if err != nil {
		var notFound *types.NotFound
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
			return ObjectInfo{Exists: false}, nil
		}
		return ObjectInfo{}, fmt.Errorf("s3 head %s: %w", key, err)
	}

	return ObjectInfo{Exists: true, SizeBytes: aws.ToInt64(out.ContentLength)}, nil
}

func (p *S3Provider) PresignDownload(ctx context.Context, key string, ttl time.Duration) (PresignedURL, error) {
	issuedAt := p.now()
	req, err := p.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.prefix + key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return PresignedURL{}, fmt.Errorf("s3 presign %s: %w", key, err)
	}

	return PresignedURL{URL: req.URL, ExpiresAt: issuedAt.Add(ttl)}, nil
}
