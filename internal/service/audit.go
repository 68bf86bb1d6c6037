package service

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"license-lease-system/internal/model"
)

// AuditMirror 审计事件的异步副本，例如表格同步。失败不影响主流程
type AuditMirror interface {
	Mirror(event *model.ArtifactDownloadAuditEvent)
}

// AuditSink 下载审计写入端
type AuditSink interface {
	Append(ctx context.Context, event *model.ArtifactDownloadAuditEvent) error
}

// AuditStore 追加写入的下载审计表
type AuditStore struct {
	db     *gorm.DB
	mirror AuditMirror
	logger *slog.Logger
}

func NewAuditStore(db *gorm.DB, mirror AuditMirror, opts ...Option) *AuditStore {
	o := buildOptions(opts)
	return &AuditStore{db: db, mirror: mirror, logger: o.logger}
}

// Append 写入一条审计事件
func (s *AuditStore) Append(ctx context.Context, event *model.ArtifactDownloadAuditEvent) error {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("append download audit event: %w", err)
	}
	if s.mirror != nil {
		s.mirror.Mirror(event)
	}
	return nil
}

// AuditQuery 审计查询条件
type AuditQuery struct {
	Page     int
	PageSize int
	Result   string
	LeaseID  string
}

// ListAuditEvents 按时间倒序分页查询租户内的审计事件
func (s *AuditStore) ListAuditEvents(ctx context.Context, tenantID string, q AuditQuery) ([]model.ArtifactDownloadAuditEvent, int64, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 20
	}
	// 限制页面大小
	if q.PageSize > 100 {
		q.PageSize = 100
	}

	base := func() *gorm.DB {
		db := s.db.WithContext(ctx).Model(&model.ArtifactDownloadAuditEvent{}).Where("tenant_id = ?", tenantID)
		if q.Result != "" {
			db = db.Where("result = ?", q.Result)
		}
		if q.LeaseID != "" {
			db = db.Where("lease_id = ?", q.LeaseID)
		}
		return db
	}

	// 获取总数
	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count audit events: %w", err)
	}

	// 获取分页数据
	var events []model.ArtifactDownloadAuditEvent
	offset := (q.Page - 1) * q.PageSize
	if err := base().Order("created_at DESC").Order("id DESC").Offset(offset).Limit(q.PageSize).Find(&events).Error; err != nil {
		return nil, 0, fmt.Errorf("list audit events: %w", err)
	}
	return events, total, nil
}
