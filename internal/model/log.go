package model

import (
	"time"

	"gorm.io/datatypes"
)

// 下载审计事件类型与结果
const (
	AuditEventResolveSuccess = "resolve_success"
	AuditEventResolveDenied  = "resolve_denied"

	AuditResultAllowed = "allowed"
	AuditResultDenied  = "denied"
	AuditResultError   = "error"
)

// ArtifactDownloadAuditEvent 每次下载解析（成功或失败）写入且仅写入一条
type ArtifactDownloadAuditEvent struct {
	ID             uint              `json:"id" gorm:"primaryKey"`
	TenantID       string            `json:"tenant_id" gorm:"not null;index"`
	LeaseID        string            `json:"lease_id" gorm:"index"`
	LeaseJti       string            `json:"lease_jti"`
	UserID         string            `json:"user_id"`
	VmUuid         string            `json:"vm_uuid"`
	Module         string            `json:"module"`
	Platform       string            `json:"platform"`
	Channel        string            `json:"channel"`
	ReleaseID      *uint             `json:"release_id"`
	EventType      string            `json:"event_type" gorm:"not null"`
	Result         string            `json:"result" gorm:"not null;index"`
	Reason         *string           `json:"reason"`
	RequestIP      string            `json:"request_ip"`
	UrlExpiresAtMs *int64            `json:"url_expires_at_ms"`
	Metadata       datatypes.JSONMap `json:"metadata" gorm:"type:text"`
	CreatedAt      time.Time         `json:"created_at" gorm:"index"`
}
