package model

import "time"

// 制品发布状态，只有 active 可被解析下载
const (
	ReleaseStatusDraft    = "draft"
	ReleaseStatusActive   = "active"
	ReleaseStatusDisabled = "disabled"
	ReleaseStatusArchived = "archived"
)

const DefaultChannel = "stable"

// ArtifactRelease 受保护制品的一个发布版本
type ArtifactRelease struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	TenantID  string    `json:"tenant_id" gorm:"not null;index:idx_release_scope,priority:1"`
	Module    string    `json:"module" gorm:"not null;index:idx_release_scope,priority:2"`
	Platform  string    `json:"platform" gorm:"not null;index:idx_release_scope,priority:3"`
	Channel   string    `json:"channel" gorm:"not null;index:idx_release_scope,priority:4"`
	Version   string    `json:"version" gorm:"not null"`
	ObjectKey string    `json:"object_key" gorm:"not null"`
	Sha256    string    `json:"sha256" gorm:"size:64"`
	SizeBytes int64     `json:"size_bytes"`
	Status    string    `json:"status" gorm:"not null"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ArtifactAssignment 指定某个作用域使用的发布版本。UserID 为 nil 时是租户默认分配
type ArtifactAssignment struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	TenantID   string    `json:"tenant_id" gorm:"not null;index:idx_assignment_scope,priority:1"`
	Module     string    `json:"module" gorm:"not null;index:idx_assignment_scope,priority:2"`
	Platform   string    `json:"platform" gorm:"not null;index:idx_assignment_scope,priority:3"`
	Channel    string    `json:"channel" gorm:"not null;index:idx_assignment_scope,priority:4"`
	UserID     *string   `json:"user_id" gorm:"index:idx_assignment_scope,priority:5"`
	ReleaseID  uint      `json:"release_id" gorm:"not null"`
	IsDefault  bool      `json:"is_default"`
	AssignedBy string    `json:"assigned_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
