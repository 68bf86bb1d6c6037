package model

import (
	"time"

	"gorm.io/datatypes"
)

// VM 状态
const (
	VmStatusActive  = "active"
	VmStatusPaused  = "paused"
	VmStatusRevoked = "revoked"
)

// VmRegistration 租户内登记的虚拟机，(tenant_id, vm_uuid) 唯一
type VmRegistration struct {
	ID        uint              `json:"id" gorm:"primaryKey"`
	TenantID  string            `json:"tenant_id" gorm:"not null;uniqueIndex:idx_vm_tenant_uuid,priority:1"`
	VmUuid    string            `json:"vm_uuid" gorm:"not null;uniqueIndex:idx_vm_tenant_uuid,priority:2"`
	UserID    string            `json:"user_id" gorm:"index"`
	VmName    string            `json:"vm_name"`
	ProjectID string            `json:"project_id"`
	Status    string            `json:"status" gorm:"not null;default:active"`
	Metadata  datatypes.JSONMap `json:"metadata" gorm:"type:text"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
