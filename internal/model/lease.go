package model

// 租约状态
const (
	LeaseStatusActive  = "active"
	LeaseStatusRevoked = "revoked"
)

// ExecutionLease 已签发的执行租约，ID 即令牌中的 jti。记录只会被心跳和吊销修改，不会删除
type ExecutionLease struct {
	ID                string `json:"lease_id" gorm:"primaryKey;size:36"`
	TenantID          string `json:"tenant_id" gorm:"not null;index"`
	Token             string `json:"-" gorm:"type:text"`
	Status            string `json:"status" gorm:"not null;index"`
	CreatedAtMs       int64  `json:"created_at_ms"`
	ExpiresAtMs       int64  `json:"expires_at_ms"`
	LastHeartbeatAtMs int64  `json:"last_heartbeat_at_ms"`
	UserID            string `json:"user_id" gorm:"index"`
	VmUuid            string `json:"vm_uuid" gorm:"index"`
	VmName            string `json:"vm_name"`
	Module            string `json:"module"`
	Version           string `json:"version"`
	AgentID           string `json:"agent_id"`
	RunnerID          string `json:"runner_id"`
	LicenseID         uint   `json:"license_id"`
	RevokedAtMs       int64  `json:"revoked_at_ms,omitempty"`
	RevokedBy         string `json:"revoked_by,omitempty"`
	RevokeReason      string `json:"revoke_reason,omitempty"`
}

// IsExpired 过期在读取时按 expires_at_ms 计算
func (l *ExecutionLease) IsExpired(nowMs int64) bool {
	return nowMs >= l.ExpiresAtMs
}
