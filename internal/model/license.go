package model

import (
	"time"

	"gorm.io/datatypes"
)

// 许可证类型
const (
	LicenseTypeSubscription = "subscription"
	LicenseTypePerpetual    = "perpetual"
	LicenseTypeAllTime      = "alltime"
)

const LicenseStatusActive = "active"

// License 租户许可证，UserID 为空表示租户级
type License struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	TenantID    string    `json:"tenant_id" gorm:"not null;index"`
	UserID      string    `json:"user_id" gorm:"index"`
	Type        string    `json:"type" gorm:"not null"`
	Status      string    `json:"status" gorm:"not null"`
	ExpiresAtMs int64     `json:"expires_at_ms"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsActive 永久类许可证不看过期时间，其余类型要求 expires_at_ms 晚于 now
func (l *License) IsActive(now time.Time) bool {
	if l.Status != LicenseStatusActive {
		return false
	}
	if l.Type == LicenseTypePerpetual || l.Type == LicenseTypeAllTime {
		return true
	}
	return l.ExpiresAtMs > now.UnixMilli()
}

// AppliesTo 许可证是否覆盖该用户
func (l *License) AppliesTo(userID string) bool {
	return l.UserID == "" || l.UserID == userID
}

// Entitlement 租户用户可使用的模块。Modules 为 JSON 数组或带可选 "*" 键的对象
type Entitlement struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	TenantID  string         `json:"tenant_id" gorm:"not null;uniqueIndex:idx_entitlement_tenant_user,priority:1"`
	UserID    string         `json:"user_id" gorm:"not null;uniqueIndex:idx_entitlement_tenant_user,priority:2"`
	Modules   datatypes.JSON `json:"modules" gorm:"type:text"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
