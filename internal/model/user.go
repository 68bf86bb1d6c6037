package model

import (
	"strings"
	"time"
)

// 账号状态
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// User 管理端操作员账号
type User struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	TenantID  string    `json:"tenant_id" gorm:"not null;uniqueIndex:idx_user_tenant_name,priority:1"`
	Username  string    `json:"username" gorm:"not null;uniqueIndex:idx_user_tenant_name,priority:2"`
	Password  string    `json:"-" gorm:"not null"`
	Email     string    `json:"email"`
	Roles     string    `json:"roles" gorm:"default:'user'"`
	Status    string    `json:"status" gorm:"default:'active'"`
	CreatedAt time.Time `json:"createdat"`
	UpdatedAt time.Time `json:"updatedat"`
	LastLogin time.Time `json:"lastlogin"`
}

// RoleList 角色以逗号分隔存储
func (u *User) RoleList() []string {
	var roles []string
	for _, role := range strings.Split(u.Roles, ",") {
		if role = strings.TrimSpace(role); role != "" {
			roles = append(roles, role)
		}
	}
	return roles
}
