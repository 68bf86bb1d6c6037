package database

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"license-lease-system/internal/model"
)

// EnsureBootstrapAdmin 租户内不存在同名账号时创建管理员，返回是否新建
func EnsureBootstrapAdmin(db *gorm.DB, tenantID, username, password string) (bool, error) {
	if password == "" {
		return false, nil
	}

	var existing model.User
	err := db.Where("tenant_id = ? AND username = ?", tenantID, username).First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("query bootstrap admin: %w", err)
	}

	// 密码加密
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("hash bootstrap password: %w", err)
	}

	admin := &model.User{
		TenantID: tenantID,
		Username: username,
		Password: string(hashedPassword),
		Roles:    "admin",
		Status:   model.UserStatusActive,
	}
	if err := db.Create(admin).Error; err != nil {
		return false, fmt.Errorf("create bootstrap admin: %w", err)
	}
	return true, nil
}
