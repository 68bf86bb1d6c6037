package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"license-lease-system/internal/model"
)

// Models 需要迁移的全部表
func Models() []any {
	return []any{
		&model.User{},
		&model.LoginLog{},
		&model.VmRegistration{},
		&model.License{},
		&model.Entitlement{},
		&model.ExecutionLease{},
		&model.ArtifactRelease{},
		&model.ArtifactAssignment{},
		&model.ArtifactDownloadAuditEvent{},
	}
}

// Open 打开 sqlite 数据库并自动迁移
func Open(dbPath string) (*gorm.DB, error) {
	// 创建数据目录
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate 自动迁移模型
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}
