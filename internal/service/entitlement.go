package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"gorm.io/gorm"

	"license-lease-system/internal/apperror"
	"license-lease-system/internal/model"
)

// WildcardModule 授权全部模块
const WildcardModule = "*"

// ModuleSet 授权模块的统一表示，All 为真时包含任意模块
type ModuleSet struct {
	All   bool
	Names mapset.Set[string]
}

// Allows 判断模块是否被授权
func (s ModuleSet) Allows(module string) bool {
	if s.All {
		return true
	}
	return s.Names != nil && s.Names.Contains(strings.ToLower(strings.TrimSpace(module)))
}

// NormalizeModules 把数组形式 ["a","b"] 和对象形式 {"a":true,"*":true} 统一为 ModuleSet。
// 对象形式中值为 false/null 的键不计入授权
func NormalizeModules(raw []byte) (ModuleSet, error) {
	set := ModuleSet{Names: mapset.NewSet[string]()}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return set, nil
	}

	add := func(name string) {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			return
		}
		if name == WildcardModule {
			set.All = true
			return
		}
		set.Names.Add(name)
	}

	switch raw[0] {
	case '[':
		var names []string
		if err := json.Unmarshal(raw, &names); err != nil {
			return set, fmt.Errorf("decode module list: %w", err)
		}
		for _, name := range names {
			add(name)
		}
	case '{':
		var entries map[string]any
		if err := json.Unmarshal(raw, &entries); err != nil {
			return set, fmt.Errorf("decode module map: %w", err)
		}
		for name, value := range entries {
			if enabled, ok := value.(bool); (ok && !enabled) || value == nil {
				continue
			}
			add(name)
		}
	default:
		return set, fmt.Errorf("unsupported modules shape")
	}
	return set, nil
}

// LicenseEntitlementGuard 校验租户用户的有效许可证和模块授权
type LicenseEntitlementGuard struct {
	db     *gorm.DB
	now    func() time.Time
	logger *slog.Logger
}

func NewLicenseEntitlementGuard(db *gorm.DB, opts ...Option) *LicenseEntitlementGuard {
	o := buildOptions(opts)
	return &LicenseEntitlementGuard{db: db, now: o.now, logger: o.logger}
}

// EnsureActiveLicense 返回第一条覆盖该用户且有效的许可证
func (g *LicenseEntitlementGuard) EnsureActiveLicense(ctx context.Context, tenantID, userID string) (*model.License, error) {
	var licenses []model.License
	if err := g.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("id ASC").
		Find(&licenses).Error; err != nil {
		return nil, apperror.DBError("查询许可证失败", err)
	}

	now := g.now()
	for i := range licenses {
		license := &licenses[i]
		if license.AppliesTo(userID) && license.IsActive(now) {
			return license, nil
		}
	}
	return nil, apperror.New(http.StatusForbidden, apperror.CodeLicenseInactive, "没有有效的许可证")
}

// EnsureEntitlement 校验 (tenant, user) 的授权记录包含该模块
func (g *LicenseEntitlementGuard) EnsureEntitlement(ctx context.Context, tenantID, userID, module string) (*model.Entitlement, error) {
	var entitlement model.Entitlement
	err := g.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).
		First(&entitlement).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.New(http.StatusForbidden, apperror.CodeEntitlementRequired, "缺少模块授权记录")
	}
	if err != nil {
		return nil, apperror.DBError("查询模块授权失败", err)
	}

	allowed, err := NormalizeModules(entitlement.Modules)
	if err != nil {
		g.logger.Warn("entitlement modules malformed",
			"tenant_id", tenantID, "user_id", userID, "error", err)
	}
	if !allowed.Allows(module) {
		return nil, apperror.New(http.StatusForbidden, apperror.CodeModuleNotAllowed, "模块未授权").
			WithDetails(map[string]any{"module": module})
	}
	return &entitlement, nil
}
