package middleware

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gofiber/fiber/v2"

	"license-lease-system/internal/apperror"
	"license-lease-system/internal/util"
)

// 请求上下文中的身份字段
const (
	LocalUID      = "uid"
	LocalTenantID = "tenant_id"
	LocalRoles    = "roles"
)

// Identity 当前请求的调用者
type Identity struct {
	UID      string
	TenantID string
	Roles    []string
}

// HasAnyRole 是否拥有任一角色
func (i Identity) HasAnyRole(roles ...string) bool {
	if len(roles) == 0 {
		return false
	}
	return mapset.NewSet(i.Roles...).Intersect(mapset.NewSet(roles...)).Cardinality() > 0
}

// IdentityFrom 读取 Auth 注入的身份
func IdentityFrom(c *fiber.Ctx) Identity {
	id := Identity{}
	id.UID, _ = c.Locals(LocalUID).(string)
	id.TenantID, _ = c.Locals(LocalTenantID).(string)
	id.Roles, _ = c.Locals(LocalRoles).([]string)
	return id
}

// Auth 校验 Bearer 会话令牌并注入 uid、tenant_id、roles
func Auth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return apperror.Unauthorized("未提供认证令牌")
		}

		// 获取 Bearer token
		tokenParts := strings.Fields(authHeader)
		if len(tokenParts) != 2 || !strings.EqualFold(tokenParts[0], "Bearer") {
			return apperror.Unauthorized("无效的认证格式")
		}

		// 验证令牌
		claims, err := util.ValidateToken(secret, tokenParts[1])
		if err != nil {
			return apperror.Unauthorized("无效的认证令牌")
		}

		c.Locals(LocalUID, claims.UID)
		c.Locals(LocalTenantID, claims.TenantID)
		c.Locals(LocalRoles, claims.Roles)
		return c.Next()
	}
}

// RequireRole 调用者至少拥有其中一个角色
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !IdentityFrom(c).HasAnyRole(roles...) {
			return apperror.Forbidden("需要管理员权限")
		}
		return c.Next()
	}
}
