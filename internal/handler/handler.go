package handler

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"license-lease-system/internal/config"
	"license-lease-system/internal/middleware"
	"license-lease-system/internal/service"
)

// Deps 路由层依赖的组件
type Deps struct {
	Config      *config.Config
	DB          *gorm.DB
	Issuer      *service.LeaseIssuer
	Lifecycle   *service.LeaseLifecycleManager
	Vms         *service.VmRegistry
	Releases    *service.ReleaseCatalog
	Assignments *service.ArtifactAssignmentResolver
	Downloads   *service.ArtifactDownloadOrchestrator
	Audit       *service.AuditStore
	Logger      *slog.Logger
	// Metrics 非空时挂载到 /metrics
	Metrics fiber.Handler
}

type Handler struct {
	Deps
}

func New(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Handler{Deps: deps}
}

// NewApp 创建 fiber 应用，extra 中的中间件在路由之前注册
func NewApp(h *Handler, extra ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler(h.Logger),
	})

	app.Use(recover.New())
	for _, mw := range extra {
		app.Use(mw)
	}
	h.Register(app)
	return app
}

// Register 注册全部路由
func (h *Handler) Register(app *fiber.App) {
	if h.Metrics != nil {
		app.Get("/metrics", h.Metrics)
	}
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return respond(c, fiber.StatusOK, fiber.Map{"status": "ok"})
	})

	privileged := middleware.RequireRole(h.Config.PrivilegedRoles...)
	authn := middleware.Auth(h.Config.SessionSecret)

	// 路由组
	api := app.Group("/api/v1")

	// 认证路由
	auth := api.Group("/auth")
	auth.Post("/login", h.HandleLogin)
	auth.Get("/me", authn, h.HandleUserInfo)
	auth.Post("/change-password", authn, h.HandleChangePassword)
	auth.Get("/login-logs", authn, h.HandleGetLoginLogs)

	// 租约路由
	license := api.Group("/license", authn)
	license.Post("/lease", h.HandleIssueLease)
	license.Post("/heartbeat", h.HandleHeartbeat)
	license.Post("/revoke", privileged, h.HandleRevoke)
	license.Get("/lease/:leaseId", h.HandleGetLease)
	license.Get("/statistics", privileged, h.HandleLeaseStatistics)

	// VM 登记
	vms := api.Group("/vms", authn)
	vms.Post("/register", h.HandleRegisterVm)

	// 制品路由
	artifacts := api.Group("/artifacts", authn)
	artifacts.Post("/releases", privileged, h.HandleCreateRelease)
	artifacts.Post("/assign", privileged, h.HandleAssign)
	artifacts.Get("/assign/:userId/:module", privileged, h.HandleGetAssignments)
	artifacts.Post("/resolve-download", h.HandleResolveDownload)
	artifacts.Get("/audit", privileged, h.HandleListAudit)
}

func (h *Handler) isPrivileged(c *fiber.Ctx) bool {
	return middleware.IdentityFrom(c).HasAnyRole(h.Config.PrivilegedRoles...)
}
