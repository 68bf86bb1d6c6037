package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"license-lease-system/internal/apperror"
	"license-lease-system/internal/config"
	"license-lease-system/internal/metrics"
	"license-lease-system/internal/model"
	"license-lease-system/internal/token"
)

// IssueLeaseInput 签发租约参数
type IssueLeaseInput struct {
	TenantID string
	UserID   string
	VmUuid   string
	AgentID  string
	RunnerID string
	Module   string
	Version  string
}

// IssuedLease 签发结果
type IssuedLease struct {
	LeaseID   string    `json:"lease_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	VmUuid    string    `json:"vm_uuid"`
	Module    string    `json:"module"`
}

// LeaseIssuer 依次校验 VM 归属、许可证和模块授权后签发并持久化租约
type LeaseIssuer struct {
	db       *gorm.DB
	codec    *token.Codec
	vms      *VmOwnershipGuard
	licenses *LicenseEntitlementGuard
	ttl      time.Duration
	issuer   string
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewLeaseIssuer(db *gorm.DB, cfg *config.Config, codec *token.Codec, vms *VmOwnershipGuard,
	licenses *LicenseEntitlementGuard, opts ...Option) *LeaseIssuer {
	o := buildOptions(opts)
	return &LeaseIssuer{
		db:       db,
		codec:    codec,
		vms:      vms,
		licenses: licenses,
		ttl:      cfg.LeaseTTL(),
		issuer:   cfg.LeaseIssuer,
		now:      o.now,
		logger:   o.logger,
		metrics:  o.metrics,
	}
}

// IssueExecutionLease 签发执行租约，校验失败的错误原样返回
func (s *LeaseIssuer) IssueExecutionLease(ctx context.Context, input IssueLeaseInput) (*IssuedLease, error) {
	lease, err := s.issue(ctx, input)
	if err != nil {
		appErr := apperror.Classify(err)
		s.metrics.LeaseIssued(metrics.ResultFor(appErr.Status), appErr.Code)
		s.logger.Info("lease issuance rejected",
			"tenant_id", input.TenantID, "user_id", input.UserID, "vm_uuid", input.VmUuid,
			"module", input.Module, "code", appErr.Code)
		return nil, err
	}

	s.metrics.LeaseIssued(metrics.ResultSuccess, "")
	s.logger.Info("lease issued",
		"tenant_id", lease.TenantID, "lease_id", lease.LeaseID, "user_id", lease.UserID,
		"vm_uuid", lease.VmUuid, "module", lease.Module, "expires_at", lease.ExpiresAt)
	return lease, nil
}

func (s *LeaseIssuer) issue(ctx context.Context, input IssueLeaseInput) (*IssuedLease, error) {
	input.UserID = strings.TrimSpace(input.UserID)
	input.AgentID = strings.TrimSpace(input.AgentID)
	input.RunnerID = strings.TrimSpace(input.RunnerID)
	input.Module = normalizeScope(input.Module)

	if input.TenantID == "" {
		return nil, apperror.MissingField("tenant_id")
	}
	for _, field := range []struct{ name, value string }{
		{"user_id", input.UserID},
		{"agent_id", input.AgentID},
		{"runner_id", input.RunnerID},
		{"module", input.Module},
	} {
		if field.value == "" {
			return nil, apperror.MissingField(field.name)
		}
	}
	if !s.codec.Configured() {
		return nil, apperror.ConfigError("未配置租约签名密钥")
	}

	vm, err := s.vms.EnsureVmOwnership(ctx, input.TenantID, input.UserID, input.VmUuid)
	if err != nil {
		return nil, err
	}
	license, err := s.licenses.EnsureActiveLicense(ctx, input.TenantID, input.UserID)
	if err != nil {
		return nil, err
	}
	if _, err := s.licenses.EnsureEntitlement(ctx, input.TenantID, input.UserID, input.Module); err != nil {
		return nil, err
	}

	now := s.now()
	jti := uuid.NewString()
	exp := now.Unix() + int64(s.ttl/time.Second)

	signed, err := s.codec.Sign(token.Claims{
		Issuer:    s.issuer,
		Subject:   input.RunnerID,
		ID:        jti,
		IssuedAt:  now.Unix(),
		ExpiresAt: exp,
		TenantID:  input.TenantID,
		UserID:    input.UserID,
		VmUuid:    vm.VmUuid,
		AgentID:   input.AgentID,
		Module:    input.Module,
		Version:   input.Version,
		LicenseID: license.ID,
	})
	if err != nil {
		return nil, err
	}

	lease := &model.ExecutionLease{
		ID:                jti,
		TenantID:          input.TenantID,
		Token:             signed,
		Status:            model.LeaseStatusActive,
		CreatedAtMs:       now.UnixMilli(),
		ExpiresAtMs:       exp * 1000,
		LastHeartbeatAtMs: now.UnixMilli(),
		UserID:            input.UserID,
		VmUuid:            vm.VmUuid,
		VmName:            vm.VmName,
		Module:            input.Module,
		Version:           input.Version,
		AgentID:           input.AgentID,
		RunnerID:          input.RunnerID,
		LicenseID:         license.ID,
	}
	if err := s.db.WithContext(ctx).Create(lease).Error; err != nil {
		return nil, apperror.DBError("保存租约失败", err)
	}

	return &IssuedLease{
		LeaseID:   jti,
		Token:     signed,
		ExpiresAt: time.Unix(exp, 0).UTC(),
		TenantID:  input.TenantID,
		UserID:    input.UserID,
		VmUuid:    vm.VmUuid,
		Module:    input.Module,
	}, nil
}

// HeartbeatResult 心跳结果
type HeartbeatResult struct {
	LeaseID         string    `json:"lease_id"`
	Status          string    `json:"status"`
	ExpiresAt       time.Time `json:"expires_at"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
}

// RevokeResult 吊销结果
type RevokeResult struct {
	LeaseID   string    `json:"lease_id"`
	Status    string    `json:"status"`
	RevokedAt time.Time `json:"revoked_at"`
}

// LeaseView 租约详情，is_expired 在读取时计算
type LeaseView struct {
	model.ExecutionLease
	IsExpired bool `json:"is_expired"`
}

// LeaseLifecycleManager 处理已持久化租约的心跳和吊销。
// 心跳不会延长 expires_at_ms，租约到期后需要重新签发
type LeaseLifecycleManager struct {
	db      *gorm.DB
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewLeaseLifecycleManager(db *gorm.DB, opts ...Option) *LeaseLifecycleManager {
	o := buildOptions(opts)
	return &LeaseLifecycleManager{db: db, now: o.now, logger: o.logger, metrics: o.metrics}
}

// Heartbeat 刷新 last_heartbeat_at_ms，读和写在同一事务内
func (m *LeaseLifecycleManager) Heartbeat(ctx context.Context, tenantID, leaseID, userID string) (*HeartbeatResult, error) {
	if leaseID == "" {
		return nil, apperror.MissingField("lease_id")
	}

	var lease model.ExecutionLease
	nowMs := m.now().UnixMilli()
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := loadLease(tx, tenantID, leaseID, &lease); err != nil {
			return err
		}
		if lease.UserID != "" && lease.UserID != userID {
			return apperror.New(http.StatusForbidden, apperror.CodeLeaseOwnerMismatch, "租约不属于当前用户")
		}
		if lease.Status != model.LeaseStatusActive {
			return apperror.New(http.StatusConflict, apperror.CodeLeaseInactive, "租约不处于 active 状态").
				WithDetails(map[string]any{"status": lease.Status})
		}
		if lease.IsExpired(nowMs) {
			return apperror.LeaseExpired()
		}

		res := tx.Model(&model.ExecutionLease{}).
			Where("id = ? AND tenant_id = ? AND status = ?", lease.ID, tenantID, model.LeaseStatusActive).
			Update("last_heartbeat_at_ms", nowMs)
		if res.Error != nil {
			return apperror.DBError("更新心跳失败", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperror.New(http.StatusConflict, apperror.CodeLeaseInactive, "租约不处于 active 状态")
		}
		lease.LastHeartbeatAtMs = nowMs
		return nil
	})
	if err != nil {
		m.recordFailure("heartbeat", err)
		return nil, wrapDB(err, "租约心跳失败")
	}

	m.metrics.LeaseOperation("heartbeat", metrics.ResultSuccess)
	m.logger.Debug("lease heartbeat", "tenant_id", tenantID, "lease_id", leaseID)
	return &HeartbeatResult{
		LeaseID:         lease.ID,
		Status:          lease.Status,
		ExpiresAt:       time.UnixMilli(lease.ExpiresAtMs).UTC(),
		LastHeartbeatAt: time.UnixMilli(lease.LastHeartbeatAtMs).UTC(),
	}, nil
}

// Revoke 吊销租约。重复吊销是幂等的，返回首次吊销的时间且不覆盖操作人和原因
func (m *LeaseLifecycleManager) Revoke(ctx context.Context, tenantID, leaseID, actorID, reason string) (*RevokeResult, error) {
	if leaseID == "" {
		return nil, apperror.MissingField("lease_id")
	}

	var lease model.ExecutionLease
	nowMs := m.now().UnixMilli()
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := loadLease(tx, tenantID, leaseID, &lease); err != nil {
			return err
		}
		if lease.Status == model.LeaseStatusRevoked {
			return nil
		}

		lease.Status = model.LeaseStatusRevoked
		lease.RevokedAtMs = nowMs
		lease.RevokedBy = actorID
		lease.RevokeReason = reason
		return tx.Model(&model.ExecutionLease{}).
			Where("id = ? AND tenant_id = ?", lease.ID, tenantID).
			Updates(map[string]any{
				"status":        model.LeaseStatusRevoked,
				"revoked_at_ms": nowMs,
				"revoked_by":    actorID,
				"revoke_reason": reason,
			}).Error
	})
	if err != nil {
		m.recordFailure("revoke", err)
		return nil, wrapDB(err, "吊销租约失败")
	}

	m.metrics.LeaseOperation("revoke", metrics.ResultSuccess)
	m.logger.Info("lease revoked",
		"tenant_id", tenantID, "lease_id", leaseID, "revoked_by", lease.RevokedBy, "reason", lease.RevokeReason)
	return &RevokeResult{
		LeaseID:   lease.ID,
		Status:    lease.Status,
		RevokedAt: time.UnixMilli(lease.RevokedAtMs).UTC(),
	}, nil
}

// GetLease 查询租约详情
func (m *LeaseLifecycleManager) GetLease(ctx context.Context, tenantID, leaseID string) (*LeaseView, error) {
	var lease model.ExecutionLease
	if err := loadLease(m.db.WithContext(ctx), tenantID, leaseID, &lease); err != nil {
		return nil, wrapDB(err, "查询租约失败")
	}
	return &LeaseView{ExecutionLease: lease, IsExpired: lease.IsExpired(m.now().UnixMilli())}, nil
}

func (m *LeaseLifecycleManager) recordFailure(op string, err error) {
	appErr := apperror.Classify(err)
	m.metrics.LeaseOperation(op, metrics.ResultFor(appErr.Status))
}

func loadLease(db *gorm.DB, tenantID, leaseID string, lease *model.ExecutionLease) error {
	err := db.Where("id = ? AND tenant_id = ?", leaseID, tenantID).First(lease).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.New(http.StatusNotFound, apperror.CodeLeaseNotFound, "租约不存在")
	}
	if err != nil {
		return apperror.DBError("查询租约失败", err)
	}
	return nil
}

// wrapDB 非业务错误统一包装为 DB_ERROR
func wrapDB(err error, message string) error {
	if _, ok := apperror.As(err); ok {
		return err
	}
	return apperror.DBError(message, err)
}

func normalizeScope(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
