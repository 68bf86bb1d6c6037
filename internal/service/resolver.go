package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"license-lease-system/internal/apperror"
	"license-lease-system/internal/metrics"
	"license-lease-system/internal/model"
	"license-lease-system/internal/token"
)

// ResolveLeaseInput 按令牌解析租约的参数，ExpectedVmUuid/ExpectedModule 为空时不校验
type ResolveLeaseInput struct {
	TenantID       string
	Token          string
	ExpectedVmUuid string
	ExpectedModule string
}

// ResolvedLease 解析出的有效租约和令牌载荷
type ResolvedLease struct {
	Lease  *model.ExecutionLease
	Claims *token.Claims
}

// LeaseResolver 所有受保护资源在使用租约令牌前都必须经过这里
type LeaseResolver struct {
	db      *gorm.DB
	codec   *token.Codec
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewLeaseResolver(db *gorm.DB, codec *token.Codec, opts ...Option) *LeaseResolver {
	o := buildOptions(opts)
	return &LeaseResolver{db: db, codec: codec, now: o.now, logger: o.logger, metrics: o.metrics}
}

// ResolveActiveLeaseByToken 校验令牌签名、持久化记录、租户、状态、过期以及期望的 VM 和模块
func (r *LeaseResolver) ResolveActiveLeaseByToken(ctx context.Context, input ResolveLeaseInput) (*ResolvedLease, error) {
	resolved, err := r.resolve(ctx, input)
	if err != nil {
		appErr := apperror.Classify(err)
		r.metrics.LeaseResolved(metrics.ResultFor(appErr.Status), appErr.Code)
		r.logger.Debug("lease resolution rejected", "tenant_id", input.TenantID, "code", appErr.Code)
		return nil, err
	}
	r.metrics.LeaseResolved(metrics.ResultSuccess, "")
	return resolved, nil
}

func (r *LeaseResolver) resolve(ctx context.Context, input ResolveLeaseInput) (*ResolvedLease, error) {
	raw := strings.TrimSpace(input.Token)
	if raw == "" {
		return nil, apperror.Unauthorized("缺少租约令牌")
	}

	claims, err := r.codec.Verify(raw)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, apperror.Unauthorized("令牌缺少 jti")
	}

	var lease model.ExecutionLease
	err = r.db.WithContext(ctx).Where("id = ?", claims.ID).First(&lease).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.New(http.StatusNotFound, apperror.CodeLeaseNotFound, "租约不存在")
	}
	if err != nil {
		return nil, apperror.DBError("查询租约失败", err)
	}

	// 签名有效但与持久化记录不一致的令牌（如密钥轮换后残留的旧令牌）一律拒绝
	if lease.Token != "" && subtle.ConstantTimeCompare([]byte(lease.Token), []byte(raw)) != 1 {
		return nil, apperror.Unauthorized("令牌与租约记录不一致")
	}
	if lease.TenantID != input.TenantID || claims.TenantID != input.TenantID {
		return nil, apperror.Forbidden("租约不属于当前租户")
	}
	if lease.Status != model.LeaseStatusActive {
		return nil, apperror.New(http.StatusConflict, apperror.CodeLeaseInactive, "租约不处于 active 状态").
			WithDetails(map[string]any{"status": lease.Status})
	}
	if lease.IsExpired(r.now().UnixMilli()) {
		return nil, apperror.LeaseExpired()
	}

	if input.ExpectedVmUuid != "" {
		expected, err := NormalizeVmUuid(input.ExpectedVmUuid)
		if err != nil {
			return nil, err
		}
		if expected != lease.VmUuid {
			return nil, apperror.New(http.StatusForbidden, apperror.CodeVmUuidMismatch, "租约未绑定该 VM")
		}
	}
	if input.ExpectedModule != "" && normalizeScope(input.ExpectedModule) != lease.Module {
		return nil, apperror.New(http.StatusForbidden, apperror.CodeModuleMismatch, "租约未绑定该模块")
	}

	return &ResolvedLease{Lease: &lease, Claims: claims}, nil
}
