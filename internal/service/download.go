package service

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"gorm.io/datatypes"

	"license-lease-system/internal/apperror"
	"license-lease-system/internal/config"
	"license-lease-system/internal/metrics"
	"license-lease-system/internal/model"
	"license-lease-system/internal/storage"
)

const reasonInProgress = "resolve-in-progress"

// ResolveDownloadInput 下载解析请求
type ResolveDownloadInput struct {
	TenantID   string
	ActorID    string
	LeaseToken string
	VmUuid     string
	Module     string
	Platform   string
	Channel    string
	RequestIP  string
}

// DownloadResult 下载解析结果
type DownloadResult struct {
	DownloadURL  string    `json:"download_url"`
	UrlExpiresAt time.Time `json:"url_expires_at"`
	ReleaseID    uint      `json:"release_id"`
	Version      string    `json:"version"`
	Sha256       string    `json:"sha256"`
	SizeBytes    int64     `json:"size_bytes"`
}

// ArtifactDownloadOrchestrator 校验租约、计算生效发布、确认对象存在并签发下载链接。
// 每次调用无论成功失败都恰好写入一条审计记录，写入后才把原始错误返回给调用方
type ArtifactDownloadOrchestrator struct {
	leases      *LeaseResolver
	assignments *ArtifactAssignmentResolver
	releases    *ReleaseCatalog
	storage     storage.Provider
	audit       AuditSink
	presignTTL  time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

func NewArtifactDownloadOrchestrator(cfg *config.Config, leases *LeaseResolver, assignments *ArtifactAssignmentResolver,
	releases *ReleaseCatalog, provider storage.Provider, audit AuditSink, opts ...Option) *ArtifactDownloadOrchestrator {
	o := buildOptions(opts)
	return &ArtifactDownloadOrchestrator{
		leases:      leases,
		assignments: assignments,
		releases:    releases,
		storage:     provider,
		audit:       audit,
		presignTTL:  cfg.PresignTTL(),
		logger:      o.logger,
		metrics:     o.metrics,
	}
}

// ResolveDownload 处理一次下载解析
func (o *ArtifactDownloadOrchestrator) ResolveDownload(ctx context.Context, input ResolveDownloadInput) (*DownloadResult, error) {
	input.Module = normalizeScope(input.Module)
	input.Platform = normalizeScope(input.Platform)
	input.Channel = normalizeScope(input.Channel)
	if input.Channel == "" {
		input.Channel = model.DefaultChannel
	}

	event := &model.ArtifactDownloadAuditEvent{
		TenantID:  input.TenantID,
		UserID:    input.ActorID,
		VmUuid:    strings.ToLower(strings.TrimSpace(input.VmUuid)),
		Module:    input.Module,
		Platform:  input.Platform,
		Channel:   input.Channel,
		EventType: model.AuditEventResolveDenied,
		Result:    model.AuditResultDenied,
		Reason:    stringPtr(reasonInProgress),
		RequestIP: input.RequestIP,
		Metadata:  datatypes.JSONMap{"actor_id": input.ActorID},
	}

	result, err := o.resolve(ctx, input, event)
	if err != nil {
		appErr := apperror.Classify(err)
		event.EventType = model.AuditEventResolveDenied
		event.Result = model.AuditResultDenied
		if appErr.Status >= http.StatusInternalServerError {
			event.Result = model.AuditResultError
		}
		event.Reason = stringPtr(reasonSlug(appErr.Code))
		event.Metadata["error_code"] = appErr.Code
	} else {
		event.EventType = model.AuditEventResolveSuccess
		event.Result = model.AuditResultAllowed
		event.Reason = nil
		expiresMs := result.UrlExpiresAt.UnixMilli()
		event.UrlExpiresAtMs = &expiresMs
	}

	// 审计写入不受请求取消影响
	auditErr := o.audit.Append(context.WithoutCancel(ctx), event)
	source, _ := event.Metadata["source"].(string)
	o.metrics.DownloadResolved(event.Result, source)

	if err != nil {
		if auditErr != nil {
			o.logger.Error("download audit write failed",
				"tenant_id", input.TenantID, "lease_id", event.LeaseID, "error", auditErr)
		}
		o.logger.Info("artifact download denied",
			"tenant_id", input.TenantID, "lease_id", event.LeaseID, "user_id", event.UserID,
			"module", input.Module, "platform", input.Platform, "channel", input.Channel,
			"result", event.Result, "reason", *event.Reason)
		return nil, err
	}
	if auditErr != nil {
		// 没有审计记录时不下发链接
		o.logger.Error("download audit write failed, withholding url",
			"tenant_id", input.TenantID, "lease_id", event.LeaseID, "error", auditErr)
		return nil, apperror.DBError("写入下载审计失败", auditErr)
	}

	o.logger.Info("artifact download resolved",
		"tenant_id", input.TenantID, "lease_id", event.LeaseID, "user_id", event.UserID,
		"release_id", result.ReleaseID, "source", source)
	return result, nil
}

func (o *ArtifactDownloadOrchestrator) resolve(ctx context.Context, input ResolveDownloadInput, event *model.ArtifactDownloadAuditEvent) (*DownloadResult, error) {
	if strings.TrimSpace(input.VmUuid) == "" {
		return nil, apperror.MissingField("vm_uuid")
	}
	if input.Module == "" {
		return nil, apperror.MissingField("module")
	}
	if input.Platform == "" {
		return nil, apperror.MissingField("platform")
	}

	resolved, err := o.leases.ResolveActiveLeaseByToken(ctx, ResolveLeaseInput{
		TenantID:       input.TenantID,
		Token:          input.LeaseToken,
		ExpectedVmUuid: input.VmUuid,
		ExpectedModule: input.Module,
	})
	if err != nil {
		return nil, err
	}

	lease := resolved.Lease
	userID := lease.UserID
	if userID == "" {
		userID = input.ActorID
	}
	event.LeaseID = lease.ID
	event.LeaseJti = resolved.Claims.ID
	event.UserID = userID
	event.VmUuid = lease.VmUuid

	effective, err := o.assignments.GetEffectiveAssignment(ctx, AssignmentScope{
		TenantID: input.TenantID,
		UserID:   userID,
		Module:   input.Module,
		Platform: input.Platform,
		Channel:  input.Channel,
	})
	if err != nil {
		return nil, err
	}
	if effective == nil {
		return nil, apperror.New(http.StatusNotFound, apperror.CodeArtifactAssignmentNotFound, "没有可用的制品分配")
	}
	releaseID := effective.Assignment.ReleaseID
	event.ReleaseID = &releaseID
	event.Metadata["source"] = effective.Source

	release, err := o.releases.GetRelease(ctx, input.TenantID, releaseID)
	if err != nil {
		return nil, err
	}
	if release == nil {
		return nil, apperror.New(http.StatusNotFound, apperror.CodeArtifactReleaseNotFound, "发布版本不存在")
	}
	if release.Status != model.ReleaseStatusActive {
		return nil, apperror.New(http.StatusConflict, apperror.CodeArtifactReleaseNotActive, "发布版本不可用").
			WithDetails(map[string]any{"status": release.Status})
	}

	info, err := o.storage.HeadObject(ctx, release.ObjectKey)
	if err != nil {
		return nil, apperror.ServiceUnavailable("对象存储不可用", err)
	}
	if !info.Exists {
		return nil, apperror.New(http.StatusNotFound, apperror.CodeArtifactObjectNotFound, "制品文件不存在")
	}

	presigned, err := o.storage.PresignDownload(ctx, release.ObjectKey, o.presignTTL)
	if err != nil {
		return nil, apperror.ServiceUnavailable("生成下载链接失败", err)
	}

	return &DownloadResult{
		DownloadURL:  presigned.URL,
		UrlExpiresAt: presigned.ExpiresAt.UTC(),
		ReleaseID:    release.ID,
		Version:      release.Version,
		Sha256:       release.Sha256,
		SizeBytes:    release.SizeBytes,
	}, nil
}

// reasonSlug ARTIFACT_RELEASE_NOT_ACTIVE -> artifact-release-not-active
func reasonSlug(code string) string {
	return slug.Make(strings.ReplaceAll(code, "_", "-"))
}

func stringPtr(s string) *string {
	return &s
}
