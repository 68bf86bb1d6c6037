package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gorm.io/gorm"

	"license-lease-system/internal/apperror"
	"license-lease-system/internal/model"
)

// 生效分配的来源
const (
	AssignmentSourceUser          = "user"
	AssignmentSourceTenantDefault = "tenant-default"
)

var sha256Pattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ReleaseInput 登记发布版本的请求
type ReleaseInput struct {
	Module    string `json:"module"`
	Platform  string `json:"platform"`
	Channel   string `json:"channel"`
	Version   string `json:"version"`
	ObjectKey string `json:"object_key"`
	Sha256    string `json:"sha256"`
	SizeBytes int64  `json:"size_bytes"`
	Status    string `json:"status"`
}

// AssignmentInput 分配请求，UserID 为空表示租户默认
type AssignmentInput struct {
	UserID    string `json:"user_id"`
	Module    string `json:"module"`
	Platform  string `json:"platform"`
	Channel   string `json:"channel"`
	ReleaseID uint   `json:"release_id"`
}

// AssignmentScope 分配的作用域
type AssignmentScope struct {
	TenantID string
	UserID   string
	Module   string
	Platform string
	Channel  string
}

func (s *AssignmentScope) normalize() error {
	s.UserID = strings.TrimSpace(s.UserID)
	s.Module = normalizeScope(s.Module)
	s.Platform = normalizeScope(s.Platform)
	s.Channel = normalizeScope(s.Channel)
	if s.Channel == "" {
		s.Channel = model.DefaultChannel
	}
	if s.TenantID == "" {
		return apperror.MissingField("tenant_id")
	}
	if s.Module == "" {
		return apperror.MissingField("module")
	}
	if s.Platform == "" {
		return apperror.MissingField("platform")
	}
	return nil
}

// EffectiveAssignment 生效的分配及其来源
type EffectiveAssignment struct {
	Assignment *model.ArtifactAssignment
	Source     string
}

// AssignmentLookup 同一作用域下的用户分配、默认分配与生效分配
type AssignmentLookup struct {
	UserAssignment      *model.ArtifactAssignment `json:"user_assignment"`
	DefaultAssignment   *model.ArtifactAssignment `json:"default_assignment"`
	EffectiveAssignment *model.ArtifactAssignment `json:"effective_assignment"`
	Source              string                    `json:"source,omitempty"`
}

// ReleaseCatalog 制品发布版本目录
type ReleaseCatalog struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewReleaseCatalog(db *gorm.DB, opts ...Option) *ReleaseCatalog {
	o := buildOptions(opts)
	return &ReleaseCatalog{db: db, logger: o.logger}
}

// CreateRelease 登记发布版本
func (c *ReleaseCatalog) CreateRelease(ctx context.Context, tenantID, actorID string, input ReleaseInput) (*model.ArtifactRelease, error) {
	release := model.ArtifactRelease{
		TenantID:  tenantID,
		Module:    normalizeScope(input.Module),
		Platform:  normalizeScope(input.Platform),
		Channel:   normalizeScope(input.Channel),
		Version:   strings.TrimSpace(input.Version),
		ObjectKey: strings.TrimSpace(input.ObjectKey),
		Sha256:    strings.ToLower(strings.TrimSpace(input.Sha256)),
		SizeBytes: input.SizeBytes,
		Status:    normalizeScope(input.Status),
		CreatedBy: actorID,
	}
	if release.Channel == "" {
		release.Channel = model.DefaultChannel
	}
	if release.Status == "" {
		release.Status = model.ReleaseStatusActive
	}

	if tenantID == "" {
		return nil, apperror.MissingField("tenant_id")
	}
	for _, field := range []struct{ name, value string }{
		{"module", release.Module},
		{"platform", release.Platform},
		{"version", release.Version},
		{"object_key", release.ObjectKey},
		{"sha256", release.Sha256},
	} {
		if field.value == "" {
			return nil, apperror.MissingField(field.name)
		}
	}
	if _, err := semver.NewVersion(release.Version); err != nil {
		return nil, apperror.BadRequest("version 不是合法的语义化版本").
			WithDetails(map[string]any{"field": "version"})
	}
	if !sha256Pattern.MatchString(release.Sha256) {
		return nil, apperror.BadRequest("sha256 必须为 64 位十六进制").
			WithDetails(map[string]any{"field": "sha256"})
	}
	if release.SizeBytes < 0 {
		return nil, apperror.BadRequest("size_bytes 不能为负数").
			WithDetails(map[string]any{"field": "size_bytes"})
	}
	switch release.Status {
	case model.ReleaseStatusDraft, model.ReleaseStatusActive, model.ReleaseStatusDisabled, model.ReleaseStatusArchived:
	default:
		return nil, apperror.BadRequest("status 必须为 draft、active、disabled 或 archived").
			WithDetails(map[string]any{"field": "status"})
	}

	if err := c.db.WithContext(ctx).Create(&release).Error; err != nil {
		return nil, apperror.DBError("保存发布版本失败", err)
	}

	c.logger.Info("artifact release created",
		"tenant_id", tenantID, "release_id", release.ID, "module", release.Module,
		"platform", release.Platform, "channel", release.Channel, "version", release.Version)
	return &release, nil
}

// GetRelease 按 id 查询租户内的发布版本，不存在时返回 nil, nil
func (c *ReleaseCatalog) GetRelease(ctx context.Context, tenantID string, releaseID uint) (*model.ArtifactRelease, error) {
	return findRelease(c.db.WithContext(ctx), tenantID, releaseID)
}

func findRelease(db *gorm.DB, tenantID string, releaseID uint) (*model.ArtifactRelease, error) {
	var release model.ArtifactRelease
	err := db.Where("id = ? AND tenant_id = ?", releaseID, tenantID).First(&release).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.DBError("查询发布版本失败", err)
	}
	return &release, nil
}

// ArtifactAssignmentResolver 计算 (tenant, module, platform, channel, user) 的生效发布版本。
// 用户分配总是优先于租户默认分配
type ArtifactAssignmentResolver struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewArtifactAssignmentResolver(db *gorm.DB, opts ...Option) *ArtifactAssignmentResolver {
	o := buildOptions(opts)
	return &ArtifactAssignmentResolver{db: db, logger: o.logger}
}

// GetAssignments 返回用户分配、默认分配和生效分配
func (r *ArtifactAssignmentResolver) GetAssignments(ctx context.Context, scope AssignmentScope) (*AssignmentLookup, error) {
	if err := scope.normalize(); err != nil {
		return nil, err
	}
	db := r.db.WithContext(ctx)

	lookup := &AssignmentLookup{}
	if scope.UserID != "" {
		userRow, err := findAssignment(db, scope, &scope.UserID)
		if err != nil {
			return nil, err
		}
		lookup.UserAssignment = userRow
	}
	defaultRow, err := findAssignment(db, scope, nil)
	if err != nil {
		return nil, err
	}
	lookup.DefaultAssignment = defaultRow

	switch {
	case lookup.UserAssignment != nil:
		lookup.EffectiveAssignment = lookup.UserAssignment
		lookup.Source = AssignmentSourceUser
	case lookup.DefaultAssignment != nil:
		lookup.EffectiveAssignment = lookup.DefaultAssignment
		lookup.Source = AssignmentSourceTenantDefault
	}
	return lookup, nil
}

// GetEffectiveAssignment 没有任何分配时返回 nil, nil
func (r *ArtifactAssignmentResolver) GetEffectiveAssignment(ctx context.Context, scope AssignmentScope) (*EffectiveAssignment, error) {
	lookup, err := r.GetAssignments(ctx, scope)
	if err != nil {
		return nil, err
	}
	if lookup.EffectiveAssignment == nil {
		return nil, nil
	}
	return &EffectiveAssignment{Assignment: lookup.EffectiveAssignment, Source: lookup.Source}, nil
}

// UpsertAssignment 在同一事务内先删除同作用域的旧分配再插入，保证每个作用域最多一行
func (r *ArtifactAssignmentResolver) UpsertAssignment(ctx context.Context, tenantID, actorID string, input AssignmentInput) (*model.ArtifactAssignment, error) {
	scope := AssignmentScope{
		TenantID: tenantID,
		UserID:   input.UserID,
		Module:   input.Module,
		Platform: input.Platform,
		Channel:  input.Channel,
	}
	if err := scope.normalize(); err != nil {
		return nil, err
	}
	if input.ReleaseID == 0 {
		return nil, apperror.MissingField("release_id")
	}

	var userID *string
	if scope.UserID != "" {
		userID = &scope.UserID
	}
	assignment := model.ArtifactAssignment{
		TenantID:   scope.TenantID,
		Module:     scope.Module,
		Platform:   scope.Platform,
		Channel:    scope.Channel,
		UserID:     userID,
		ReleaseID:  input.ReleaseID,
		IsDefault:  userID == nil,
		AssignedBy: actorID,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		release, err := findRelease(tx, scope.TenantID, input.ReleaseID)
		if err != nil {
			return err
		}
		if release == nil {
			return apperror.NotFound("发布版本不存在")
		}
		if release.Module != scope.Module || release.Platform != scope.Platform || release.Channel != scope.Channel {
			return apperror.New(http.StatusConflict, apperror.CodeArtifactScopeMismatch, "发布版本与分配作用域不一致").
				WithDetails(map[string]any{
					"release_module":   release.Module,
					"release_platform": release.Platform,
					"release_channel":  release.Channel,
				})
		}

		if err := scopeQuery(tx, scope, userID).Delete(&model.ArtifactAssignment{}).Error; err != nil {
			return err
		}
		return tx.Create(&assignment).Error
	})
	if err != nil {
		return nil, wrapDB(err, "保存制品分配失败")
	}

	r.logger.Info("artifact assigned",
		"tenant_id", scope.TenantID, "module", scope.Module, "platform", scope.Platform,
		"channel", scope.Channel, "user_id", scope.UserID, "release_id", input.ReleaseID)
	return &assignment, nil
}

func scopeQuery(db *gorm.DB, scope AssignmentScope, userID *string) *gorm.DB {
	q := db.Where("tenant_id = ? AND module = ? AND platform = ? AND channel = ?",
		scope.TenantID, scope.Module, scope.Platform, scope.Channel)
	if userID == nil {
		return q.Where("user_id IS NULL")
	}
	return q.Where("user_id = ?", *userID)
}

func findAssignment(db *gorm.DB, scope AssignmentScope, userID *string) (*model.ArtifactAssignment, error) {
	q := scopeQuery(db, scope, userID)
	if userID == nil {
		q = q.Where("is_default = ?", true)
	}

	var assignment model.ArtifactAssignment
	err := q.Order("id DESC").First(&assignment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.DBError("查询制品分配失败", err)
	}
	return &assignment, nil
}
