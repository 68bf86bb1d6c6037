package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"license-lease-system/internal/apperror"
	"license-lease-system/internal/model"
)

var vmUuidPattern = regexp.MustCompile(`^[A-Za-z0-9:_-]{8,128}$`)

// NormalizeVmUuid 去空白并转小写，格式不合法时返回 BAD_REQUEST
func NormalizeVmUuid(raw string) (string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", apperror.MissingField("vm_uuid")
	}
	if !vmUuidPattern.MatchString(v) {
		return "", apperror.BadRequest("vm_uuid 格式无效").
			WithDetails(map[string]any{"field": "vm_uuid"})
	}
	return strings.ToLower(v), nil
}

// VmResolver 按租户查询 VM 登记，不存在时返回 nil, nil
type VmResolver interface {
	ResolveVm(ctx context.Context, tenantID, vmUuid string) (*model.VmRegistration, error)
}

// VmRegistry 基于数据库的 VM 登记表
type VmRegistry struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewVmRegistry(db *gorm.DB, opts ...Option) *VmRegistry {
	o := buildOptions(opts)
	return &VmRegistry{db: db, logger: o.logger}
}

func (r *VmRegistry) ResolveVm(ctx context.Context, tenantID, vmUuid string) (*model.VmRegistration, error) {
	normalized, err := NormalizeVmUuid(vmUuid)
	if err != nil {
		return nil, err
	}

	var vm model.VmRegistration
	err = r.db.WithContext(ctx).
		Where("tenant_id = ? AND vm_uuid = ?", tenantID, normalized).
		First(&vm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.DBError("查询 VM 登记失败", err)
	}
	return &vm, nil
}

// VmInput VM 登记请求
type VmInput struct {
	VmUuid    string         `json:"vm_uuid"`
	VmName    string         `json:"vm_name"`
	ProjectID string         `json:"project_id"`
	Status    string         `json:"status"`
	Metadata  map[string]any `json:"metadata"`
}

// UpsertVm 由 VM 所有者幂等登记或更新，已被他人占用时返回 VM_OWNER_MISMATCH
func (r *VmRegistry) UpsertVm(ctx context.Context, tenantID, userID string, input VmInput) (*model.VmRegistration, error) {
	if tenantID == "" {
		return nil, apperror.MissingField("tenant_id")
	}
	if userID == "" {
		return nil, apperror.MissingField("user_id")
	}
	vmUuid, err := NormalizeVmUuid(input.VmUuid)
	if err != nil {
		return nil, err
	}
	status := strings.ToLower(strings.TrimSpace(input.Status))
	switch status {
	case "":
	case model.VmStatusActive, model.VmStatusPaused, model.VmStatusRevoked:
	default:
		return nil, apperror.BadRequest("status 必须为 active、paused 或 revoked").
			WithDetails(map[string]any{"field": "status"})
	}

	var vm model.VmRegistration
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("tenant_id = ? AND vm_uuid = ?", tenantID, vmUuid).First(&vm).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			vm = model.VmRegistration{
				TenantID:  tenantID,
				VmUuid:    vmUuid,
				UserID:    userID,
				VmName:    input.VmName,
				ProjectID: input.ProjectID,
				Status:    model.VmStatusActive,
				Metadata:  datatypes.JSONMap(input.Metadata),
			}
			if status != "" {
				vm.Status = status
			}
			return tx.Create(&vm).Error
		}
		if err != nil {
			return err
		}

		if vm.UserID != "" && vm.UserID != userID {
			return apperror.New(http.StatusForbidden, apperror.CodeVmOwnerMismatch, "VM 已被其他用户登记")
		}
		vm.UserID = userID
		if input.VmName != "" {
			vm.VmName = input.VmName
		}
		if input.ProjectID != "" {
			vm.ProjectID = input.ProjectID
		}
		if status != "" {
			vm.Status = status
		}
		if input.Metadata != nil {
			vm.Metadata = datatypes.JSONMap(input.Metadata)
		}
		vm.UpdatedAt = time.Now()
		return tx.Save(&vm).Error
	})
	if err != nil {
		if _, ok := apperror.As(err); ok {
			return nil, err
		}
		return nil, apperror.DBError("登记 VM 失败", err)
	}

	r.logger.Info("vm registered", "tenant_id", tenantID, "vm_uuid", vmUuid, "user_id", userID, "status", vm.Status)
	return &vm, nil
}

// VmOwnershipGuard 校验 VM 已登记、处于 active 且属于调用者
type VmOwnershipGuard struct {
	vms    VmResolver
	logger *slog.Logger
}

func NewVmOwnershipGuard(vms VmResolver, opts ...Option) *VmOwnershipGuard {
	o := buildOptions(opts)
	return &VmOwnershipGuard{vms: vms, logger: o.logger}
}

// EnsureVmOwnership 所有者为空的登记视为未分配，允许任意用户通过
func (g *VmOwnershipGuard) EnsureVmOwnership(ctx context.Context, tenantID, userID, vmUuid string) (*model.VmRegistration, error) {
	vm, err := g.vms.ResolveVm(ctx, tenantID, vmUuid)
	if err != nil {
		return nil, err
	}
	if vm == nil {
		return nil, apperror.New(http.StatusNotFound, apperror.CodeVmNotRegistered, "VM 未登记")
	}
	if vm.Status != model.VmStatusActive {
		return nil, apperror.New(http.StatusForbidden, apperror.CodeVmInactive, "VM 不处于 active 状态").
			WithDetails(map[string]any{"status": vm.Status})
	}
	if vm.UserID == "" {
		// TODO: 确认未分配 VM 的放行是否只应在初始化阶段生效
		g.logger.Warn("vm has no owner, ownership check bypassed",
			"tenant_id", tenantID, "vm_uuid", vm.VmUuid, "user_id", userID)
		return vm, nil
	}
	if vm.UserID != userID {
		return nil, apperror.New(http.StatusForbidden, apperror.CodeVmOwnerMismatch, "VM 不属于当前用户")
	}
	return vm, nil
}
