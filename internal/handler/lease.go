package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"license-lease-system/internal/apperror"
	"license-lease-system/internal/middleware"
	"license-lease-system/internal/service"
)

type LeaseRequest struct {
	VmUuid   string `json:"vm_uuid"`
	UserID   string `json:"user_id"`
	AgentID  string `json:"agent_id"`
	RunnerID string `json:"runner_id"`
	Module   string `json:"module"`
	Version  string `json:"version"`
}

type LeaseIDRequest struct {
	LeaseID string `json:"lease_id"`
	Reason  string `json:"reason"`
}

// HandleIssueLease 签发执行租约。只有特权角色可以代其他用户申请
func (h *Handler) HandleIssueLease(c *fiber.Ctx) error {
	input := new(LeaseRequest)
	if err := c.BodyParser(input); err != nil {
		return bodyError(err)
	}

	id := middleware.IdentityFrom(c)
	userID := id.UID
	if requested := strings.TrimSpace(input.UserID); requested != "" && requested != id.UID {
		if !h.isPrivileged(c) {
			return apperror.Forbidden("无权为其他用户申请租约")
		}
		userID = requested
	}

	lease, err := h.Issuer.IssueExecutionLease(c.UserContext(), service.IssueLeaseInput{
		TenantID: id.TenantID,
		UserID:   userID,
		VmUuid:   input.VmUuid,
		AgentID:  input.AgentID,
		RunnerID: input.RunnerID,
		Module:   input.Module,
		Version:  input.Version,
	})
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusCreated, lease)
}

func (h *Handler) HandleHeartbeat(c *fiber.Ctx) error {
	input := new(LeaseIDRequest)
	if err := c.BodyParser(input); err != nil {
		return bodyError(err)
	}

	id := middleware.IdentityFrom(c)
	result, err := h.Lifecycle.Heartbeat(c.UserContext(), id.TenantID, strings.TrimSpace(input.LeaseID), id.UID)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, result)
}

func (h *Handler) HandleRevoke(c *fiber.Ctx) error {
	input := new(LeaseIDRequest)
	if err := c.BodyParser(input); err != nil {
		return bodyError(err)
	}

	id := middleware.IdentityFrom(c)
	result, err := h.Lifecycle.Revoke(c.UserContext(), id.TenantID, strings.TrimSpace(input.LeaseID), id.UID, input.Reason)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, result)
}

// HandleGetLease 租约所有者或特权角色可查看
func (h *Handler) HandleGetLease(c *fiber.Ctx) error {
	id := middleware.IdentityFrom(c)
	view, err := h.Lifecycle.GetLease(c.UserContext(), id.TenantID, c.Params("leaseId"))
	if err != nil {
		return err
	}
	if view.UserID != id.UID && !h.isPrivileged(c) {
		return apperror.Forbidden("无权查看此租约")
	}
	return respond(c, fiber.StatusOK, view)
}
