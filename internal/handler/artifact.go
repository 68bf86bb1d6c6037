package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"license-lease-system/internal/apperror"
	"license-lease-system/internal/middleware"
	"license-lease-system/internal/service"
)

type ResolveDownloadRequest struct {
	LeaseToken string `json:"lease_token"`
	VmUuid     string `json:"vm_uuid"`
	Module     string `json:"module"`
	Platform   string `json:"platform"`
	Channel    string `json:"channel"`
}

// AuditQuery 审计查询参数
type AuditQuery struct {
	Page     int    `query:"page"`
	PageSize int    `query:"page_size"`
	Result   string `query:"result"`
	LeaseID  string `query:"lease_id"`
}

func (h *Handler) HandleCreateRelease(c *fiber.Ctx) error {
	input := new(service.ReleaseInput)
	if err := c.BodyParser(input); err != nil {
		return bodyError(err)
	}

	id := middleware.IdentityFrom(c)
	release, err := h.Releases.CreateRelease(c.UserContext(), id.TenantID, id.UID, *input)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusCreated, release)
}

func (h *Handler) HandleAssign(c *fiber.Ctx) error {
	input := new(service.AssignmentInput)
	if err := c.BodyParser(input); err != nil {
		return bodyError(err)
	}

	id := middleware.IdentityFrom(c)
	assignment, err := h.Assignments.UpsertAssignment(c.UserContext(), id.TenantID, id.UID, *input)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusCreated, assignment)
}

// HandleGetAssignments 返回指定用户在该作用域下的用户分配、默认分配和生效分配
func (h *Handler) HandleGetAssignments(c *fiber.Ctx) error {
	id := middleware.IdentityFrom(c)
	lookup, err := h.Assignments.GetAssignments(c.UserContext(), service.AssignmentScope{
		TenantID: id.TenantID,
		UserID:   c.Params("userId"),
		Module:   c.Params("module"),
		Platform: c.Query("platform"),
		Channel:  c.Query("channel"),
	})
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, lookup)
}

// HandleResolveDownload 令牌也可以放在 X-Lease-Token 头中
func (h *Handler) HandleResolveDownload(c *fiber.Ctx) error {
	input := new(ResolveDownloadRequest)
	if err := c.BodyParser(input); err != nil {
		return bodyError(err)
	}
	if input.LeaseToken == "" {
		input.LeaseToken = c.Get("X-Lease-Token")
	}

	id := middleware.IdentityFrom(c)
	result, err := h.Downloads.ResolveDownload(c.UserContext(), service.ResolveDownloadInput{
		TenantID:   id.TenantID,
		ActorID:    id.UID,
		LeaseToken: input.LeaseToken,
		VmUuid:     input.VmUuid,
		Module:     input.Module,
		Platform:   input.Platform,
		Channel:    input.Channel,
		RequestIP:  c.IP(),
	})
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, result)
}

func (h *Handler) HandleListAudit(c *fiber.Ctx) error {
	query := new(AuditQuery)
	if err := c.QueryParser(query); err != nil {
		return bodyError(err)
	}

	// 设置默认值
	if query.Page < 1 {
		query.Page = 1
	}
	if query.PageSize < 1 {
		query.PageSize = 20
	}
	if query.PageSize > 100 {
		query.PageSize = 100
	}

	id := middleware.IdentityFrom(c)
	events, total, err := h.Audit.ListAuditEvents(c.UserContext(), id.TenantID, service.AuditQuery{
		Page:     query.Page,
		PageSize: query.PageSize,
		Result:   query.Result,
		LeaseID:  query.LeaseID,
	})
	if err != nil {
		return apperror.DBError("获取审计日志失败", err)
	}
	c.Set("X-Total-Count", strconv.FormatInt(total, 10))
	return respondPage(c, events, total, query.Page, query.PageSize)
}
