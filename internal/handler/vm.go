package handler

import (
	"github.com/gofiber/fiber/v2"

	"license-lease-system/internal/middleware"
	"license-lease-system/internal/service"
)

// HandleRegisterVm 调用者登记或更新自己的 VM
func (h *Handler) HandleRegisterVm(c *fiber.Ctx) error {
	input := new(service.VmInput)
	if err := c.BodyParser(input); err != nil {
		return bodyError(err)
	}

	id := middleware.IdentityFrom(c)
	vm, err := h.Vms.UpsertVm(c.UserContext(), id.TenantID, id.UID, *input)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, vm)
}
