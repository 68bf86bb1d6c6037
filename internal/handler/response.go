package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"license-lease-system/internal/apperror"
)

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// respond 成功响应 {success:true,data}
func respond(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

// respondPage 分页响应，附带 meta
func respondPage(c *fiber.Ctx, data any, total int64, page, pageSize int) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
		"meta": fiber.Map{
			"total":     total,
			"page":      page,
			"page_size": pageSize,
		},
	})
}

// ErrorHandler 把业务错误按状态码原样映射为 {success:false,error}，其余错误返回 500
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(fiber.Map{
				"success": false,
				"error":   errorBody{Code: codeForStatus(fiberErr.Code), Message: fiberErr.Message},
			})
		}

		appErr := apperror.Classify(err)
		if appErr.Status >= http.StatusInternalServerError {
			logger.Error("request failed",
				"method", c.Method(), "path", c.Path(), "code", appErr.Code, "error", err)
		}
		return c.Status(appErr.Status).JSON(fiber.Map{
			"success": false,
			"error":   errorBody{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details},
		})
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return apperror.CodeBadRequest
	case http.StatusUnauthorized:
		return apperror.CodeUnauthorized
	case http.StatusForbidden:
		return apperror.CodeForbidden
	case http.StatusNotFound:
		return apperror.CodeNotFound
	case http.StatusServiceUnavailable:
		return apperror.CodeServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		return apperror.CodeInternalError
	}
	// 405 -> METHOD_NOT_ALLOWED
	return strings.ToUpper(strings.ReplaceAll(utils.StatusMessage(status), " ", "_"))
}

// bodyError 请求体解析失败
func bodyError(err error) error {
	return apperror.BadRequest("无效的输入数据").WithDetails(map[string]any{"reason": err.Error()})
}
