package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// 错误码
const (
	CodeBadRequest                 = "BAD_REQUEST"
	CodeUnauthorized               = "UNAUTHORIZED"
	CodeForbidden                  = "FORBIDDEN"
	CodeNotFound                   = "NOT_FOUND"
	CodeConfigError                = "CONFIG_ERROR"
	CodeDBError                    = "DB_ERROR"
	CodeServiceUnavailable         = "SERVICE_UNAVAILABLE"
	CodeInternalError              = "INTERNAL_ERROR"
	CodeVmNotRegistered            = "VM_NOT_REGISTERED"
	CodeVmInactive                 = "VM_INACTIVE"
	CodeVmOwnerMismatch            = "VM_OWNER_MISMATCH"
	CodeLicenseInactive            = "LICENSE_INACTIVE"
	CodeEntitlementRequired        = "ENTITLEMENT_REQUIRED"
	CodeModuleNotAllowed           = "MODULE_NOT_ALLOWED"
	CodeLeaseNotFound              = "LEASE_NOT_FOUND"
	CodeLeaseOwnerMismatch         = "LEASE_OWNER_MISMATCH"
	CodeLeaseInactive              = "LEASE_INACTIVE"
	CodeLeaseExpired               = "LEASE_EXPIRED"
	CodeVmUuidMismatch             = "VM_UUID_MISMATCH"
	CodeModuleMismatch             = "MODULE_MISMATCH"
	CodeArtifactScopeMismatch      = "ARTIFACT_SCOPE_MISMATCH"
	CodeArtifactAssignmentNotFound = "ARTIFACT_ASSIGNMENT_NOT_FOUND"
	CodeArtifactReleaseNotFound    = "ARTIFACT_RELEASE_NOT_FOUND"
	CodeArtifactReleaseNotActive   = "ARTIFACT_RELEASE_NOT_ACTIVE"
	CodeArtifactObjectNotFound     = "ARTIFACT_OBJECT_NOT_FOUND"
)

// Error 带状态码的业务错误，路由层按 Status 直接映射为 HTTP 响应
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// WithDetails 返回附带详情的副本
func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// New 创建业务错误
func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// Wrap 创建包装底层错误的业务错误
func Wrap(status int, code, message string, cause error) *Error {
	return &Error{Status: status, Code: code, Message: message, cause: cause}
}

// As 从错误链中取出 *Error
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode 判断错误链中是否包含指定错误码
func HasCode(err error, code string) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// Classify 把任意错误归类为 *Error，未识别的错误视为 INTERNAL_ERROR
func Classify(err error) *Error {
	if appErr, ok := As(err); ok {
		return appErr
	}
	return Wrap(http.StatusInternalServerError, CodeInternalError, "内部错误", err)
}

func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, CodeBadRequest, message)
}

// MissingField 缺少必填字段
func MissingField(field string) *Error {
	return New(http.StatusBadRequest, CodeBadRequest, "缺少必填字段: "+field).
		WithDetails(map[string]any{"field": field})
}

func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, CodeUnauthorized, message)
}

func Forbidden(message string) *Error {
	return New(http.StatusForbidden, CodeForbidden, message)
}

func NotFound(message string) *Error {
	return New(http.StatusNotFound, CodeNotFound, message)
}

func ConfigError(message string) *Error {
	return New(http.StatusInternalServerError, CodeConfigError, message)
}

func DBError(message string, cause error) *Error {
	return Wrap(http.StatusInternalServerError, CodeDBError, message, cause)
}

func ServiceUnavailable(message string, cause error) *Error {
	return Wrap(http.StatusServiceUnavailable, CodeServiceUnavailable, message, cause)
}

func LeaseExpired() *Error {
	return New(http.StatusConflict, CodeLeaseExpired, "租约已过期")
}
