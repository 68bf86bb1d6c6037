package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"license-lease-system/internal/apperror"
	"license-lease-system/internal/middleware"
	"license-lease-system/internal/model"
	"license-lease-system/internal/util"
)

type LoginInput struct {
	TenantID string `json:"tenant_id"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *Handler) HandleLogin(c *fiber.Ctx) error {
	input := new(LoginInput)
	if err := c.BodyParser(input); err != nil {
		return bodyError(err)
	}
	if input.TenantID == "" || input.Username == "" || input.Password == "" {
		return apperror.BadRequest("租户、用户名和密码不能为空")
	}

	var user model.User
	result := h.DB.WithContext(c.UserContext()).
		Where("tenant_id = ? AND username = ?", input.TenantID, input.Username).
		First(&user)
	if result.Error != nil {
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return apperror.DBError("查询用户失败", result.Error)
		}
		return apperror.Unauthorized("用户名或密码错误")
	}

	// 验证密码
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		h.recordLogin(c, &user, "failed")
		return apperror.Unauthorized("用户名或密码错误")
	}
	if user.Status == model.UserStatusDisabled {
		h.recordLogin(c, &user, "failed")
		return apperror.Forbidden("账号已停用")
	}

	// 生成JWT令牌
	token, err := util.GenerateToken(h.Config.SessionSecret, h.Config.SessionTTL(), &user)
	if err != nil {
		return apperror.ConfigError("令牌生成失败")
	}

	h.recordLogin(c, &user, "success")
	// 更新用户最后登录时间
	user.LastLogin = time.Now()
	h.DB.WithContext(c.UserContext()).Model(&user).Update("last_login", user.LastLogin)

	return respond(c, fiber.StatusOK, fiber.Map{
		"token": token,
		"user":  user,
	})
}

func (h *Handler) recordLogin(c *fiber.Ctx, user *model.User, status string) {
	loginLog := &model.LoginLog{
		TenantID:  user.TenantID,
		UserID:    user.ID,
		Username:  user.Username,
		IP:        c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
		Status:    status,
		CreatedAt: time.Now(),
	}
	if err := h.DB.WithContext(c.UserContext()).Create(loginLog).Error; err != nil {
		h.Logger.Warn("login log write failed", "tenant_id", user.TenantID, "username", user.Username, "error", err)
	}
}

func (h *Handler) currentUser(c *fiber.Ctx) (*model.User, error) {
	id := middleware.IdentityFrom(c)
	var user model.User
	err := h.DB.WithContext(c.UserContext()).
		Where("tenant_id = ? AND username = ?", id.TenantID, id.UID).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("用户不存在")
	}
	if err != nil {
		return nil, apperror.DBError("查询用户失败", err)
	}
	return &user, nil
}

func (h *Handler) HandleUserInfo(c *fiber.Ctx) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, user)
}

func (h *Handler) HandleChangePassword(c *fiber.Ctx) error {
	input := new(ChangePasswordInput)
	if err := c.BodyParser(input); err != nil {
		return bodyError(err)
	}
	if input.NewPassword == "" {
		return apperror.MissingField("newPassword")
	}

	user, err := h.currentUser(c)
	if err != nil {
		return err
	}

	// 验证当前密码
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.CurrentPassword)); err != nil {
		return apperror.Unauthorized("当前密码错误")
	}

	// 密码加密
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return apperror.BadRequest("密码加密失败")
	}

	// 更新密码
	if err := h.DB.WithContext(c.UserContext()).Model(user).Update("password", string(hashedPassword)).Error; err != nil {
		return apperror.DBError("密码更新失败", err)
	}

	return respond(c, fiber.StatusOK, fiber.Map{
		"message": "密码更新成功",
	})
}

// HandleGetLoginLogs 当前用户自己的登录记录
func (h *Handler) HandleGetLoginLogs(c *fiber.Ctx) error {
	id := middleware.IdentityFrom(c)
	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("page_size", "10"))

	if page < 1 {
		page = 1
	}
	// 限制页面大小
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}

	var logs []model.LoginLog
	var total int64

	base := func() *gorm.DB {
		return h.DB.WithContext(c.UserContext()).Model(&model.LoginLog{}).
			Where("tenant_id = ? AND username = ?", id.TenantID, id.UID)
	}

	// 获取总数
	if err := base().Count(&total).Error; err != nil {
		return apperror.DBError("获取登录日志总数失败", err)
	}

	// 获取分页数据
	offset := (page - 1) * pageSize
	if err := base().Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&logs).Error; err != nil {
		return apperror.DBError("获取登录日志失败", err)
	}

	return respondPage(c, logs, total, page, pageSize)
}
