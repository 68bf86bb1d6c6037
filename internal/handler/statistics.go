package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"license-lease-system/internal/apperror"
	"license-lease-system/internal/middleware"
	"license-lease-system/internal/model"
)

const dateLayout = "2006-01-02"

// HandleLeaseStatistics 租户内的租约状态分布与每日下载解析统计
func (h *Handler) HandleLeaseStatistics(c *fiber.Ctx) error {
	// 解析日期
	start := time.Now().AddDate(0, 0, -30)
	end := time.Now()
	if v := c.Query("start_date"); v != "" {
		parsed, err := time.Parse(dateLayout, v)
		if err != nil {
			return apperror.BadRequest("开始日期格式错误").
				WithDetails(map[string]any{"field": "start_date", "format": "YYYY-MM-DD"})
		}
		start = parsed
	}
	if v := c.Query("end_date"); v != "" {
		parsed, err := time.Parse(dateLayout, v)
		if err != nil {
			return apperror.BadRequest("结束日期格式错误").
				WithDetails(map[string]any{"field": "end_date", "format": "YYYY-MM-DD"})
		}
		// 包含结束日期当天
		end = parsed.AddDate(0, 0, 1)
	}
	if !end.After(start) {
		return apperror.BadRequest("结束日期必须晚于开始日期")
	}

	id := middleware.IdentityFrom(c)
	db := h.DB.WithContext(c.UserContext())
	leases := func() *gorm.DB { return db.Model(&model.ExecutionLease{}).Where("tenant_id = ?", id.TenantID) }
	nowMs := time.Now().UnixMilli()

	stats := &model.LeaseStatistics{
		LeasesByModule: make(map[string]int64),
		DailyDownloads: make([]model.DailyDownloads, 0),
	}

	// 统计租约总数
	if err := leases().Count(&stats.TotalLeases).Error; err != nil {
		return apperror.DBError("获取租约总数失败", err)
	}
	// active 且未到期
	if err := leases().Where("status = ? AND expires_at_ms > ?", model.LeaseStatusActive, nowMs).
		Count(&stats.ActiveLeases).Error; err != nil {
		return apperror.DBError("获取活跃租约数失败", err)
	}
	// 过期按读取时间计算
	if err := leases().Where("status = ? AND expires_at_ms <= ?", model.LeaseStatusActive, nowMs).
		Count(&stats.ExpiredLeases).Error; err != nil {
		return apperror.DBError("获取过期租约数失败", err)
	}
	if err := leases().Where("status = ?", model.LeaseStatusRevoked).Count(&stats.RevokedLeases).Error; err != nil {
		return apperror.DBError("获取已吊销租约数失败", err)
	}

	// 按模块统计租约数量
	var moduleStats []struct {
		Module string
		Count  int64
	}
	if err := leases().Select("module, count(*) as count").Group("module").Scan(&moduleStats).Error; err != nil {
		return apperror.DBError("获取模块统计失败", err)
	}
	for _, ms := range moduleStats {
		stats.LeasesByModule[ms.Module] = ms.Count
	}

	// 每日下载解析统计
	var events []model.ArtifactDownloadAuditEvent
	if err := db.Select("result", "created_at").
		Where("tenant_id = ? AND created_at >= ? AND created_at < ?", id.TenantID, start, end).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return apperror.DBError("获取下载统计失败", err)
	}
	stats.DailyDownloads = bucketDownloads(events)
	for _, event := range events {
		stats.TotalResolutions++
		if event.Result != model.AuditResultAllowed {
			stats.FailedResolutions++
		}
	}

	return respond(c, fiber.StatusOK, fiber.Map{
		"statistics":   stats,
		"success_rate": stats.GetSuccessRate(),
		"start_date":   start.Format(dateLayout),
		"end_date":     end.AddDate(0, 0, -1).Format(dateLayout),
	})
}

// bucketDownloads 按 UTC 日期归组，events 需已按时间升序
func bucketDownloads(events []model.ArtifactDownloadAuditEvent) []model.DailyDownloads {
	days := make([]model.DailyDownloads, 0)
	for _, event := range events {
		t := event.CreatedAt.UTC()
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		if len(days) == 0 || !days[len(days)-1].Date.Equal(day) {
			days = append(days, model.DailyDownloads{Date: day})
		}
		bucket := &days[len(days)-1]
		switch event.Result {
		case model.AuditResultAllowed:
			bucket.Allowed++
		case model.AuditResultError:
			bucket.Errors++
		default:
			bucket.Denied++
		}
	}
	return days
}
