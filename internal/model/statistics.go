package model

import "time"

// DailyDownloads 每日下载解析统计
type DailyDownloads struct {
	Date    time.Time `json:"date"`
	Allowed int       `json:"allowed"`
	Denied  int       `json:"denied"`
	Errors  int       `json:"errors"`
}

// LeaseStatistics 租户内的租约与下载统计
type LeaseStatistics struct {
	TotalLeases       int64            `json:"total_leases"`
	ActiveLeases      int64            `json:"active_leases"`
	ExpiredLeases     int64            `json:"expired_leases"`
	RevokedLeases     int64            `json:"revoked_leases"`
	LeasesByModule    map[string]int64 `json:"leases_by_module"`
	DailyDownloads    []DailyDownloads `json:"daily_downloads"`
	TotalResolutions  int64            `json:"total_resolutions"`
	FailedResolutions int64            `json:"failed_resolutions"`
}

// GetSuccessRate 下载解析成功率
func (ls *LeaseStatistics) GetSuccessRate() float64 {
	if ls.TotalResolutions == 0 {
		return 0
	}
	return float64(ls.TotalResolutions-ls.FailedResolutions) / float64(ls.TotalResolutions)
}

// GetLeasesByModule 获取指定模块的租约数
func (ls *LeaseStatistics) GetLeasesByModule(module string) int64 {
	return ls.LeasesByModule[module]
}

// GetDailyDownloadsByDate 获取指定日期的下载统计
func (ls *LeaseStatistics) GetDailyDownloadsByDate(date time.Time) *DailyDownloads {
	for i := range ls.DailyDownloads {
		usage := &ls.DailyDownloads[i]
		if usage.Date.Year() == date.Year() &&
			usage.Date.Month() == date.Month() &&
			usage.Date.Day() == date.Day() {
			return usage
		}
	}
	return nil
}
