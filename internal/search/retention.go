package search

import (
	"time"

	"mailsearch/backend/internal/domain"
)

// fallbackWindowDays 日期回退层级的扩张窗口阶梯（天）。
// 各窗口互不重叠：第 i 个窗口覆盖 [now-days[i], now-days[i-1])。
var fallbackWindowDays = []int{7, 14, 30, 90, 180, 365}

// Retention 把邮箱范围映射到最大回看天数。
type Retention struct {
	personalMonths int
	sharedMonths   int
}

// NewRetention 创建保留策略解析器（单位：月，一月按 30 天计）。
func NewRetention(personalMonths, sharedMonths int) Retention {
	return Retention{personalMonths: personalMonths, sharedMonths: sharedMonths}
}

// Months 返回某范围的保留月数。
func (r Retention) Months(scope domain.MailboxScope) int {
	if scope == domain.ScopeShared {
		return r.sharedMonths
	}
	return r.personalMonths
}

// HorizonDays 返回某范围的最大回看天数。
func (r Retention) HorizonDays(scope domain.MailboxScope) int {
	return r.Months(scope) * 30
}

// Horizon 返回某范围在 now 时刻的保留边界时间点。
func (r Retention) Horizon(scope domain.MailboxScope, now time.Time) time.Time {
	return now.AddDate(0, 0, -r.HorizonDays(scope))
}

// dateWindow 半开日期窗口 [Start, End)。End 为零值表示"至今"。
type dateWindow struct {
	Start time.Time
	End   time.Time
}

// windowsFor 生成按保留边界裁剪后的日期窗口序列。
//
// 窗口起点永不早于保留边界；整个窗口都在边界之外时直接截止
// （更旧的窗口必然也在界外）。
func (r Retention) windowsFor(scope domain.MailboxScope, now time.Time) []dateWindow {
	horizon := r.Horizon(scope, now)

	var windows []dateWindow
	for i, days := range fallbackWindowDays {
		start := now.AddDate(0, 0, -days)
		var end time.Time
		if i > 0 {
			end = now.AddDate(0, 0, -fallbackWindowDays[i-1])
		}

		if !end.IsZero() && !end.After(horizon) {
			break
		}
		if start.Before(horizon) {
			start = horizon
		}

		windows = append(windows, dateWindow{Start: start, End: end})

		if start.Equal(horizon) {
			break
		}
	}
	return windows
}
