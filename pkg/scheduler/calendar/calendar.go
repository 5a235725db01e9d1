// Package calendar 构建排班日历（日期序列与按周一分组的周）
package calendar

import (
	"time"

	"github.com/paiban/autoshift/pkg/model"
)

// Calendar 排班日历
type Calendar struct {
	Start    time.Time
	End      time.Time
	Days     []model.CalendarDay // 仅范围内日期
	Weeks    []model.Week        // 以周一为起点，包含范围外的补齐日期
	holidays map[string]bool
	index    map[string]int
}

// Build 根据日期范围与节假日构建日历，起止颠倒时自动交换
func Build(start, end time.Time, holidays []string) *Calendar {
	start = truncate(start)
	end = truncate(end)
	if end.Before(start) {
		start, end = end, start
	}

	hs := make(map[string]bool, len(holidays))
	for _, h := range holidays {
		if t, err := model.ParseDate(h); err == nil {
			hs[model.FormatDate(t)] = true
		}
	}

	c := &Calendar{
		Start:    start,
		End:      end,
		holidays: hs,
		index:    make(map[string]int),
	}

	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		day := c.day(d, true)
		c.index[day.Date] = len(c.Days)
		c.Days = append(c.Days, day)
	}

	weekStart := start.AddDate(0, 0, -(model.ISOWeekday(start) - 1))
	for ws := weekStart; !ws.After(end); ws = ws.AddDate(0, 0, 7) {
		week := model.Week{
			Index: len(c.Weeks) + 1,
			Start: model.FormatDate(ws),
			Days:  make([]model.CalendarDay, 0, 7),
		}
		for i := 0; i < 7; i++ {
			d := ws.AddDate(0, 0, i)
			inRange := !d.Before(start) && !d.After(end)
			week.Days = append(week.Days, c.day(d, inRange))
		}
		c.Weeks = append(c.Weeks, week)
	}

	return c
}

func (c *Calendar) day(d time.Time, inRange bool) model.CalendarDay {
	date := model.FormatDate(d)
	return model.CalendarDay{
		Date:    date,
		Weekday: model.ISOWeekday(d),
		Holiday: c.holidays[date],
		InRange: inRange,
		Time:    d,
	}
}

// Dates 返回范围内日期字符串
func (c *Calendar) Dates() []string {
	out := make([]string, len(c.Days))
	for i, d := range c.Days {
		out[i] = d.Date
	}
	return out
}

// Len 范围内天数
func (c *Calendar) Len() int {
	return len(c.Days)
}

// Contains 日期是否在范围内
func (c *Calendar) Contains(date string) bool {
	_, ok := c.index[date]
	return ok
}

// IsHoliday 是否节假日
func (c *Calendar) IsHoliday(date string) bool {
	return c.holidays[date]
}

// MonthStart 月初
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Quarter 所属季度（1-4）
func Quarter(t time.Time) int {
	return (int(t.Month())-1)/3 + 1
}

// QuarterStart 季度首日
func QuarterStart(t time.Time) time.Time {
	month := time.Month((Quarter(t)-1)*3 + 1)
	return time.Date(t.Year(), month, 1, 0, 0, 0, 0, time.UTC)
}

// PrevQuarter 上一季度的年份与季度
func PrevQuarter(year, quarter int) (int, int) {
	if quarter <= 1 {
		return year - 1, 4
	}
	return year, quarter - 1
}

// QuarterRange 季度的起止日期（含）
func QuarterRange(year, quarter int) (time.Time, time.Time) {
	start := time.Date(year, time.Month((quarter-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 3, -1)
}

// HistoryWindow 回溯窗口：排班开始前 max(maxDays, minDays) 天至开始前一天
func HistoryWindow(start time.Time, minDays, maxDays int) (time.Time, time.Time) {
	span := maxDays
	if minDays > span {
		span = minDays
	}
	start = truncate(start)
	return start.AddDate(0, 0, -span), start.AddDate(0, 0, -1)
}

// Span 返回 [from, to] 间所有日期
func Span(from, to time.Time) []string {
	var out []string
	for d := truncate(from); !d.After(truncate(to)); d = d.AddDate(0, 0, 1) {
		out = append(out, model.FormatDate(d))
	}
	return out
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
