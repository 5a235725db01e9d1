// Package model 定义自动排班引擎的核心数据模型
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DateLayout 日期格式
const DateLayout = "2006-01-02"

// Violation 约束提醒（非致命）
type Violation struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	EmpID    int64  `json:"emp_id,omitempty"`
	Week     int    `json:"week,omitempty"`
	Day      string `json:"day,omitempty"`
	OnDuty   *int   `json:"on_duty,omitempty"`
	Required *int   `json:"required,omitempty"`
}

// 提醒代码
const (
	ViolationRestCycleConflict = "rest_cycle_conflict"
	ViolationMinOnDutyConflict = "min_on_duty_conflict"
	ViolationMinOnDutyShortage = "min_on_duty_shortage"
	ViolationApplyForbidden    = "apply_forbidden"
	ViolationStreak            = "streak_violation"
	ViolationRestPair          = "rest_pair_violation"
	ViolationApplySkipped      = "apply_skipped"
)

// ParseDate 解析 YYYY-MM-DD 日期（UTC零点）
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("日期格式无效 %q: %w", s, err)
	}
	return t, nil
}

// FormatDate 格式化日期
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ISOWeekday 返回 ISO 星期（1=周一 ... 7=周日）
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// NewJobID 生成任务ID
func NewJobID() string {
	return uuid.New().String()
}

// IntPtr 返回 int 指针
func IntPtr(v int) *int {
	return &v
}
