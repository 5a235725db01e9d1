// Package validator 对最终排班结果做硬约束复核
package validator

import (
	"fmt"

	"github.com/paiban/autoshift/pkg/model"
	"github.com/paiban/autoshift/pkg/scheduler/calendar"
)

// DetectorConfig 检测器配置
type DetectorConfig struct {
	MaxConsecutiveWork int // 最大连续上班天数
	MaxConsecutiveRest int // 最大连续休息天数
	CheckRestPairs     bool
}

// DefaultDetectorConfig 返回默认配置
func DefaultDetectorConfig() *DetectorConfig {
	return &DetectorConfig{
		MaxConsecutiveWork: 6,
		MaxConsecutiveRest: 3,
		CheckRestPairs:     true,
	}
}

// ConflictDetector 冲突检测器
type ConflictDetector struct {
	config *DetectorConfig
}

// NewConflictDetector 创建冲突检测器
func NewConflictDetector(config *DetectorConfig) *ConflictDetector {
	if config == nil {
		config = DefaultDetectorConfig()
	}
	return &ConflictDetector{config: config}
}

// DetectAll 复核结果表格，返回提醒。states 提供排班开始前的连续天数。
func (d *ConflictDetector) DetectAll(cal *calendar.Calendar, grid *model.Grid, states []model.EmployeeState) []model.Violation {
	byEmp := make(map[int64]model.EmployeeState, len(states))
	for _, st := range states {
		byEmp[st.EmpID] = st
	}

	var violations []model.Violation
	for _, row := range grid.Rows {
		st := byEmp[row.EmpID]
		violations = append(violations, d.detectStreaks(row, st)...)
		if d.config.CheckRestPairs {
			violations = append(violations, d.detectRestPairs(cal, row)...)
		}
	}
	return violations
}

// detectStreaks 连续上班/休息天数越界，每段只报一次。节假日上班不计入连续上班。
func (d *ConflictDetector) detectStreaks(row model.GridRow, st model.EmployeeState) []model.Violation {
	var violations []model.Violation
	work, rest := st.WorkStreak, st.RestStreak
	reported := false

	for _, c := range row.Cells {
		if c.Value.IsRest() {
			if work > 0 {
				reported = false
			}
			rest++
			work = 0
			if rest > d.config.MaxConsecutiveRest && !reported {
				violations = append(violations, model.Violation{
					Code:    model.ViolationStreak,
					Message: fmt.Sprintf("%s 截至 %s 连续休息 %d 天", row.Label, c.Date, rest),
					EmpID:   row.EmpID,
					Day:     c.Date,
				})
				reported = true
			}
			continue
		}

		if rest > 0 {
			reported = false
		}
		rest = 0
		if c.Holiday {
			continue
		}
		work++
		if work > d.config.MaxConsecutiveWork && !reported {
			violations = append(violations, model.Violation{
				Code:    model.ViolationStreak,
				Message: fmt.Sprintf("%s 截至 %s 连续上班 %d 天", row.Label, c.Date, work),
				EmpID:   row.EmpID,
				Day:     c.Date,
			})
			reported = true
		}
	}
	return violations
}

// detectRestPairs 每周范围内的休息日必须恰好落在一个允许的组合上
func (d *ConflictDetector) detectRestPairs(cal *calendar.Calendar, row model.GridRow) []model.Violation {
	values := make(map[string]model.ShiftValue, len(row.Cells))
	for _, c := range row.Cells {
		values[c.Date] = c.Value
	}

	var violations []model.Violation
	for _, week := range cal.Weeks {
		var restDays []int
		inRange := make(map[int]bool, 7)
		for _, day := range week.Days {
			if !day.InRange {
				continue
			}
			inRange[day.Weekday] = true
			if values[day.Date].IsRest() {
				restDays = append(restDays, day.Weekday)
			}
		}
		if matchesPair(restDays, inRange, model.PairsFor(row.RequiredRest)) {
			continue
		}
		violations = append(violations, model.Violation{
			Code:    model.ViolationRestPair,
			Message: fmt.Sprintf("%s 第 %d 周休息日 %v 不符合 %s 休息组合", row.Label, week.Index, restDays, row.RequiredRest),
			EmpID:   row.EmpID,
			Week:    week.Index,
		})
	}
	return violations
}

// matchesPair 休息日是否等于某个组合在范围内的部分
func matchesPair(restDays []int, inRange map[int]bool, pairs []model.RestPair) bool {
	rest := make(map[int]bool, len(restDays))
	for _, wd := range restDays {
		rest[wd] = true
	}
	for _, p := range pairs {
		ok := true
		for wd := 1; wd <= 7; wd++ {
			if rest[wd] != (inRange[wd] && p.Contains(wd)) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}
