// Package snapshot 根据历史排班与台账推导员工滚动状态
package snapshot

import (
	"time"

	"github.com/paiban/autoshift/pkg/model"
	"github.com/paiban/autoshift/pkg/scheduler/calendar"
)

// GapPadding 回溯窗口内从未上过次班时，间隔天数在窗口长度上追加的值
const GapPadding = 30

// Input 快照输入
type Input struct {
	Employees []model.Employee
	// Start 排班开始日期
	Start time.Time
	// WindowFrom/WindowTo 回溯窗口（含）
	WindowFrom time.Time
	WindowTo   time.Time
	// History 历史格子，至少覆盖回溯窗口与本季度初至开始前一天
	History model.CellMap
	// DebtCells 上一季度格子
	DebtCells model.CellMap
	// RestCounts 本年度此前各季度的休息类型使用次数
	RestCounts map[int64]model.RestTypeCounts
}

// Build 为每位员工生成状态，顺序与输入一致
func Build(in Input) []model.EmployeeState {
	window := calendar.Span(in.WindowFrom, in.WindowTo)
	monthFrom := model.FormatDate(calendar.MonthStart(in.Start))
	quarterFrom := model.FormatDate(calendar.QuarterStart(in.Start))
	startDate := model.FormatDate(in.Start)

	year, quarter := calendar.PrevQuarter(in.Start.Year(), calendar.Quarter(in.Start))
	debtFrom, debtTo := calendar.QuarterRange(year, quarter)

	states := make([]model.EmployeeState, 0, len(in.Employees))
	for _, emp := range in.Employees {
		values := in.History[emp.ID]

		st := model.EmployeeState{
			EmpID:        emp.ID,
			Label:        emp.Label,
			Gap:          Gap(values, window),
			RequiredRest: ResolveRestType(in.RestCounts[emp.ID]),
			ShiftDebt:    ShiftDebt(in.DebtCells[emp.ID], debtFrom, debtTo),
		}
		st.WorkStreak, st.RestStreak = Streaks(values, window)

		for day, v := range values {
			if v != model.ShiftSecondary || day >= startDate {
				continue
			}
			if day >= monthFrom {
				st.MonthSecondary++
			}
			if day >= quarterFrom {
				st.QuarterSecondary++
			}
		}
		for _, day := range window {
			if values[day] == model.ShiftSecondary {
				st.TotalSecondary++
			}
		}

		states = append(states, st)
	}
	return states
}

// Gap 距最近一次次班的天数；窗口内没有次班时为窗口长度加 GapPadding
func Gap(values map[string]model.ShiftValue, window []string) int {
	for i := len(window) - 1; i >= 0; i-- {
		if values[window[i]] == model.ShiftSecondary {
			return len(window) - i
		}
	}
	return len(window) + GapPadding
}

// Streaks 从窗口最后一天向前统计连续上班/休息天数，遇到空格子即停止
func Streaks(values map[string]model.ShiftValue, window []string) (work, rest int) {
	if len(window) == 0 {
		return 0, 0
	}
	last := values[window[len(window)-1]]
	if last == "" {
		return 0, 0
	}
	for i := len(window) - 1; i >= 0; i-- {
		v := values[window[i]]
		if v == "" {
			break
		}
		if last.IsRest() {
			if !v.IsRest() {
				break
			}
			rest++
		} else {
			if v.IsRest() {
				break
			}
			work++
		}
	}
	return work, rest
}

// ResolveRestType 根据此前季度的休息类型使用次数决定本季度休息类型：
// 次数不足 2 的类型优先，缺口相同时取工作日
func ResolveRestType(c model.RestTypeCounts) model.RestType {
	workNeed := max(0, 2-c.Workdays)
	weekNeed := max(0, 2-c.Weekend)

	if workNeed == 0 && weekNeed == 0 {
		if c.Workdays <= c.Weekend {
			return model.RestWorkdays
		}
		return model.RestWeekend
	}
	if workNeed >= weekNeed {
		return model.RestWorkdays
	}
	return model.RestWeekend
}

// ShiftDebt 统计 [from, to] 内主/次/休息之外的班次天数
func ShiftDebt(values map[string]model.ShiftValue, from, to time.Time) map[model.ShiftValue]float64 {
	debt := make(map[model.ShiftValue]float64, len(model.DebtShifts))
	for _, s := range model.DebtShifts {
		debt[s] = 0
	}
	lo, hi := model.FormatDate(from), model.FormatDate(to)
	for day, v := range values {
		if day < lo || day > hi || !v.IsOther() {
			continue
		}
		debt[v]++
	}
	return debt
}
