// Package diff 生成结果表格并与已有排班比对出编辑操作
package diff

import (
	"github.com/paiban/autoshift/pkg/model"
	"github.com/paiban/autoshift/pkg/scheduler/calendar"
)

// GridInput 生成结果表格所需的输入
type GridInput struct {
	Calendar    *calendar.Calendar
	Employees   []model.Employee
	States      []model.EmployeeState
	Rest        *model.RestPlan
	Plan        *model.Plan
	Targets     map[string]int
	TargetRatio float64
}

// Value 员工某天的最终班次：休息优先，其次方案中的次班，其余为主班
func Value(rest *model.RestPlan, plan *model.Plan, empID int64, date string) model.ShiftValue {
	if rest.IsRest(empID, date) {
		return model.ShiftRest
	}
	if plan.Value(date, empID) == model.ShiftSecondary {
		return model.ShiftSecondary
	}
	return model.ShiftPrimary
}

// BuildGrid 把休息计划与次班方案叠加成结果表格
func BuildGrid(in *GridInput) *model.Grid {
	grid := &model.Grid{
		Days: make([]model.GridDay, 0, in.Calendar.Len()),
		Rows: make([]model.GridRow, 0, len(in.Employees)),
	}
	for _, d := range in.Calendar.Days {
		grid.Days = append(grid.Days, model.GridDay{Date: d.Date, Weekday: d.Weekday, Holiday: d.Holiday})
	}

	required := make(map[int64]model.RestType, len(in.States))
	for _, st := range in.States {
		required[st.EmpID] = st.RequiredRest
	}

	for _, emp := range in.Employees {
		row := model.GridRow{
			EmpID:        emp.ID,
			Label:        emp.Label,
			RequiredRest: required[emp.ID],
			Cells:        make([]model.GridCell, 0, in.Calendar.Len()),
		}
		if row.RequiredRest == "" {
			row.RequiredRest = model.RestWorkdays
		}
		for _, d := range in.Calendar.Days {
			v := Value(in.Rest, in.Plan, emp.ID, d.Date)
			switch v {
			case model.ShiftRest:
				row.Counts.Rest++
			case model.ShiftSecondary:
				row.Counts.Secondary++
				grid.Summary.SecondaryTotal++
			default:
				row.Counts.Primary++
			}
			if v != model.ShiftRest {
				grid.Summary.WorkTotal++
			}
			row.Cells = append(row.Cells, model.GridCell{
				Date:    d.Date,
				Value:   v,
				Weekday: d.Weekday,
				Holiday: d.Holiday,
			})
		}
		grid.Rows = append(grid.Rows, row)
	}

	grid.Summary.TargetRatio = in.TargetRatio
	if grid.Summary.WorkTotal > 0 {
		grid.Summary.ActualRatio = float64(grid.Summary.SecondaryTotal) / float64(grid.Summary.WorkTotal)
	}
	grid.Summary.DayTargets = make(map[string]int, len(in.Targets))
	for date, n := range in.Targets {
		grid.Summary.DayTargets[date] = n
	}
	return grid
}

// Ops 按 员工、日期 顺序比对表格与已有格子，只为不同的格子生成操作。
// 已有格子缺失时 from 为空。
func Ops(grid *model.Grid, existing model.CellMap) []model.DiffOp {
	ops := make([]model.DiffOp, 0)
	for _, row := range grid.Rows {
		for _, c := range row.Cells {
			from := existing.Get(row.EmpID, c.Date)
			if from == c.Value {
				continue
			}
			ops = append(ops, model.DiffOp{
				EmpID: row.EmpID,
				Day:   c.Date,
				From:  from,
				To:    c.Value,
			})
		}
	}
	return ops
}

// Apply 把操作叠加到格子副本上，返回新的格子集合
func Apply(existing model.CellMap, ops []model.DiffOp) model.CellMap {
	out := make(model.CellMap, len(existing))
	for emp, days := range existing {
		for day, v := range days {
			out.Set(emp, day, v)
		}
	}
	for _, op := range ops {
		out.Set(op.EmpID, op.Day, op.To)
	}
	return out
}
