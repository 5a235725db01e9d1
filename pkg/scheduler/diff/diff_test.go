package diff

import (
	"testing"

	"github.com/paiban/autoshift/pkg/model"
	"github.com/paiban/autoshift/pkg/scheduler/calendar"
)

func fixture(t *testing.T) *GridInput {
	t.Helper()
	start, _ := model.ParseDate("2026-01-05")
	end, _ := model.ParseDate("2026-01-07")
	cal := calendar.Build(start, end, []string{"2026-01-06"})

	rest := model.NewRestPlan()
	rest.MarkRest(1, "2026-01-05")
	rest.MarkRest(2, "2026-01-07")

	plan := &model.Plan{Cells: map[string]map[int64]model.ShiftValue{
		"2026-01-05": {2: model.ShiftSecondary},
		"2026-01-06": {1: model.ShiftSecondary, 2: model.ShiftPrimary},
		"2026-01-07": {1: model.ShiftPrimary},
	}}

	return &GridInput{
		Calendar:    cal,
		Employees:   []model.Employee{{ID: 1, Label: "张三"}, {ID: 2, Label: "李四"}},
		States:      []model.EmployeeState{{EmpID: 1, RequiredRest: model.RestWeekend}},
		Rest:        rest,
		Plan:        plan,
		Targets:     map[string]int{"2026-01-05": 1, "2026-01-06": 1, "2026-01-07": 0},
		TargetRatio: 0.5,
	}
}

func TestBuildGrid(t *testing.T) {
	grid := BuildGrid(fixture(t))

	if len(grid.Days) != 3 || !grid.Days[1].Holiday {
		t.Fatalf("表头日期 = %+v", grid.Days)
	}
	if len(grid.Rows) != 2 {
		t.Fatalf("行数 = %d", len(grid.Rows))
	}

	tests := []struct {
		name  string
		row   model.GridRow
		want  []model.ShiftValue
		count model.RowCounts
		rest  model.RestType
	}{
		{
			name:  "张三",
			row:   grid.Rows[0],
			want:  []model.ShiftValue{model.ShiftRest, model.ShiftSecondary, model.ShiftPrimary},
			count: model.RowCounts{Secondary: 1, Primary: 1, Rest: 1},
			rest:  model.RestWeekend,
		},
		{
			name:  "李四无快照时默认工作日休息",
			row:   grid.Rows[1],
			want:  []model.ShiftValue{model.ShiftSecondary, model.ShiftPrimary, model.ShiftRest},
			count: model.RowCounts{Secondary: 1, Primary: 1, Rest: 1},
			rest:  model.RestWorkdays,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i, c := range tt.row.Cells {
				if c.Value != tt.want[i] {
					t.Errorf("%s = %q, 期望 %q", c.Date, c.Value, tt.want[i])
				}
			}
			if tt.row.Counts != tt.count {
				t.Errorf("Counts = %+v, 期望 %+v", tt.row.Counts, tt.count)
			}
			if tt.row.RequiredRest != tt.rest {
				t.Errorf("RequiredRest = %s", tt.row.RequiredRest)
			}
		})
	}

	if grid.Summary.SecondaryTotal != 2 || grid.Summary.WorkTotal != 4 || grid.Summary.ActualRatio != 0.5 {
		t.Errorf("Summary = %+v", grid.Summary)
	}
}

func TestOps(t *testing.T) {
	grid := BuildGrid(fixture(t))

	existing := model.CellMap{}
	existing.Set(1, "2026-01-05", model.ShiftRest)
	existing.Set(1, "2026-01-06", model.ShiftPrimary)
	existing.Set(2, "2026-01-05", model.ShiftSecondary)

	ops := Ops(grid, existing)
	want := []model.DiffOp{
		{EmpID: 1, Day: "2026-01-06", From: model.ShiftPrimary, To: model.ShiftSecondary},
		{EmpID: 1, Day: "2026-01-07", From: "", To: model.ShiftPrimary},
		{EmpID: 2, Day: "2026-01-06", From: "", To: model.ShiftPrimary},
		{EmpID: 2, Day: "2026-01-07", From: "", To: model.ShiftRest},
	}
	if len(ops) != len(want) {
		t.Fatalf("操作数 = %d, 期望 %d: %+v", len(ops), len(want), ops)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("ops[%d] = %+v, 期望 %+v", i, ops[i], want[i])
		}
	}

	// 应用后再次比对应为空
	if again := Ops(grid, Apply(existing, ops)); len(again) != 0 {
		t.Errorf("应用后仍有差异: %+v", again)
	}
}
