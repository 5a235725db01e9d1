package snapshot

import (
	"testing"
	"time"

	"github.com/paiban/autoshift/pkg/model"
	"github.com/paiban/autoshift/pkg/scheduler/calendar"
)

func mustDate(s string) time.Time {
	t, err := model.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func cells(values ...model.ShiftValue) (map[string]model.ShiftValue, []string) {
	// 以 2026-03-31 结尾的连续日期
	end := mustDate("2026-03-31")
	from := end.AddDate(0, 0, -(len(values) - 1))
	window := calendar.Span(from, end)
	m := make(map[string]model.ShiftValue)
	for i, v := range values {
		if v != "" {
			m[window[i]] = v
		}
	}
	return m, window
}

func TestGap(t *testing.T) {
	const (
		R = model.ShiftRest
		P = model.ShiftPrimary
		S = model.ShiftSecondary
	)
	tests := []struct {
		name   string
		values []model.ShiftValue
		want   int
	}{
		{name: "昨天上次班", values: []model.ShiftValue{P, P, S}, want: 1},
		{name: "三天前上次班", values: []model.ShiftValue{S, P, R, P}, want: 4},
		{name: "取最近一次", values: []model.ShiftValue{S, S, P}, want: 2},
		{name: "从未上次班", values: []model.ShiftValue{P, R, P, P}, want: 4 + GapPadding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, window := cells(tt.values...)
			if got := Gap(values, window); got != tt.want {
				t.Errorf("Gap() = %d, 期望 %d", got, tt.want)
			}
		})
	}
}

func TestStreaks(t *testing.T) {
	const (
		R = model.ShiftRest
		P = model.ShiftPrimary
		S = model.ShiftSecondary
		N = model.ShiftNight
	)
	tests := []struct {
		name     string
		values   []model.ShiftValue
		wantWork int
		wantRest int
	}{
		{name: "连续上班", values: []model.ShiftValue{R, P, S, N}, wantWork: 3},
		{name: "连续休息", values: []model.ShiftValue{P, R, R}, wantRest: 2},
		{name: "最后一天为空", values: []model.ShiftValue{P, P, ""}},
		{name: "空格子中断", values: []model.ShiftValue{P, "", P, P}, wantWork: 2},
		{name: "全部上班", values: []model.ShiftValue{P, P, P, P, P}, wantWork: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, window := cells(tt.values...)
			work, rest := Streaks(values, window)
			if work != tt.wantWork || rest != tt.wantRest {
				t.Errorf("Streaks() = (%d, %d), 期望 (%d, %d)", work, rest, tt.wantWork, tt.wantRest)
			}
		})
	}
}

func TestResolveRestType(t *testing.T) {
	tests := []struct {
		name   string
		counts model.RestTypeCounts
		want   model.RestType
	}{
		{name: "无记录", counts: model.RestTypeCounts{}, want: model.RestWorkdays},
		{name: "工作日已满", counts: model.RestTypeCounts{Workdays: 2}, want: model.RestWeekend},
		{name: "周末已满", counts: model.RestTypeCounts{Weekend: 2}, want: model.RestWorkdays},
		{name: "工作日缺口更大", counts: model.RestTypeCounts{Weekend: 1}, want: model.RestWorkdays},
		{name: "周末缺口更大", counts: model.RestTypeCounts{Workdays: 1}, want: model.RestWeekend},
		{name: "都已满取较少", counts: model.RestTypeCounts{Workdays: 3, Weekend: 2}, want: model.RestWeekend},
		{name: "都已满相等", counts: model.RestTypeCounts{Workdays: 2, Weekend: 2}, want: model.RestWorkdays},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveRestType(tt.counts); got != tt.want {
				t.Errorf("ResolveRestType() = %s, 期望 %s", got, tt.want)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	start := mustDate("2026-05-04")
	from, to := calendar.HistoryWindow(start, 30, 60)

	history := model.CellMap{}
	// 4月有两次次班，3月有一次（上一季度）
	history.Set(1, "2026-03-20", model.ShiftSecondary)
	history.Set(1, "2026-04-10", model.ShiftSecondary)
	history.Set(1, "2026-05-01", model.ShiftSecondary)
	history.Set(1, "2026-05-02", model.ShiftPrimary)
	history.Set(1, "2026-05-03", model.ShiftRest)

	debt := model.CellMap{}
	debt.Set(1, "2026-02-01", model.ShiftNight)
	debt.Set(1, "2026-02-02", model.ShiftNight)
	debt.Set(1, "2026-03-05", model.ShiftMid2)
	debt.Set(1, "2026-04-05", model.ShiftNight) // 不在上一季度

	states := Build(Input{
		Employees:  []model.Employee{{ID: 1, Label: "张三"}, {ID: 2, Label: "李四"}},
		Start:      start,
		WindowFrom: from,
		WindowTo:   to,
		History:    history,
		DebtCells:  debt,
		RestCounts: map[int64]model.RestTypeCounts{2: {Workdays: 2}},
	})

	if len(states) != 2 {
		t.Fatalf("状态数 = %d, 期望 2", len(states))
	}

	s1 := states[0]
	if s1.MonthSecondary != 1 {
		t.Errorf("月次班 = %d, 期望 1", s1.MonthSecondary)
	}
	if s1.QuarterSecondary != 2 {
		t.Errorf("季度次班 = %d, 期望 2", s1.QuarterSecondary)
	}
	if s1.TotalSecondary != 3 {
		t.Errorf("窗口次班 = %d, 期望 3", s1.TotalSecondary)
	}
	if s1.Gap != 3 {
		t.Errorf("间隔 = %d, 期望 3", s1.Gap)
	}
	if s1.RestStreak != 1 || s1.WorkStreak != 0 {
		t.Errorf("连续 = (%d, %d), 期望 (0, 1)", s1.WorkStreak, s1.RestStreak)
	}
	if s1.ShiftDebt[model.ShiftNight] != 2 || s1.ShiftDebt[model.ShiftMid2] != 1 {
		t.Errorf("欠班 = %v", s1.ShiftDebt)
	}
	if s1.RequiredRest != model.RestWorkdays {
		t.Errorf("休息类型 = %s", s1.RequiredRest)
	}

	s2 := states[1]
	if s2.Gap != 60+GapPadding {
		t.Errorf("无历史间隔 = %d, 期望 %d", s2.Gap, 60+GapPadding)
	}
	if s2.RequiredRest != model.RestWeekend {
		t.Errorf("休息类型 = %s, 期望 weekend", s2.RequiredRest)
	}
	if _, ok := s2.ShiftDebt[model.ShiftMid2]; !ok {
		t.Error("欠班台账应包含 中2")
	}
}
