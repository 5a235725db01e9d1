package optimizer

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/paiban/autoshift/pkg/model"
	"github.com/paiban/autoshift/pkg/scheduler/calendar"
	"github.com/paiban/autoshift/pkg/scheduler/solver"
)

func weekCalendar(t *testing.T) *calendar.Calendar {
	t.Helper()
	start, _ := model.ParseDate("2026-01-05")
	end, _ := model.ParseDate("2026-01-11")
	return calendar.Build(start, end, nil)
}

// threeEmployees 7 天、3 人、最少在岗 1 人、无历史
func threeEmployees(t *testing.T) (*calendar.Calendar, []model.EmployeeState, *model.RestPlan) {
	t.Helper()
	cal := weekCalendar(t)
	states := []model.EmployeeState{
		{EmpID: 1, Gap: 37, RequiredRest: model.RestWorkdays},
		{EmpID: 2, Gap: 37, RequiredRest: model.RestWorkdays},
		{EmpID: 3, Gap: 37, RequiredRest: model.RestWorkdays},
	}
	res, err := solver.NewGreedySolver(nil).Assign(context.Background(), cal, states, 1)
	if err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	return cal, states, res.Plan
}

func TestDayTargets_ThreeEmployees(t *testing.T) {
	cal, _, rest := threeEmployees(t)
	targets := DayTargets(cal, rest, []int64{1, 2, 3}, 0.5)

	if targets.TotalSlots != 15 {
		t.Fatalf("在岗总数 = %d, 期望 15", targets.TotalSlots)
	}
	want := int(math.Round(float64(targets.TotalSlots) * 0.5))
	if got := targets.Sum(); got != want || targets.TotalTarget != want {
		t.Errorf("目标合计 = %d (TotalTarget=%d), 期望 %d", got, targets.TotalTarget, want)
	}
	for _, d := range targets.Days {
		if d.Target < 0 || d.Target > d.Slots {
			t.Errorf("%s 目标 %d 超出 [0,%d]", d.Date, d.Target, d.Slots)
		}
		if d.Slots == 2 && d.Target != 1 {
			t.Errorf("%s 两人在岗时目标 = %d, 期望 1", d.Date, d.Target)
		}
	}
}

func TestDayTargets_SumMatchesRounded(t *testing.T) {
	start, _ := model.ParseDate("2026-03-02")
	end, _ := model.ParseDate("2026-04-12")
	cal := calendar.Build(start, end, nil)

	states := make([]model.EmployeeState, 7)
	ids := make([]int64, len(states))
	for i := range states {
		states[i] = model.EmployeeState{EmpID: int64(i + 1), RequiredRest: model.RestWorkdays}
		if i%2 == 1 {
			states[i].RequiredRest = model.RestWeekend
		}
		ids[i] = int64(i + 1)
	}
	res, err := solver.NewGreedySolver(nil).Assign(context.Background(), cal, states, 3)
	if err != nil {
		t.Fatal(err)
	}

	for _, ratio := range []float64{0, 0.13, 0.3, 0.5, 0.77, 1} {
		targets := DayTargets(cal, res.Plan, ids, ratio)
		want := int(math.Round(float64(targets.TotalSlots) * ratio))
		if got := targets.Sum(); got != want {
			t.Errorf("ratio=%.2f 目标合计 = %d, 期望 %d", ratio, got, want)
		}
		for date, n := range targets.ByDate() {
			if n < 0 {
				t.Errorf("ratio=%.2f %s 目标为负", ratio, date)
			}
		}
	}
}

func TestBuildPlan_GapPriority(t *testing.T) {
	start, _ := model.ParseDate("2026-01-05")
	cal := calendar.Build(start, start, nil)

	in := &PlanInput{
		Calendar: cal,
		States: []model.EmployeeState{
			{EmpID: 1, Gap: 2},
			{EmpID: 2, Gap: 40},
		},
		Rest:    model.NewRestPlan(),
		Targets: map[string]int{"2026-01-05": 1},
	}

	for _, seed := range []int64{InitialSeed, 1, 99} {
		plan := BuildPlan(in, seed)
		if got := plan.Value("2026-01-05", 2); got != model.ShiftSecondary {
			t.Errorf("seed=%d 间隔大的员工应上次班, got %q", seed, got)
		}
		if got := plan.Value("2026-01-05", 1); got != model.ShiftPrimary {
			t.Errorf("seed=%d 另一员工应上主班, got %q", seed, got)
		}
	}
}

func TestBuildPlan_CountsFollowTargets(t *testing.T) {
	cal, states, rest := threeEmployees(t)
	targets := DayTargets(cal, rest, []int64{1, 2, 3}, 0.5)

	plan := BuildPlan(&PlanInput{Calendar: cal, States: states, Rest: rest, Targets: targets.ByDate()}, InitialSeed)

	if plan.WorkTotal != targets.TotalSlots {
		t.Errorf("在岗格子 = %d, 期望 %d", plan.WorkTotal, targets.TotalSlots)
	}
	if plan.SecondaryTotal != targets.Sum() {
		t.Errorf("次班总数 = %d, 期望 %d", plan.SecondaryTotal, targets.Sum())
	}
	for _, d := range cal.Days {
		if plan.DaySecondary[d.Date] != targets.ByDate()[d.Date] {
			t.Errorf("%s 次班 %d, 目标 %d", d.Date, plan.DaySecondary[d.Date], targets.ByDate()[d.Date])
		}
		for _, st := range states {
			if rest.IsRest(st.EmpID, d.Date) && plan.Value(d.Date, st.EmpID) != "" {
				t.Errorf("员工 %d 在 %s 休息却被排班", st.EmpID, d.Date)
			}
		}
	}

	again := BuildPlan(&PlanInput{Calendar: cal, States: states, Rest: rest, Targets: targets.ByDate()}, InitialSeed)
	for _, d := range cal.Days {
		for _, st := range states {
			if plan.Value(d.Date, st.EmpID) != again.Value(d.Date, st.EmpID) {
				t.Fatalf("同一种子结果不一致: %s 员工 %d", d.Date, st.EmpID)
			}
		}
	}
}

func TestScore(t *testing.T) {
	cal := weekCalendar(t)

	tests := []struct {
		name        string
		plan        *model.Plan
		target      float64
		wantRatio   float64
		wantRecency float64
		wantWarning bool
	}{
		{
			name: "无次班时给出偏离提醒",
			plan: &model.Plan{
				DaySecondary:  map[string]int{},
				QuarterCounts: map[int64]int{1: 0, 2: 0},
				WorkTotal:     10,
			},
			target:      0.3,
			wantRatio:   0.7,
			wantRecency: 0.5,
			wantWarning: true,
		},
		{
			name: "比例吻合",
			plan: &model.Plan{
				DaySecondary:   map[string]int{"2026-01-05": 1, "2026-01-06": 1, "2026-01-07": 1, "2026-01-08": 1, "2026-01-09": 1, "2026-01-10": 1, "2026-01-11": 1},
				QuarterCounts:  map[int64]int{1: 4, 2: 3},
				GapSamples:     []int{20, 20, 20, 20, 20, 20, 20},
				SecondaryTotal: 7,
				WorkTotal:      14,
			},
			target:      0.5,
			wantRatio:   1,
			wantRecency: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Score(cal, tt.plan, tt.target, model.DefaultScoreWeights())
			if math.Abs(m.Components.Ratio-tt.wantRatio) > 1e-9 {
				t.Errorf("Ratio = %v, 期望 %v", m.Components.Ratio, tt.wantRatio)
			}
			if math.Abs(m.Components.Recency-tt.wantRecency) > 1e-9 {
				t.Errorf("Recency = %v, 期望 %v", m.Components.Recency, tt.wantRecency)
			}
			if (len(m.Warnings) > 0) != tt.wantWarning {
				t.Errorf("Warnings = %v", m.Warnings)
			}
			if m.Score < 0 || m.Score > 1 {
				t.Errorf("Score = %v 超出 [0,1]", m.Score)
			}
		})
	}
}

func TestOptimizer_SearchNeverWorse(t *testing.T) {
	cal, states, rest := threeEmployees(t)
	targets := DayTargets(cal, rest, []int64{1, 2, 3}, 0.5)
	in := &PlanInput{Calendar: cal, States: states, Rest: rest, Targets: targets.ByDate()}

	opt := New(in, SearchConfig{
		Budget:           50 * time.Millisecond,
		RandSeed:         7,
		Workers:          2,
		ProgressInterval: time.Millisecond,
		TargetRatio:      0.5,
	})
	initial := opt.Initial()

	var reports []Progress
	res := opt.Search(context.Background(), initial, func(p Progress) {
		reports = append(reports, p)
	})

	if res.Best.Metrics.Score < initial.Metrics.Score {
		t.Errorf("最优得分 %v 低于初始 %v", res.Best.Metrics.Score, initial.Metrics.Score)
	}
	if res.Iterations == 0 {
		t.Error("预算内应至少评估一个候选")
	}
	if res.Cancelled {
		t.Error("未取消却标记为取消")
	}
	last := -1.0
	for _, p := range reports {
		if p.BestScore < last {
			t.Errorf("进度中的最优得分下降: %v < %v", p.BestScore, last)
		}
		last = p.BestScore
		if f := p.Fraction(); f < 0 || f > 1 {
			t.Errorf("Fraction = %v", f)
		}
	}
	if math.Abs(res.Best.Metrics.ActualRatio-0.5) > 0.1 && len(res.Best.Metrics.Warnings) == 0 {
		t.Error("比例偏离超过 0.1 时应有提醒")
	}
}

func TestOptimizer_SearchCancelled(t *testing.T) {
	cal, states, rest := threeEmployees(t)
	targets := DayTargets(cal, rest, []int64{1, 2, 3}, 0.5)
	opt := New(&PlanInput{Calendar: cal, States: states, Rest: rest, Targets: targets.ByDate()}, SearchConfig{
		Budget:      time.Minute,
		TargetRatio: 0.5,
	})
	initial := opt.Initial()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	res := opt.Search(ctx, initial, nil)
	if !res.Cancelled {
		t.Error("应标记为取消")
	}
	if res.Iterations != 0 || res.Best.Plan != initial.Plan {
		t.Errorf("取消后不应继续搜索, iterations=%d", res.Iterations)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("取消后应立即返回")
	}
}

func TestFormatETA(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, ""},
		{-time.Second, ""},
		{500 * time.Millisecond, ""},
		{45 * time.Second, "45s"},
		{2 * time.Minute, "2m"},
		{125 * time.Second, "2m5s"},
		{time.Hour, "1h"},
		{63 * time.Minute, "1h3m"},
	}
	for _, tt := range tests {
		if got := FormatETA(tt.in); got != tt.want {
			t.Errorf("FormatETA(%v) = %q, 期望 %q", tt.in, got, tt.want)
		}
	}
}
