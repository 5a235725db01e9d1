package optimizer

import (
	"fmt"
	"math"
	"sort"

	"github.com/paiban/autoshift/pkg/model"
	"github.com/paiban/autoshift/pkg/scheduler/calendar"
	"github.com/paiban/autoshift/pkg/stats"
)

// DriftThreshold 实际比例偏离目标超过该值时给出提醒
const DriftThreshold = 0.1

// WarningRatioDrift 比例偏离提醒代码
const WarningRatioDrift = "ratio_drift"

// Score 计算方案评分，各分项均归一到 [0,1]，越大越好
func Score(cal *calendar.Calendar, plan *model.Plan, target float64, w model.ScoreWeights) model.Metrics {
	actual := 0.0
	if plan.WorkTotal > 0 {
		actual = float64(plan.SecondaryTotal) / float64(plan.WorkTotal)
	}
	drift := math.Abs(actual - target)

	ids := make([]int64, 0, len(plan.QuarterCounts))
	for id := range plan.QuarterCounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	quarter := make([]float64, 0, len(ids))
	for _, id := range ids {
		quarter = append(quarter, float64(plan.QuarterCounts[id]))
	}

	recency := 0.5
	if len(plan.GapSamples) > 0 {
		recency = math.Min(1, stats.Mean(stats.Floats(plan.GapSamples))/10)
	}

	daily := make([]float64, 0, cal.Len())
	for _, d := range cal.Days {
		daily = append(daily, float64(plan.DaySecondary[d.Date]))
	}

	comp := model.ScoreComponents{
		Ratio:         1 - math.Min(1, drift),
		Fairness:      stats.Balance(quarter),
		Recency:       recency,
		Concentration: stats.Balance(daily),
	}

	m := model.Metrics{
		Score: comp.Ratio*w.Ratio +
			comp.Fairness*w.Fairness +
			comp.Recency*w.Recency +
			comp.Concentration*w.Concentration,
		Components:     comp,
		ActualRatio:    actual,
		WorkTotal:      plan.WorkTotal,
		SecondaryTotal: plan.SecondaryTotal,
		Warnings:       []model.Warning{},
	}
	if drift > DriftThreshold {
		m.Warnings = append(m.Warnings, model.Warning{
			Code:    WarningRatioDrift,
			Message: fmt.Sprintf("整体中班比例 %.1f%% 偏离目标 %.1f%%", actual*100, target*100),
		})
	}
	return m
}
