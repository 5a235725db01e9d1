package optimizer

import (
	"math"
	"sort"

	"github.com/paiban/autoshift/pkg/model"
	"github.com/paiban/autoshift/pkg/scheduler/calendar"
)

// DayTarget 单日次班目标
type DayTarget struct {
	Date     string  `json:"date"`
	Slots    int     `json:"slots"`    // 当天在岗人数
	Target   int     `json:"target"`   // 次班人数
	Fraction float64 `json:"fraction"` // 理想值的小数部分
}

// Targets 次班目标分配结果
type Targets struct {
	Days        []DayTarget
	TotalSlots  int
	TotalTarget int
}

// ByDate 日期 -> 目标人数
func (t *Targets) ByDate() map[string]int {
	out := make(map[string]int, len(t.Days))
	for _, d := range t.Days {
		out[d.Date] = d.Target
	}
	return out
}

// Sum 各日目标之和
func (t *Targets) Sum() int {
	sum := 0
	for _, d := range t.Days {
		sum += d.Target
	}
	return sum
}

// DayTargets 用最大余数法把全周期次班总数 round(在岗总数×比例) 分摊到每天，
// 每天的目标保持在 [0, 在岗人数] 内
func DayTargets(cal *calendar.Calendar, rest *model.RestPlan, employees []int64, ratio float64) *Targets {
	t := &Targets{Days: make([]DayTarget, 0, cal.Len())}

	base := 0
	for _, d := range cal.Days {
		slots := 0
		for _, id := range employees {
			if !rest.IsRest(id, d.Date) {
				slots++
			}
		}
		ideal := float64(slots) * ratio
		target := min(int(math.Floor(ideal)), slots)
		t.Days = append(t.Days, DayTarget{
			Date:     d.Date,
			Slots:    slots,
			Target:   target,
			Fraction: ideal - float64(target),
		})
		t.TotalSlots += slots
		base += target
	}

	t.TotalTarget = int(math.Round(float64(t.TotalSlots) * ratio))
	remaining := t.TotalTarget - base

	order := make([]int, len(t.Days))
	for i := range order {
		order[i] = i
	}

	if remaining > 0 {
		sort.SliceStable(order, func(a, b int) bool {
			return t.Days[order[a]].Fraction > t.Days[order[b]].Fraction
		})
		for remaining > 0 {
			progressed := false
			for _, i := range order {
				if remaining == 0 {
					break
				}
				if t.Days[i].Target < t.Days[i].Slots {
					t.Days[i].Target++
					remaining--
					progressed = true
				}
			}
			if !progressed {
				break
			}
		}
	} else if remaining < 0 {
		sort.SliceStable(order, func(a, b int) bool {
			return t.Days[order[a]].Fraction < t.Days[order[b]].Fraction
		})
		for remaining < 0 {
			progressed := false
			for _, i := range order {
				if remaining == 0 {
					break
				}
				if t.Days[i].Target > 0 {
					t.Days[i].Target--
					remaining++
					progressed = true
				}
			}
			if !progressed {
				break
			}
		}
	}

	return t
}
