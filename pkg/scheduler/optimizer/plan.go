package optimizer

import (
	"math/rand"
	"sort"

	"github.com/paiban/autoshift/pkg/model"
	"github.com/paiban/autoshift/pkg/scheduler/calendar"
)

// InitialSeed 初始方案使用的随机种子
const InitialSeed int64 = 12345

// PlanInput 生成方案所需的输入
type PlanInput struct {
	Calendar *calendar.Calendar
	States   []model.EmployeeState
	Rest     *model.RestPlan
	Targets  map[string]int
}

// running 员工在生成方案过程中的计数
type running struct {
	empID   int64
	gap     int
	month   int
	quarter int
	total   int
}

// BuildPlan 按天分配次班：在岗员工按 间隔降序、月次班升序、季度次班升序、
// 累计次班升序、随机数升序 排序，前 target 人上次班，其余上主班
func BuildPlan(in *PlanInput, seed int64) *model.Plan {
	rng := rand.New(rand.NewSource(seed))

	counters := make([]*running, len(in.States))
	for i, st := range in.States {
		counters[i] = &running{
			empID:   st.EmpID,
			gap:     max(0, st.Gap),
			month:   st.MonthSecondary,
			quarter: st.QuarterSecondary,
			total:   st.TotalSecondary,
		}
	}

	plan := &model.Plan{
		Seed:          seed,
		Cells:         make(map[string]map[int64]model.ShiftValue, in.Calendar.Len()),
		DaySecondary:  make(map[string]int, in.Calendar.Len()),
		QuarterCounts: make(map[int64]int, len(counters)),
	}

	type candidate struct {
		c    *running
		tieb float64
	}
	workers := make([]candidate, 0, len(counters))

	for _, day := range in.Calendar.Days {
		workers = workers[:0]
		for _, c := range counters {
			c.gap++
			if in.Rest.IsRest(c.empID, day.Date) {
				continue
			}
			workers = append(workers, candidate{c: c, tieb: rng.Float64()})
		}

		sort.SliceStable(workers, func(i, j int) bool {
			a, b := workers[i], workers[j]
			if a.c.gap != b.c.gap {
				return a.c.gap > b.c.gap
			}
			if a.c.month != b.c.month {
				return a.c.month < b.c.month
			}
			if a.c.quarter != b.c.quarter {
				return a.c.quarter < b.c.quarter
			}
			if a.c.total != b.c.total {
				return a.c.total < b.c.total
			}
			return a.tieb < b.tieb
		})

		target := in.Targets[day.Date]
		cells := make(map[int64]model.ShiftValue, len(workers))
		for i, w := range workers {
			if i < target {
				plan.GapSamples = append(plan.GapSamples, w.c.gap)
				w.c.gap = 0
				w.c.month++
				w.c.quarter++
				w.c.total++
				cells[w.c.empID] = model.ShiftSecondary
				plan.DaySecondary[day.Date]++
				plan.SecondaryTotal++
			} else {
				cells[w.c.empID] = model.ShiftPrimary
			}
			plan.WorkTotal++
		}
		plan.Cells[day.Date] = cells
	}

	for _, c := range counters {
		plan.QuarterCounts[c.empID] = c.quarter
	}
	return plan
}
