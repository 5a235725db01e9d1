// Package solver 提供休息周期求解器
package solver

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/paiban/autoshift/pkg/logger"
	"github.com/paiban/autoshift/pkg/model"
	"github.com/paiban/autoshift/pkg/scheduler/calendar"
)

// 连续天数硬约束
const (
	MaxWorkStreak = 6
	MaxRestStreak = 3
)

// Solver 休息周期求解器接口
type Solver interface {
	// Assign 为每位员工逐周选择休息组合
	Assign(ctx context.Context, cal *calendar.Calendar, states []model.EmployeeState, minOnDuty int) (*Result, error)

	// Name 返回求解器名称
	Name() string
}

// Result 求解结果
type Result struct {
	Plan       *model.RestPlan   `json:"plan"`
	Violations []model.Violation `json:"violations"`
	Statistics *Statistics       `json:"statistics"`
	Duration   time.Duration     `json:"duration"`
}

// Statistics 求解统计
type Statistics struct {
	Employees int `json:"employees"`
	Weeks     int `json:"weeks"`
	RestDays  int `json:"rest_days"`
	Fallbacks int `json:"fallbacks"`
}

// streak 连续上班/休息状态
type streak struct {
	work int
	rest int
}

// GreedySolver 按员工顺序逐周贪心选择休息组合
type GreedySolver struct {
	logger *logger.JobLogger
}

// NewGreedySolver 创建贪心求解器，log 可为空
func NewGreedySolver(log *logger.JobLogger) *GreedySolver {
	return &GreedySolver{logger: log}
}

// Name 返回求解器名称
func (s *GreedySolver) Name() string {
	return "GreedyRestSolver"
}

// Assign 为每位员工逐周选择休息组合。
// 每天可同时休息的人数为 员工数-最少在岗人数，选定组合后扣减。
func (s *GreedySolver) Assign(ctx context.Context, cal *calendar.Calendar, states []model.EmployeeState, minOnDuty int) (*Result, error) {
	startTime := time.Now()

	result := &Result{
		Plan:       model.NewRestPlan(),
		Statistics: &Statistics{Employees: len(states), Weeks: len(cal.Weeks)},
	}

	capacity := make(map[string]int, cal.Len())
	limit := max(0, len(states)-minOnDuty)
	for _, d := range cal.Days {
		capacity[d.Date] = limit
	}

	for _, st := range states {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		pairs := model.PairsFor(st.RequiredRest)
		result.Plan.RestTypes[st.EmpID] = st.RequiredRest
		cur := streak{work: st.WorkStreak, rest: st.RestStreak}

		for _, week := range cal.Weeks {
			chosen := -1
			best := math.MaxInt
			validFound := false
			var next streak

			for i, pair := range pairs {
				end, ok := simulate(cal, week, pair, cur, false)
				if !ok {
					continue
				}

				overloaded := false
				penalty := 0
				for _, d := range week.Days {
					if !d.InRange || !pair.Contains(d.Weekday) {
						continue
					}
					validFound = true
					if capacity[d.Date] <= 0 {
						overloaded = true
						break
					}
					penalty += capacity[d.Date]
				}
				if overloaded {
					continue
				}
				if penalty < best {
					best = penalty
					chosen = i
					next = end
				}
			}

			if chosen < 0 {
				v := model.Violation{
					Code:    model.ViolationRestCycleConflict,
					Message: fmt.Sprintf("员工 %d 在第 %d 周无法满足休息硬约束", st.EmpID, week.Index),
					EmpID:   st.EmpID,
					Week:    week.Index,
				}
				if validFound {
					v.Code = model.ViolationMinOnDutyConflict
					v.Message = fmt.Sprintf("员工 %d 的第 %d 周无法满足最少在岗人数", st.EmpID, week.Index)
				}
				result.Violations = append(result.Violations, v)
				result.Statistics.Fallbacks++
				if s.logger != nil {
					s.logger.Violation(v.Code, v.Message)
				}

				chosen = 0
				next, _ = simulate(cal, week, pairs[0], cur, true)
			}

			pair := pairs[chosen]
			for _, d := range week.Days {
				if !d.InRange || !pair.Contains(d.Weekday) {
					continue
				}
				result.Plan.MarkRest(st.EmpID, d.Date)
				result.Statistics.RestDays++
				if capacity[d.Date] > 0 {
					capacity[d.Date]--
				}
			}
			result.Plan.Pairs[st.EmpID] = append(result.Plan.Pairs[st.EmpID], pair)
			cur = next
		}
	}

	result.Duration = time.Since(startTime)
	return result, nil
}

// simulate 按组合推演一周的连续状态。排班开始前的日期已计入历史，跳过。
// force 为 true 时不因越界而拒绝。
func simulate(cal *calendar.Calendar, week model.Week, pair model.RestPair, st streak, force bool) (streak, bool) {
	for _, d := range week.Days {
		if d.Time.Before(cal.Start) {
			continue
		}
		if pair.Contains(d.Weekday) {
			st.rest++
			st.work = 0
			if st.rest > MaxRestStreak && !force {
				return st, false
			}
			continue
		}
		st.rest = 0
		if d.Holiday {
			continue
		}
		st.work++
		if st.work > MaxWorkStreak && !force {
			return st, false
		}
	}
	return st, true
}

// CheckOnDuty 检查每天在岗人数，低于要求时给出提醒
func CheckOnDuty(cal *calendar.Calendar, plan *model.RestPlan, employees []int64, minOnDuty int) []model.Violation {
	var violations []model.Violation
	for _, d := range cal.Days {
		onDuty := 0
		for _, id := range employees {
			if !plan.IsRest(id, d.Date) {
				onDuty++
			}
		}
		if onDuty < minOnDuty {
			violations = append(violations, model.Violation{
				Code:     model.ViolationMinOnDutyShortage,
				Message:  fmt.Sprintf("%s 在岗 %d 人，少于最少在岗 %d 人", d.Date, onDuty, minOnDuty),
				Day:      d.Date,
				OnDuty:   model.IntPtr(onDuty),
				Required: model.IntPtr(minOnDuty),
			})
		}
	}
	return violations
}
