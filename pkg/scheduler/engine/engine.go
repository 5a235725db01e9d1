// Package engine 串联日历、快照、休息周期、次班搜索与差异生成，执行一次自动排班
package engine

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/paiban/autoshift/pkg/errors"
	"github.com/paiban/autoshift/pkg/logger"
	"github.com/paiban/autoshift/pkg/model"
	"github.com/paiban/autoshift/pkg/scheduler/calendar"
	"github.com/paiban/autoshift/pkg/scheduler/diff"
	"github.com/paiban/autoshift/pkg/scheduler/optimizer"
	"github.com/paiban/autoshift/pkg/scheduler/snapshot"
	"github.com/paiban/autoshift/pkg/scheduler/solver"
	"github.com/paiban/autoshift/pkg/validator"
)

// DataSource 排班所需的只读数据
type DataSource interface {
	// TeamEmployees 团队在职员工，按排序号
	TeamEmployees(ctx context.Context, teamID int64) ([]model.Employee, error)
	// Cells 读取 [from, to] 内的格子
	Cells(ctx context.Context, teamID int64, empIDs []int64, from, to time.Time) (model.CellMap, error)
	// RestCycleCounts 统计 year 年 quarter 之前各季度的休息类型使用次数
	RestCycleCounts(ctx context.Context, teamID int64, empIDs []int64, year, quarter int) (map[int64]model.RestTypeCounts, error)
}

// Authorizer 查询操作人权限，用户不存在时返回 nil
type Authorizer interface {
	Actor(ctx context.Context, userID int64) (*model.Actor, error)
}

// Writer 在一个事务内写入编辑操作与台账
type Writer interface {
	Apply(ctx context.Context, req *model.ApplyRequest) (*model.ApplyResult, error)
}

// Reporter 接收进度事件
type Reporter func(model.Event)

// Config 引擎配置
type Config struct {
	Workers          int           // 并行评估协程数
	BatchSize        int           // 每批候选数
	ProgressInterval time.Duration // 优化阶段进度间隔
	MaxBudget        time.Duration // 大于 0 时限制搜索时长上限
	RandSeed         int64         // 非 0 时固定搜索种子
}

// Engine 自动排班引擎
type Engine struct {
	source DataSource
	auth   Authorizer
	writer Writer
	config Config
}

// New 创建引擎
func New(source DataSource, auth Authorizer, writer Writer, config Config) *Engine {
	return &Engine{
		source: source,
		auth:   auth,
		writer: writer,
		config: config,
	}
}

// Run 执行排班流水线。ctx 取消只会让优化阶段提前结束，流水线仍会走完整理阶段。
func (e *Engine) Run(ctx context.Context, job *model.Job, report Reporter) (*model.Result, error) {
	if report == nil {
		report = func(model.Event) {}
	}
	params := job.Params
	log := logger.NewJobLogger(job.ID, job.TeamID)
	dataCtx := context.WithoutCancel(ctx)

	emit := func(phase model.Phase, progress float64, score *float64, note string) {
		log.Phase(string(phase), progress, note)
		report(model.Event{Phase: phase, Progress: progress, Score: score, Note: note, Timestamp: time.Now()})
	}

	emit(model.PhaseInit, 0.05, nil, "载入团队与员工")

	if job.TeamID <= 0 {
		return nil, apperrors.InvalidInput("team_id", "缺少有效的团队")
	}
	employees, err := e.loadEmployees(dataCtx, job.TeamID, params.Employees)
	if err != nil {
		return nil, err
	}
	if len(employees) == 0 {
		return nil, apperrors.ErrNoEligibleStaff
	}
	empIDs := make([]int64, len(employees))
	for i, emp := range employees {
		empIDs[i] = emp.ID
	}

	start, err := model.ParseDate(params.StartDate)
	if err != nil {
		return nil, apperrors.InvalidInput("start_date", err.Error())
	}
	end, err := model.ParseDate(params.EndDate)
	if err != nil {
		return nil, apperrors.InvalidInput("end_date", err.Error())
	}
	cal := calendar.Build(start, end, params.Holidays)
	log.Queued(len(employees), cal.Len())

	states, existing, err := e.loadSnapshot(dataCtx, job.TeamID, employees, empIDs, cal, params)
	if err != nil {
		return nil, err
	}

	emit(model.PhaseSeedRest, 0.15, nil, "铺设休息周期")
	restResult, err := solver.NewGreedySolver(log).Assign(dataCtx, cal, states, params.MinOnDuty)
	if err != nil {
		return nil, fmt.Errorf("铺设休息周期失败: %w", err)
	}
	violations := append([]model.Violation{}, restResult.Violations...)

	emit(model.PhaseFixOnDuty, 0.35, nil, "检查在岗约束")
	violations = append(violations, solver.CheckOnDuty(cal, restResult.Plan, empIDs, params.MinOnDuty)...)

	emit(model.PhaseAssignSecondary, 0.5, nil, "按比例分配中班")
	targets := optimizer.DayTargets(cal, restResult.Plan, empIDs, params.TargetRatio.Secondary)
	weights := model.DefaultScoreWeights()
	if params.Weights != nil {
		weights = *params.Weights
	}

	budget := params.ThinkBudget()
	if e.config.MaxBudget > 0 && budget > e.config.MaxBudget {
		budget = e.config.MaxBudget
	}
	opt := optimizer.New(&optimizer.PlanInput{
		Calendar: cal,
		States:   states,
		Rest:     restResult.Plan,
		Targets:  targets.ByDate(),
	}, optimizer.SearchConfig{
		Budget:           budget,
		RandSeed:         e.config.RandSeed,
		BatchSize:        e.config.BatchSize,
		Workers:          e.config.Workers,
		ProgressInterval: e.config.ProgressInterval,
		TargetRatio:      params.TargetRatio.Secondary,
		Weights:          weights,
	})

	initial := opt.Initial()
	emit(model.PhaseAssignSecondary, 0.65, scorePtr(initial.Metrics.Score), "初始方案完成")

	search := opt.Search(ctx, initial, func(p optimizer.Progress) {
		eta := optimizer.FormatETA(p.Remaining)
		report(model.Event{
			Phase:      model.PhaseImprove,
			Progress:   min(0.9, 0.65+min(0.2, p.Fraction()*0.2)),
			Score:      scorePtr(p.BestScore),
			Note:       "优化中",
			ETA:        &eta,
			Iterations: p.Iterations,
			Timestamp:  time.Now(),
		})
	})
	best := search.Best
	note := "优化完成"
	if search.Cancelled {
		note = "优化已提前结束"
	}
	emit(model.PhaseImprove, 0.9, scorePtr(best.Metrics.Score), note)

	grid := diff.BuildGrid(&diff.GridInput{
		Calendar:    cal,
		Employees:   employees,
		States:      states,
		Rest:        restResult.Plan,
		Plan:        best.Plan,
		Targets:     targets.ByDate(),
		TargetRatio: params.TargetRatio.Secondary,
	})
	for _, w := range best.Metrics.Warnings {
		violations = append(violations, model.Violation{Code: w.Code, Message: w.Message})
	}
	violations = append(violations, validator.NewConflictDetector(nil).DetectAll(cal, grid, states)...)

	prevYear, prevQuarter := calendar.PrevQuarter(start.Year(), calendar.Quarter(start))
	result := &model.Result{
		Grid:        *grid,
		DiffOps:     diff.Ops(grid, existing),
		Metrics:     best.Metrics,
		RestCycle:   restResult.Plan.RestTypes,
		ShiftDebt:   make(map[int64]map[model.ShiftValue]float64, len(states)),
		Period:      model.LedgerPeriod{Year: start.Year(), Quarter: calendar.Quarter(start)},
		PriorPeriod: model.LedgerPeriod{Year: prevYear, Quarter: prevQuarter},
		Iterations:  search.Iterations,
	}
	for _, st := range states {
		result.ShiftDebt[st.EmpID] = st.ShiftDebt
	}

	if params.Apply {
		applied, err := e.Apply(dataCtx, job.TeamID, job.CreatedBy, result)
		switch {
		case apperrors.Is(err, apperrors.CodeApplyForbidden):
			violations = append(violations, model.Violation{
				Code:    model.ViolationApplyForbidden,
				Message: apperrors.GetMessage(err),
			})
		case err != nil:
			return nil, err
		default:
			result.AutoApplied = true
			result.ApplyVersions = applied.Versions
			if applied.SkippedOps > 0 {
				violations = append(violations, skippedViolation(applied.SkippedOps))
			}
		}
	}

	result.Violations = violations

	emit(model.PhaseFinalize, 0.95, scorePtr(best.Metrics.Score), "整理结果")
	return result, nil
}

// Apply 复核权限后写入结果中的编辑操作与台账。
// 操作人无效或无权限时返回 APPLY_FORBIDDEN 错误。
func (e *Engine) Apply(ctx context.Context, teamID, userID int64, result *model.Result) (*model.ApplyResult, error) {
	if userID <= 0 {
		return nil, apperrors.ApplyForbidden("缺少有效的操作人，无法自动应用")
	}
	actor, err := e.auth.Actor(ctx, userID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "读取操作人权限失败")
	}
	if !actor.CanEditTeam(teamID) {
		return nil, apperrors.ApplyForbidden("当前账号没有自动写入该团队的权限")
	}

	applied, err := e.writer.Apply(ctx, &model.ApplyRequest{
		TeamID:    teamID,
		UserID:    userID,
		Ops:       result.DiffOps,
		Period:    result.Period,
		RestCycle: result.RestCycle,
		ShiftDebt: result.ShiftDebt,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "写入排班失败")
	}
	return applied, nil
}

// loadEmployees 只保留团队内的员工，顺序与选择一致；未选择时取整个团队
func (e *Engine) loadEmployees(ctx context.Context, teamID int64, selected []model.Employee) ([]model.Employee, error) {
	roster, err := e.source.TeamEmployees(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("载入团队员工失败: %w", err)
	}
	if len(selected) == 0 {
		return roster, nil
	}

	byID := make(map[int64]model.Employee, len(roster))
	for _, emp := range roster {
		byID[emp.ID] = emp
	}
	out := make([]model.Employee, 0, len(selected))
	for _, sel := range selected {
		emp, ok := byID[sel.ID]
		if !ok {
			continue
		}
		if sel.Label != "" {
			emp.Label = sel.Label
		}
		out = append(out, emp)
	}
	return out, nil
}

// loadSnapshot 读取历史、上季度格子、休息台账与排班范围内已有格子，生成员工状态
func (e *Engine) loadSnapshot(ctx context.Context, teamID int64, employees []model.Employee, empIDs []int64, cal *calendar.Calendar, params model.Params) ([]model.EmployeeState, model.CellMap, error) {
	start := cal.Start
	windowFrom, windowTo := calendar.HistoryWindow(start, params.HistoryMin, params.HistoryMax)
	historyFrom := windowFrom
	if qs := calendar.QuarterStart(start); qs.Before(historyFrom) {
		historyFrom = qs
	}
	history, err := e.source.Cells(ctx, teamID, empIDs, historyFrom, windowTo)
	if err != nil {
		return nil, nil, fmt.Errorf("载入历史排班失败: %w", err)
	}

	year, quarter := calendar.PrevQuarter(start.Year(), calendar.Quarter(start))
	debtFrom, debtTo := calendar.QuarterRange(year, quarter)
	debtCells, err := e.source.Cells(ctx, teamID, empIDs, debtFrom, debtTo)
	if err != nil {
		return nil, nil, fmt.Errorf("载入上季度排班失败: %w", err)
	}

	counts, err := e.source.RestCycleCounts(ctx, teamID, empIDs, start.Year(), calendar.Quarter(start))
	if err != nil {
		return nil, nil, fmt.Errorf("载入休息台账失败: %w", err)
	}

	existing, err := e.source.Cells(ctx, teamID, empIDs, cal.Start, cal.End)
	if err != nil {
		return nil, nil, fmt.Errorf("载入已有排班失败: %w", err)
	}

	states := snapshot.Build(snapshot.Input{
		Employees:  employees,
		Start:      start,
		WindowFrom: windowFrom,
		WindowTo:   windowTo,
		History:    history,
		DebtCells:  debtCells,
		RestCounts: counts,
	})
	return states, existing, nil
}

func skippedViolation(n int) model.Violation {
	return model.Violation{
		Code:    model.ViolationApplySkipped,
		Message: fmt.Sprintf("%d 个格子在排班期间已被修改，未覆盖", n),
	}
}

func scorePtr(v float64) *float64 {
	return &v
}
