// Package model 定义自动排班引擎的核心数据模型
package model

import (
	"math"
	"sort"
	"time"

	apperrors "github.com/paiban/autoshift/pkg/errors"
)

// JobStatus 任务状态
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// IsTerminal 是否终态
func (s JobStatus) IsTerminal() bool {
	return s == JobDone || s == JobFailed
}

// 参数默认值与边界
const (
	DefaultThinkMinutes = 5
	MaxThinkMinutes     = 120
	DefaultHistoryMin   = 30
	DefaultHistoryMax   = 90
	MaxHistoryDays      = 120
	DefaultPrimaryRatio = 0.7
	DefaultSecondRatio  = 0.3
)

// TargetRatio 主/次班目标比例
type TargetRatio struct {
	Primary   float64 `json:"primary"`
	Secondary float64 `json:"secondary"`
}

// Params 自动排班参数
type Params struct {
	TeamID       int64         `json:"team_id"`
	StartDate    string        `json:"start_date"`
	EndDate      string        `json:"end_date"`
	MinOnDuty    int           `json:"min_on_duty"`
	ThinkMinutes int           `json:"think_minutes"`
	HistoryMin   int           `json:"history_days_min"`
	HistoryMax   int           `json:"history_days_max"`
	TargetRatio  TargetRatio   `json:"target_ratio"`
	Holidays     []string      `json:"holidays"`
	Employees    []Employee    `json:"employees"`
	Apply        bool          `json:"apply"`
	Weights      *ScoreWeights `json:"weights,omitempty"`
}

// Validate 校验参数，返回的错误为 *errors.AppError
func (p *Params) Validate() error {
	ve := &apperrors.ValidationErrors{}
	if p.TeamID <= 0 {
		ve.Add("team_id", "缺少团队")
	}
	if _, err := ParseDate(p.StartDate); err != nil {
		ve.Add("start_date", "日期格式应为 YYYY-MM-DD")
	}
	if _, err := ParseDate(p.EndDate); err != nil {
		ve.Add("end_date", "日期格式应为 YYYY-MM-DD")
	}
	valid := 0
	for _, e := range p.Employees {
		if e.ID > 0 {
			valid++
		}
	}
	if valid == 0 {
		ve.Add("employees", "请至少选择一名员工")
	}
	if ve.HasErrors() {
		return ve.ToAppError()
	}
	return nil
}

// Normalize 规范化参数（需先通过 Validate）
func (p *Params) Normalize() {
	start, _ := ParseDate(p.StartDate)
	end, _ := ParseDate(p.EndDate)
	if end.Before(start) {
		p.StartDate, p.EndDate = p.EndDate, p.StartDate
	}

	if p.MinOnDuty < 1 {
		p.MinOnDuty = 1
	}

	if p.ThinkMinutes <= 0 {
		p.ThinkMinutes = DefaultThinkMinutes
	}
	p.ThinkMinutes = clampInt(p.ThinkMinutes, 1, MaxThinkMinutes)

	if p.HistoryMin < 1 {
		p.HistoryMin = DefaultHistoryMin
	}
	if p.HistoryMax <= 0 {
		p.HistoryMax = DefaultHistoryMax
	}
	if p.HistoryMax < p.HistoryMin {
		p.HistoryMax = p.HistoryMin
	}
	if p.HistoryMax > MaxHistoryDays {
		p.HistoryMax = MaxHistoryDays
	}
	if p.HistoryMin > p.HistoryMax {
		p.HistoryMin = p.HistoryMax
	}

	primary := math.Max(0, p.TargetRatio.Primary)
	secondary := math.Max(0, p.TargetRatio.Secondary)
	if total := primary + secondary; total > 0 {
		p.TargetRatio = TargetRatio{Primary: primary / total, Secondary: secondary / total}
	} else {
		p.TargetRatio = TargetRatio{Primary: DefaultPrimaryRatio, Secondary: DefaultSecondRatio}
	}

	seen := make(map[string]bool)
	holidays := make([]string, 0, len(p.Holidays))
	for _, h := range p.Holidays {
		t, err := ParseDate(h)
		if err != nil {
			continue
		}
		d := FormatDate(t)
		if !seen[d] {
			seen[d] = true
			holidays = append(holidays, d)
		}
	}
	sort.Strings(holidays)
	p.Holidays = holidays

	seenEmp := make(map[int64]bool)
	employees := make([]Employee, 0, len(p.Employees))
	for _, e := range p.Employees {
		if e.ID <= 0 || seenEmp[e.ID] {
			continue
		}
		seenEmp[e.ID] = true
		employees = append(employees, e)
	}
	p.Employees = employees

	if p.Weights == nil {
		w := DefaultScoreWeights()
		p.Weights = &w
	}
}

// ThinkBudget 搜索时间预算
func (p *Params) ThinkBudget() time.Duration {
	return time.Duration(p.ThinkMinutes) * time.Minute
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Event 进度事件
type Event struct {
	Seq        int       `json:"seq"`
	Phase      Phase     `json:"phase"`
	Progress   float64   `json:"progress"`
	Score      *float64  `json:"score"`
	Note       string    `json:"note"`
	ETA        *string   `json:"eta"`
	Iterations int       `json:"iterations,omitempty"`
	Status     JobStatus `json:"status,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// LedgerPeriod 台账所属年度与季度
type LedgerPeriod struct {
	Year    int `json:"year"`
	Quarter int `json:"quarter"`
}

// Result 任务结果
type Result struct {
	Grid          Grid                             `json:"grid"`
	DiffOps       []DiffOp                         `json:"diff_ops"`
	Metrics       Metrics                          `json:"metrics"`
	RestCycle     map[int64]RestType               `json:"rest_cycle"`
	ShiftDebt     map[int64]map[ShiftValue]float64 `json:"shift_debt"`
	Violations    []Violation                      `json:"violations"`
	Period        LedgerPeriod                     `json:"ledger_period"`
	PriorPeriod   LedgerPeriod                     `json:"debt_period"`
	Iterations    int                              `json:"iterations"`
	AutoApplied   bool                             `json:"auto_applied"`
	ApplyVersions []CellVersion                    `json:"apply_versions,omitempty"`
}

// ApplyResult 应用结果
type ApplyResult struct {
	JobID      string        `json:"job_id"`
	AppliedOps int           `json:"applied_ops_count"`
	SkippedOps int           `json:"skipped_ops_count"`
	Versions   []CellVersion `json:"versions"`
	AppliedBy  int64         `json:"applied_by"`
	AppliedAt  time.Time     `json:"applied_at"`
}

// Job 自动排班任务快照
type Job struct {
	ID         string       `json:"job_id"`
	TeamID     int64        `json:"team_id"`
	CreatedBy  int64        `json:"created_by"`
	Status     JobStatus    `json:"status"`
	Phase      Phase        `json:"phase"`
	Progress   float64      `json:"progress"`
	Score      *float64     `json:"score"`
	Message    string       `json:"message,omitempty"`
	Params     Params       `json:"params"`
	Result     *Result      `json:"result,omitempty"`
	Applied    *ApplyResult `json:"applied,omitempty"`
	EventCount int          `json:"event_count"`
	Cancelled  bool         `json:"cancel_requested,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}

// ApplyRequest 一次写入：编辑操作与两类台账在同一事务内落库
type ApplyRequest struct {
	TeamID    int64
	UserID    int64
	Ops       []DiffOp
	Period    LedgerPeriod
	RestCycle map[int64]RestType
	ShiftDebt map[int64]map[ShiftValue]float64
}
