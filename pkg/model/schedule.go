// Package model 定义自动排班引擎的核心数据模型
package model

import "time"

// CalendarDay 日历中的一天
type CalendarDay struct {
	Date    string    `json:"date"`
	Weekday int       `json:"weekday"`
	Holiday bool      `json:"holiday"`
	InRange bool      `json:"in_range"`
	Time    time.Time `json:"-"`
}

// Week 以周一为起点的七天
type Week struct {
	Index int           `json:"index"`
	Start string        `json:"start"`
	Days  []CalendarDay `json:"days"`
}

// RestPlan 休息周期分配结果
type RestPlan struct {
	// RestDays 员工 -> 日期 -> 是否休息（仅范围内日期）
	RestDays map[int64]map[string]bool `json:"rest_days"`
	// Pairs 员工每周选定的休息组合，按周序号
	Pairs map[int64][]RestPair `json:"pairs"`
	// RestTypes 员工本季度采用的休息类型
	RestTypes map[int64]RestType `json:"rest_types"`
}

// NewRestPlan 创建空的休息计划
func NewRestPlan() *RestPlan {
	return &RestPlan{
		RestDays:  make(map[int64]map[string]bool),
		Pairs:     make(map[int64][]RestPair),
		RestTypes: make(map[int64]RestType),
	}
}

// IsRest 员工某天是否休息
func (p *RestPlan) IsRest(empID int64, date string) bool {
	return p.RestDays[empID][date]
}

// MarkRest 标记休息日
func (p *RestPlan) MarkRest(empID int64, date string) {
	if p.RestDays[empID] == nil {
		p.RestDays[empID] = make(map[string]bool)
	}
	p.RestDays[empID][date] = true
}

// Plan 主/次班分配方案
type Plan struct {
	Seed int64 `json:"seed"`
	// Cells 日期 -> 员工 -> 班次（休息日不在其中）
	Cells map[string]map[int64]ShiftValue `json:"-"`
	// DaySecondary 每日次班人数
	DaySecondary map[string]int `json:"day_secondary"`
	// QuarterCounts 方案结束时各员工本季度次班数
	QuarterCounts map[int64]int `json:"quarter_counts"`
	// GapSamples 每次分配次班时员工的间隔天数
	GapSamples []int `json:"-"`
	// SecondaryTotal 次班总数
	SecondaryTotal int `json:"secondary_total"`
	// WorkTotal 在岗格子总数
	WorkTotal int `json:"work_total"`
}

// Value 返回员工某天在方案中的班次（无记录返回空）
func (p *Plan) Value(date string, empID int64) ShiftValue {
	return p.Cells[date][empID]
}

// ScoreWeights 评分权重
type ScoreWeights struct {
	Ratio         float64 `json:"ratio"`
	Fairness      float64 `json:"fairness"`
	Recency       float64 `json:"recency"`
	Concentration float64 `json:"concentration"`
}

// DefaultScoreWeights 默认权重
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{Ratio: 0.35, Fairness: 0.25, Recency: 0.2, Concentration: 0.2}
}

// ScoreComponents 评分分项
type ScoreComponents struct {
	Ratio         float64 `json:"ratio"`
	Fairness      float64 `json:"fairness"`
	Recency       float64 `json:"recency"`
	Concentration float64 `json:"concentration"`
}

// Warning 方案提醒
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Metrics 方案评分
type Metrics struct {
	Score          float64         `json:"score"`
	Components     ScoreComponents `json:"components"`
	ActualRatio    float64         `json:"actual_ratio"`
	WorkTotal      int             `json:"work_total"`
	SecondaryTotal int             `json:"secondary_total"`
	Warnings       []Warning       `json:"warnings"`
}

// GridCell 结果表格中的格子
type GridCell struct {
	Date    string     `json:"date"`
	Value   ShiftValue `json:"value"`
	Weekday int        `json:"weekday"`
	Holiday bool       `json:"holiday"`
}

// RowCounts 行统计
type RowCounts struct {
	Secondary int `json:"secondary"`
	Primary   int `json:"primary"`
	Rest      int `json:"rest"`
}

// GridRow 员工一行
type GridRow struct {
	EmpID        int64      `json:"emp_id"`
	Label        string     `json:"label"`
	RequiredRest RestType   `json:"required_rest"`
	Cells        []GridCell `json:"cells"`
	Counts       RowCounts  `json:"counts"`
}

// GridDay 表头日期
type GridDay struct {
	Date    string `json:"date"`
	Weekday int    `json:"weekday"`
	Holiday bool   `json:"holiday"`
}

// GridSummary 汇总
type GridSummary struct {
	TargetRatio    float64        `json:"target_ratio"`
	ActualRatio    float64        `json:"actual_ratio"`
	SecondaryTotal int            `json:"secondary_total"`
	WorkTotal      int            `json:"work_total"`
	DayTargets     map[string]int `json:"day_targets"`
}

// Grid 结果表格
type Grid struct {
	Days    []GridDay   `json:"days"`
	Rows    []GridRow   `json:"rows"`
	Summary GridSummary `json:"summary"`
}

// ScheduleCell 已持久化的排班格子
type ScheduleCell struct {
	ID        int64      `json:"id"`
	TeamID    int64      `json:"team_id"`
	EmpID     int64      `json:"emp_id"`
	Day       string     `json:"day"`
	Value     ShiftValue `json:"value"`
	Version   int        `json:"version"`
	UpdatedBy int64      `json:"updated_by"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CellMap 员工 -> 日期 -> 值
type CellMap map[int64]map[string]ShiftValue

// Get 获取值，不存在返回空
func (m CellMap) Get(empID int64, day string) ShiftValue {
	return m[empID][day]
}

// Set 设置值
func (m CellMap) Set(empID int64, day string, v ShiftValue) {
	if m[empID] == nil {
		m[empID] = make(map[string]ShiftValue)
	}
	m[empID][day] = v
}

// DiffOp 编辑操作
type DiffOp struct {
	EmpID int64      `json:"emp_id"`
	Day   string     `json:"day"`
	From  ShiftValue `json:"from"`
	To    ShiftValue `json:"to"`
}

// CellVersion 应用后格子的新版本
type CellVersion struct {
	Day     string `json:"day"`
	EmpID   int64  `json:"emp_id"`
	Version int    `json:"new_version"`
}
