// Package model 定义自动排班引擎的核心数据模型
package model

// ShiftValue 排班格子的值
type ShiftValue string

const (
	ShiftRest      ShiftValue = "休息" // 休息
	ShiftPrimary   ShiftValue = "白"  // 主班（白班）
	ShiftSecondary ShiftValue = "中1" // 次班（中1）
	ShiftMid2      ShiftValue = "中2"
	ShiftNight     ShiftValue = "夜"
)

// DebtShifts 始终出现在欠班台账中的班次
var DebtShifts = []ShiftValue{ShiftMid2, ShiftNight}

// IsRest 是否休息
func (v ShiftValue) IsRest() bool {
	return v == ShiftRest
}

// IsOther 是否为主/次/休息之外的班次
func (v ShiftValue) IsOther() bool {
	return v != "" && v != ShiftRest && v != ShiftPrimary && v != ShiftSecondary
}

// RestType 休息类型
type RestType string

const (
	RestWorkdays RestType = "workdays" // 工作日成对休息
	RestWeekend  RestType = "weekend"  // 周末成对休息
)

// Valid 是否为合法休息类型
func (r RestType) Valid() bool {
	return r == RestWorkdays || r == RestWeekend
}

// RestPair 一周内连续两天的休息组合（ISO 星期）
type RestPair [2]int

// Contains 是否包含某个星期
func (p RestPair) Contains(weekday int) bool {
	return p[0] == weekday || p[1] == weekday
}

// RestPairs 各休息类型允许的休息组合，顺序即枚举顺序
var RestPairs = map[RestType][]RestPair{
	RestWorkdays: {{1, 2}, {2, 3}, {3, 4}},
	RestWeekend:  {{5, 6}, {6, 7}},
}

// PairsFor 返回休息类型对应的组合，未知类型按工作日处理
func PairsFor(rt RestType) []RestPair {
	if pairs, ok := RestPairs[rt]; ok {
		return pairs
	}
	return RestPairs[RestWorkdays]
}

// Phase 任务阶段
type Phase string

const (
	PhaseInit            Phase = "init"
	PhaseSeedRest        Phase = "seed_rest"
	PhaseFixOnDuty       Phase = "fix_on_duty"
	PhaseAssignSecondary Phase = "assign_secondary"
	PhaseImprove         Phase = "improve"
	PhaseFinalize        Phase = "finalize"
)

// phaseOrder 阶段顺序
var phaseOrder = map[Phase]int{
	PhaseInit:            0,
	PhaseSeedRest:        1,
	PhaseFixOnDuty:       2,
	PhaseAssignSecondary: 3,
	PhaseImprove:         4,
	PhaseFinalize:        5,
}

// Order 返回阶段序号，未知阶段返回 -1
func (p Phase) Order() int {
	if o, ok := phaseOrder[p]; ok {
		return o
	}
	return -1
}
