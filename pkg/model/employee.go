// Package model 定义自动排班引擎的核心数据模型
package model

// Employee 参与排班的员工
type Employee struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

// EmployeeState 员工滚动状态（由历史推导，不直接持久化）
type EmployeeState struct {
	EmpID            int64                  `json:"emp_id"`
	Label            string                 `json:"label"`
	WorkStreak       int                    `json:"work_streak"`
	RestStreak       int                    `json:"rest_streak"`
	Gap              int                    `json:"gap"`
	MonthSecondary   int                    `json:"month_secondary"`
	QuarterSecondary int                    `json:"quarter_secondary"`
	TotalSecondary   int                    `json:"total_secondary"`
	RequiredRest     RestType               `json:"required_rest"`
	ShiftDebt        map[ShiftValue]float64 `json:"shift_debt"`
}

// RestCycleEntry 休息类型台账行
type RestCycleEntry struct {
	TeamID   int64    `json:"team_id"`
	Year     int      `json:"year"`
	Quarter  int      `json:"quarter"`
	EmpID    int64    `json:"emp_id"`
	RestType RestType `json:"rest_type"`
}

// ShiftDebtEntry 欠班台账行
type ShiftDebtEntry struct {
	TeamID   int64      `json:"team_id"`
	Year     int        `json:"year"`
	Quarter  int        `json:"quarter"`
	EmpID    int64      `json:"emp_id"`
	Shift    ShiftValue `json:"shift"`
	DebtDays float64    `json:"debt_days"`
}

// RestTypeCounts 某员工本年度此前各季度的休息类型使用次数
type RestTypeCounts struct {
	Workdays int
	Weekend  int
}

// Add 累加一条台账记录
func (c *RestTypeCounts) Add(rt RestType) {
	switch rt {
	case RestWorkdays:
		c.Workdays++
	case RestWeekend:
		c.Weekend++
	}
}

// Actor 操作人
type Actor struct {
	UserID        int64   `json:"user_id"`
	Role          string  `json:"role"`
	EditableTeams []int64 `json:"editable_teams,omitempty"` // nil 表示不限团队
}

// CanEditTeam 检查是否可编辑团队
func (a *Actor) CanEditTeam(teamID int64) bool {
	if a == nil || a.UserID <= 0 {
		return false
	}
	if a.Role == "admin" || a.EditableTeams == nil {
		return true
	}
	for _, id := range a.EditableTeams {
		if id == teamID {
			return true
		}
	}
	return false
}
