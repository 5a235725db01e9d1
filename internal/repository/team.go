package repository

import (
	"context"
	"fmt"

	"github.com/paiban/autoshift/pkg/model"
)

// TeamRepository 团队成员仓储
type TeamRepository struct {
	db DB
}

// NewTeamRepository 创建团队成员仓储
func NewTeamRepository(db DB) *TeamRepository {
	return &TeamRepository{db: db}
}

// TeamEmployees 团队在职员工，按排序号与员工ID排序
func (r *TeamRepository) TeamEmployees(ctx context.Context, teamID int64) ([]model.Employee, error) {
	query := `
		SELECT emp_id, label
		FROM team_employees
		WHERE team_id = $1 AND active = TRUE
		ORDER BY sort_order ASC, emp_id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("查询团队成员失败: %w", err)
	}
	defer rows.Close()

	var employees []model.Employee
	for rows.Next() {
		var e model.Employee
		if err := rows.Scan(&e.ID, &e.Label); err != nil {
			return nil, fmt.Errorf("扫描团队成员失败: %w", err)
		}
		employees = append(employees, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("读取团队成员失败: %w", err)
	}

	return employees, nil
}
