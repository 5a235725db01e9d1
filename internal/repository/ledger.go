package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/lib/pq"

	"github.com/paiban/autoshift/pkg/model"
)

// LedgerRepository 休息类型与欠班台账仓储
type LedgerRepository struct {
	db DB
}

// NewLedgerRepository 创建台账仓储
func NewLedgerRepository(db DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// RestCycleCounts 统计员工在 year 年 quarter 之前各季度的休息类型使用次数。
// 每个选中员工都有一条记录，没有台账时计数为零。
func (r *LedgerRepository) RestCycleCounts(ctx context.Context, teamID int64, empIDs []int64, year, quarter int) (map[int64]model.RestTypeCounts, error) {
	counts := make(map[int64]model.RestTypeCounts, len(empIDs))
	for _, id := range empIDs {
		counts[id] = model.RestTypeCounts{}
	}
	if len(empIDs) == 0 {
		return counts, nil
	}

	query := `
		SELECT emp_id, rest_type
		FROM rest_cycle_ledger
		WHERE team_id = $1 AND year = $2 AND quarter < $3 AND emp_id = ANY($4)
	`

	rows, err := r.db.QueryContext(ctx, query, teamID, year, quarter, pq.Array(empIDs))
	if err != nil {
		return nil, fmt.Errorf("查询休息类型台账失败: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			empID    int64
			restType string
		)
		if err := rows.Scan(&empID, &restType); err != nil {
			return nil, fmt.Errorf("扫描休息类型台账失败: %w", err)
		}
		c := counts[empID]
		c.Add(model.RestType(restType))
		counts[empID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("读取休息类型台账失败: %w", err)
	}

	return counts, nil
}

// SaveRestCycles 记录员工本季度采用的休息类型，重复写入覆盖
func (r *LedgerRepository) SaveRestCycles(ctx context.Context, teamID int64, period model.LedgerPeriod, types map[int64]model.RestType) error {
	return saveRestCycles(ctx, r.db, teamID, period, types)
}

// SaveShiftDebt 记录员工本季度的欠班天数，重复写入覆盖
func (r *LedgerRepository) SaveShiftDebt(ctx context.Context, teamID int64, period model.LedgerPeriod, debt map[int64]map[model.ShiftValue]float64) error {
	return saveShiftDebt(ctx, r.db, teamID, period, debt)
}

func saveRestCycles(ctx context.Context, db DB, teamID int64, period model.LedgerPeriod, types map[int64]model.RestType) error {
	query := `
		INSERT INTO rest_cycle_ledger (team_id, year, quarter, emp_id, rest_type)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (team_id, year, quarter, emp_id) DO UPDATE SET rest_type = EXCLUDED.rest_type
	`
	for _, empID := range sortedKeys(types) {
		rt := types[empID]
		if !rt.Valid() {
			continue
		}
		if _, err := db.ExecContext(ctx, query, teamID, period.Year, period.Quarter, empID, string(rt)); err != nil {
			return fmt.Errorf("保存休息类型台账失败: %w", err)
		}
	}
	return nil
}

func saveShiftDebt(ctx context.Context, db DB, teamID int64, period model.LedgerPeriod, debt map[int64]map[model.ShiftValue]float64) error {
	query := `
		INSERT INTO shift_debt_ledger (team_id, year, quarter, emp_id, shift, debt_days)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (team_id, year, quarter, emp_id, shift) DO UPDATE SET debt_days = EXCLUDED.debt_days
	`
	for _, empID := range sortedKeys(debt) {
		shifts := debt[empID]
		names := make([]string, 0, len(shifts))
		for s := range shifts {
			names = append(names, string(s))
		}
		sort.Strings(names)

		for _, name := range names {
			days := shifts[model.ShiftValue(name)]
			if _, err := db.ExecContext(ctx, query, teamID, period.Year, period.Quarter, empID, name, days); err != nil {
				return fmt.Errorf("保存欠班台账失败: %w", err)
			}
		}
	}
	return nil
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
