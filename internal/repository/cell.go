package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/paiban/autoshift/pkg/model"
)

// CellRepository 排班格子仓储
type CellRepository struct {
	db TxDB
}

// NewCellRepository 创建排班格子仓储
func NewCellRepository(db TxDB) *CellRepository {
	return &CellRepository{db: db}
}

// Cells 读取员工在 [from, to] 内的格子
func (r *CellRepository) Cells(ctx context.Context, teamID int64, empIDs []int64, from, to time.Time) (model.CellMap, error) {
	cells := make(model.CellMap)
	if len(empIDs) == 0 || to.Before(from) {
		return cells, nil
	}

	query := `
		SELECT emp_id, to_char(day, 'YYYY-MM-DD'), value
		FROM schedule_cells
		WHERE team_id = $1 AND emp_id = ANY($2) AND day BETWEEN $3 AND $4
		ORDER BY emp_id, day
	`

	rows, err := r.db.QueryContext(ctx, query, teamID, pq.Array(empIDs), model.FormatDate(from), model.FormatDate(to))
	if err != nil {
		return nil, fmt.Errorf("查询排班格子失败: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			empID int64
			day   string
			value string
		)
		if err := rows.Scan(&empID, &day, &value); err != nil {
			return nil, fmt.Errorf("扫描排班格子失败: %w", err)
		}
		cells.Set(empID, day, model.ShiftValue(value))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("读取排班格子失败: %w", err)
	}

	return cells, nil
}

// Apply 在一个事务内写入编辑操作与两类台账。
// 格子当前值与操作的 from 不一致时跳过该操作，不覆盖他人修改。
func (r *CellRepository) Apply(ctx context.Context, req *model.ApplyRequest) (*model.ApplyResult, error) {
	result := &model.ApplyResult{Versions: []model.CellVersion{}}

	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, op := range req.Ops {
			if op.EmpID <= 0 || op.Day == "" {
				continue
			}
			version, applied, err := applyOp(ctx, tx, req.TeamID, req.UserID, op)
			if err != nil {
				return err
			}
			if !applied {
				result.SkippedOps++
				continue
			}
			result.AppliedOps++
			result.Versions = append(result.Versions, model.CellVersion{Day: op.Day, EmpID: op.EmpID, Version: version})
		}

		if err := saveRestCycles(ctx, tx, req.TeamID, req.Period, req.RestCycle); err != nil {
			return err
		}
		return saveShiftDebt(ctx, tx, req.TeamID, req.Period, req.ShiftDebt)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// applyOp 写入单个操作，返回新版本号与是否写入
func applyOp(ctx context.Context, tx *sql.Tx, teamID, userID int64, op model.DiffOp) (int, bool, error) {
	cell, found, err := lockCell(ctx, tx, teamID, op)
	if err != nil {
		return 0, false, err
	}

	if !found {
		var version int
		err := tx.QueryRowContext(ctx, `
			INSERT INTO schedule_cells (team_id, emp_id, day, value, version, updated_by, updated_at)
			VALUES ($1, $2, $3, $4, 1, $5, NOW())
			ON CONFLICT (team_id, emp_id, day) DO NOTHING
			RETURNING version`,
			teamID, op.EmpID, op.Day, string(op.To), nullableUser(userID),
		).Scan(&version)
		if err == nil {
			return version, true, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, false, fmt.Errorf("写入排班格子失败: %w", err)
		}

		// 并发写入已先插入该格子，按已有值比较
		cell, found, err = lockCell(ctx, tx, teamID, op)
		if err != nil {
			return 0, false, err
		}
		if !found {
			return 0, false, fmt.Errorf("写入排班格子失败: 员工 %d 在 %s 的格子冲突后不存在", op.EmpID, op.Day)
		}
	}

	if cell.value != op.From {
		return 0, false, nil
	}

	next := cell.version + 1
	_, err = tx.ExecContext(ctx, `
		UPDATE schedule_cells SET value = $1, version = $2, updated_by = $3, updated_at = NOW()
		WHERE id = $4`,
		string(op.To), next, nullableUser(userID), cell.id,
	)
	if err != nil {
		return 0, false, fmt.Errorf("更新排班格子失败: %w", err)
	}
	return next, true, nil
}

type lockedCell struct {
	id      int64
	value   model.ShiftValue
	version int
}

// lockCell 以 FOR UPDATE 读取格子，不存在时 found 为 false
func lockCell(ctx context.Context, tx *sql.Tx, teamID int64, op model.DiffOp) (lockedCell, bool, error) {
	var (
		cell  lockedCell
		value string
	)
	err := tx.QueryRowContext(ctx, `
		SELECT id, value, version FROM schedule_cells
		WHERE team_id = $1 AND emp_id = $2 AND day = $3
		FOR UPDATE`,
		teamID, op.EmpID, op.Day,
	).Scan(&cell.id, &value, &cell.version)
	if errors.Is(err, sql.ErrNoRows) {
		return cell, false, nil
	}
	if err != nil {
		return cell, false, fmt.Errorf("锁定排班格子失败: %w", err)
	}
	cell.value = model.ShiftValue(value)
	return cell, true, nil
}

func nullableUser(userID int64) sql.NullInt64 {
	return sql.NullInt64{Int64: userID, Valid: userID > 0}
}
