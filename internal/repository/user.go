package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/paiban/autoshift/pkg/model"
)

// UserRepository 用户权限仓储
type UserRepository struct {
	db DB
}

// NewUserRepository 创建用户权限仓储
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

// Actor 读取操作人权限，用户不存在时返回 nil, nil。
// editable_teams 为 NULL 表示不限团队。
func (r *UserRepository) Actor(ctx context.Context, userID int64) (*model.Actor, error) {
	if userID <= 0 {
		return nil, nil
	}

	var (
		actor model.Actor
		teams pq.Int64Array
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, role, editable_teams FROM users WHERE id = $1`, userID,
	).Scan(&actor.UserID, &actor.Role, &teams)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询用户权限失败: %w", err)
	}

	if teams != nil {
		actor.EditableTeams = []int64(teams)
	}
	return &actor, nil
}
