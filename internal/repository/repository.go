// Package repository 提供数据访问层
package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// DB 数据库接口
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// TxDB 可开启事务的数据库
type TxDB interface {
	DB
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Scanner 行扫描接口
type Scanner interface {
	Scan(dest ...interface{}) error
}

// inTx 在事务中执行 fn，出错或 panic 时回滚
func inTx(ctx context.Context, db TxDB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("事务回滚失败: %v (原始错误: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("事务提交失败: %w", err)
	}
	return nil
}

// Store 组合各仓储，供排班引擎读取数据、校验权限与写入结果
type Store struct {
	*TeamRepository
	*CellRepository
	*LedgerRepository
	*UserRepository
}

// NewStore 创建组合仓储
func NewStore(db TxDB) *Store {
	return &Store{
		TeamRepository:   NewTeamRepository(db),
		CellRepository:   NewCellRepository(db),
		LedgerRepository: NewLedgerRepository(db),
		UserRepository:   NewUserRepository(db),
	}
}
