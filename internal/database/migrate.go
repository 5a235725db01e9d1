package database

import (
	"context"
	"fmt"

	"github.com/paiban/autoshift/pkg/logger"
)

// schema 建表语句，均可重复执行
var schema = []struct {
	name string
	ddl  string
}{
	{"schedule_cells", `
CREATE TABLE IF NOT EXISTS schedule_cells (
	id         BIGSERIAL PRIMARY KEY,
	team_id    BIGINT      NOT NULL,
	emp_id     BIGINT      NOT NULL,
	day        DATE        NOT NULL,
	value      TEXT        NOT NULL DEFAULT '',
	version    INTEGER     NOT NULL DEFAULT 1,
	updated_by BIGINT,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (team_id, emp_id, day)
)`},
	{"team_employees", `
CREATE TABLE IF NOT EXISTS team_employees (
	team_id    BIGINT  NOT NULL,
	emp_id     BIGINT  NOT NULL,
	label      TEXT    NOT NULL DEFAULT '',
	active     BOOLEAN NOT NULL DEFAULT TRUE,
	sort_order INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (team_id, emp_id)
)`},
	{"users", `
CREATE TABLE IF NOT EXISTS users (
	id             BIGSERIAL PRIMARY KEY,
	role           TEXT NOT NULL DEFAULT 'user',
	editable_teams BIGINT[]
)`},
	{"rest_cycle_ledger", `
CREATE TABLE IF NOT EXISTS rest_cycle_ledger (
	team_id   BIGINT   NOT NULL,
	year      INTEGER  NOT NULL,
	quarter   SMALLINT NOT NULL,
	emp_id    BIGINT   NOT NULL,
	rest_type TEXT     NOT NULL,
	UNIQUE (team_id, year, quarter, emp_id)
)`},
	{"shift_debt_ledger", `
CREATE TABLE IF NOT EXISTS shift_debt_ledger (
	team_id   BIGINT           NOT NULL,
	year      INTEGER          NOT NULL,
	quarter   SMALLINT         NOT NULL,
	emp_id    BIGINT           NOT NULL,
	shift     TEXT             NOT NULL,
	debt_days DOUBLE PRECISION NOT NULL DEFAULT 0,
	UNIQUE (team_id, year, quarter, emp_id, shift)
)`},
	{"auto_jobs", `
CREATE TABLE IF NOT EXISTS auto_jobs (
	id          TEXT PRIMARY KEY,
	team_id     BIGINT           NOT NULL,
	created_by  BIGINT           NOT NULL DEFAULT 0,
	status      TEXT             NOT NULL,
	phase       TEXT             NOT NULL DEFAULT '',
	progress    DOUBLE PRECISION NOT NULL DEFAULT 0,
	score       DOUBLE PRECISION,
	params      JSONB            NOT NULL,
	result      JSONB,
	message     TEXT             NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ      NOT NULL,
	started_at  TIMESTAMPTZ,
	finished_at TIMESTAMPTZ
)`},
	{"auto_job_events", `
CREATE TABLE IF NOT EXISTS auto_job_events (
	job_id     TEXT        NOT NULL REFERENCES auto_jobs(id) ON DELETE CASCADE,
	seq        INTEGER     NOT NULL,
	payload    JSONB       NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (job_id, seq)
)`},
}

// Migrate 创建所需的表
func (db *DB) Migrate(ctx context.Context) error {
	for _, t := range schema {
		if _, err := db.ExecContext(ctx, t.ddl); err != nil {
			return fmt.Errorf("创建表 %s 失败: %w", t.name, err)
		}
		logger.Debug().Str("table", t.name).Msg("表已就绪")
	}
	logger.Info().Int("tables", len(schema)).Msg("数据库迁移完成")
	return nil
}
