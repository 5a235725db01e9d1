package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/paiban/autoshift/pkg/model"
)

// JobRepository 自动排班任务与进度事件的持久化
type JobRepository struct {
	db DB
}

// NewJobRepository 创建任务仓储
func NewJobRepository(db DB) *JobRepository {
	return &JobRepository{db: db}
}

// SaveJob 写入或更新任务快照
func (r *JobRepository) SaveJob(ctx context.Context, job *model.Job) error {
	paramsJSON, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("序列化任务参数失败: %w", err)
	}

	var resultJSON []byte
	if job.Result != nil || job.Applied != nil {
		resultJSON, err = json.Marshal(storedResult{Result: job.Result, Applied: job.Applied})
		if err != nil {
			return fmt.Errorf("序列化任务结果失败: %w", err)
		}
	}

	query := `
		INSERT INTO auto_jobs (
			id, team_id, created_by, status, phase, progress, score,
			params, result, message, created_at, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status, phase = EXCLUDED.phase, progress = EXCLUDED.progress,
			score = EXCLUDED.score, result = EXCLUDED.result, message = EXCLUDED.message,
			started_at = EXCLUDED.started_at, finished_at = EXCLUDED.finished_at
	`

	_, err = r.db.ExecContext(ctx, query,
		job.ID, job.TeamID, job.CreatedBy, string(job.Status), string(job.Phase), job.Progress, nullFloat(job.Score),
		paramsJSON, nullJSON(resultJSON), job.Message, job.CreatedAt, nullTime(job.StartedAt), nullTime(job.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("保存任务失败: %w", err)
	}
	return nil
}

// AppendEvent 追加进度事件，同一序号只写一次
func (r *JobRepository) AppendEvent(ctx context.Context, jobID string, ev model.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("序列化进度事件失败: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO auto_job_events (job_id, seq, payload, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id, seq) DO NOTHING`,
		jobID, ev.Seq, payload, ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("保存进度事件失败: %w", err)
	}
	return nil
}

// LoadJob 读取任务快照，不存在时返回 nil, nil
func (r *JobRepository) LoadJob(ctx context.Context, id string) (*model.Job, error) {
	query := `
		SELECT id, team_id, created_by, status, phase, progress, score,
			params, result, message, created_at, started_at, finished_at,
			(SELECT COUNT(*) FROM auto_job_events e WHERE e.job_id = auto_jobs.id)
		FROM auto_jobs
		WHERE id = $1
	`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询任务失败: %w", err)
	}
	return job, nil
}

// Events 读取序号大于 since 的事件
func (r *JobRepository) Events(ctx context.Context, id string, since int) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT payload FROM auto_job_events
		WHERE job_id = $1 AND seq > $2
		ORDER BY seq ASC`,
		id, since,
	)
	if err != nil {
		return nil, fmt.Errorf("查询进度事件失败: %w", err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("扫描进度事件失败: %w", err)
		}
		var ev model.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("解析进度事件失败: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("读取进度事件失败: %w", err)
	}
	return events, nil
}

// storedResult result 列中保存的内容
type storedResult struct {
	Result  *model.Result      `json:"result,omitempty"`
	Applied *model.ApplyResult `json:"applied,omitempty"`
}

func scanJob(row Scanner) (*model.Job, error) {
	var (
		job        model.Job
		status     string
		phase      string
		score      sql.NullFloat64
		paramsJSON []byte
		resultJSON []byte
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)
	err := row.Scan(
		&job.ID, &job.TeamID, &job.CreatedBy, &status, &phase, &job.Progress, &score,
		&paramsJSON, &resultJSON, &job.Message, &job.CreatedAt, &startedAt, &finishedAt,
		&job.EventCount,
	)
	if err != nil {
		return nil, err
	}

	job.Status = model.JobStatus(status)
	job.Phase = model.Phase(phase)
	if score.Valid {
		v := score.Float64
		job.Score = &v
	}
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		job.FinishedAt = &t
	}
	if err := json.Unmarshal(paramsJSON, &job.Params); err != nil {
		return nil, fmt.Errorf("解析任务参数失败: %w", err)
	}
	if len(resultJSON) > 0 {
		var stored storedResult
		if err := json.Unmarshal(resultJSON, &stored); err != nil {
			return nil, fmt.Errorf("解析任务结果失败: %w", err)
		}
		job.Result = stored.Result
		job.Applied = stored.Applied
	}
	return &job, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
