package jobs

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/paiban/autoshift/internal/metrics"
	apperrors "github.com/paiban/autoshift/pkg/errors"
	"github.com/paiban/autoshift/pkg/logger"
	"github.com/paiban/autoshift/pkg/model"
	"github.com/paiban/autoshift/pkg/scheduler/engine"
)

// Runner 执行排班与写入
type Runner interface {
	Run(ctx context.Context, job *model.Job, report engine.Reporter) (*model.Result, error)
	Apply(ctx context.Context, teamID, userID int64, result *model.Result) (*model.ApplyResult, error)
}

// Sink 任务状态与事件的外部落地（数据库、Redis 等），失败只记录日志
type Sink interface {
	SaveJob(ctx context.Context, job *model.Job) error
	AppendEvent(ctx context.Context, jobID string, ev model.Event) error
}

// Config 管理器配置
type Config struct {
	Workers         int
	QueueSize       int
	ShutdownTimeout time.Duration
	Retention       time.Duration // 已结束任务在内存中的保留时长
	MaxFinished     int           // 内存中已结束任务的数量上限
	RemotePoll      time.Duration // 订阅其他实例的任务时的兜底轮询间隔
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Workers:         2,
		QueueSize:       16,
		ShutdownTimeout: 30 * time.Second,
		Retention:       time.Hour,
		MaxFinished:     200,
		RemotePoll:      2 * time.Second,
	}
}

// Manager 自动排班任务管理器
type Manager struct {
	config   Config
	runner   Runner
	auth     engine.Authorizer
	registry *Registry
	pool     *Pool
	sinks    []Sink
	archives []Archive
	notifier Notifier
	metrics  *metrics.Metrics

	// 已移出内存的任务的应用串行
	archivedApplyMu sync.Mutex

	baseCtx    context.Context
	baseCancel context.CancelFunc
	janitorWG  sync.WaitGroup
}

// Option 管理器选项
type Option func(*Manager)

// WithSink 追加外部落地
func WithSink(s Sink) Option {
	return func(m *Manager) {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
}

// WithArchive 追加已落地任务的查询来源，按追加顺序查询
func WithArchive(a Archive) Option {
	return func(m *Manager) {
		if a != nil {
			m.archives = append(m.archives, a)
		}
	}
}

// WithNotifier 设置跨实例事件通知
func WithNotifier(n Notifier) Option {
	return func(m *Manager) {
		m.notifier = n
	}
}

// WithMetrics 设置指标
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager 创建管理器并启动工作池
func NewManager(runner Runner, auth engine.Authorizer, config Config, opts ...Option) *Manager {
	def := DefaultConfig()
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = def.QueueSize
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = def.ShutdownTimeout
	}
	if config.Retention <= 0 {
		config.Retention = def.Retention
	}
	if config.MaxFinished <= 0 {
		config.MaxFinished = def.MaxFinished
	}
	if config.RemotePoll <= 0 {
		config.RemotePoll = def.RemotePoll
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		config:     config,
		runner:     runner,
		auth:       auth,
		registry:   NewRegistry(config.Retention, config.MaxFinished),
		pool:       NewPool(config.Workers, config.QueueSize),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.pool.Start(ctx)

	m.janitorWG.Add(1)
	go m.janitor(ctx)
	return m
}

// Authorize 检查操作人能否访问团队：未登录返回 401，无权返回 403
func (m *Manager) Authorize(ctx context.Context, userID, teamID int64) error {
	actor, err := m.actor(ctx, userID)
	if err != nil {
		return err
	}
	if !actor.CanEditTeam(teamID) {
		return apperrors.TeamForbidden(teamID)
	}
	return nil
}

func (m *Manager) actor(ctx context.Context, userID int64) (*model.Actor, error) {
	if userID <= 0 {
		return nil, apperrors.Unauthorized()
	}
	actor, err := m.auth.Actor(ctx, userID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "读取用户权限失败")
	}
	if actor == nil {
		return nil, apperrors.Unauthorized()
	}
	return actor, nil
}

// Submit 校验参数并创建任务，立即返回排队中的任务
func (m *Manager) Submit(ctx context.Context, params model.Params, userID int64) (*model.Job, error) {
	actor, err := m.actor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if !actor.CanEditTeam(params.TeamID) {
		return nil, apperrors.TeamForbidden(params.TeamID)
	}
	params.Normalize()

	job := &model.Job{
		ID:        model.NewJobID(),
		TeamID:    params.TeamID,
		CreatedBy: userID,
		Status:    model.JobQueued,
		Params:    params,
		CreatedAt: time.Now(),
	}

	jobCtx, cancel := context.WithCancel(m.baseCtx)
	m.registry.Create(job, cancel)

	if err := m.pool.Submit(func(context.Context) { m.execute(jobCtx, job.ID) }); err != nil {
		cancel()
		m.registry.Remove(job.ID)
		logger.WithContext(ctx).Warn().Err(err).Int64("team_id", job.TeamID).Msg("排班任务入队失败")
		return nil, err
	}

	m.metrics.JobSubmitted()
	m.persistJob(job)
	m.sweep()
	logger.WithContext(ctx).Info().
		Str("job_id", job.ID).
		Int64("team_id", job.TeamID).
		Int("employees", len(params.Employees)).
		Msg("排班任务已创建")
	return job, nil
}

// Get 返回任务快照，内存中没有时查询已落地的任务
func (m *Manager) Get(ctx context.Context, id string, userID int64) (*model.Job, error) {
	job, _, err := m.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.Authorize(ctx, userID, job.TeamID); err != nil {
		return nil, err
	}
	return job, nil
}

// List 返回内存中操作人有权访问的任务，teamID 大于 0 时只返回该团队
func (m *Manager) List(ctx context.Context, userID, teamID int64) ([]*model.Job, error) {
	actor, err := m.actor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if teamID > 0 && !actor.CanEditTeam(teamID) {
		return nil, apperrors.TeamForbidden(teamID)
	}

	all := m.registry.List()
	out := make([]*model.Job, 0, len(all))
	for _, j := range all {
		if teamID > 0 && j.TeamID != teamID {
			continue
		}
		if !actor.CanEditTeam(j.TeamID) {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

// Events 返回任务快照与序号大于 since 的事件
func (m *Manager) Events(ctx context.Context, id string, userID int64, since int) (*model.Job, []model.Event, error) {
	job, archive, err := m.lookup(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := m.Authorize(ctx, userID, job.TeamID); err != nil {
		return nil, nil, err
	}

	if archive == nil {
		events, _, err := m.registry.EventsSince(id, since)
		if err == nil {
			return job, events, nil
		}
		// 读取期间被移出内存
		if job, archive, err = m.loadArchived(ctx, id); err != nil {
			return nil, nil, err
		}
	}
	events, err := archive.Events(ctx, id, since)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "读取进度事件失败")
	}
	return job, events, nil
}

// Subscribe 订阅任务事件。本实例执行的任务由内存推送，其他实例的任务读取落地存储，
// 配置了 Notifier 时由其唤醒，否则定时轮询。
func (m *Manager) Subscribe(ctx context.Context, id string, userID int64, since int) (*Subscription, error) {
	sub, job, err := m.registry.Subscribe(id, since)
	if err == nil {
		if err := m.Authorize(ctx, userID, job.TeamID); err != nil {
			sub.Close()
			return nil, err
		}
		m.metrics.SubscriberAdded()
		return sub, nil
	}

	job, archive, err := m.loadArchived(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.Authorize(ctx, userID, job.TeamID); err != nil {
		return nil, err
	}

	sub = &Subscription{
		jobID:  id,
		feed:   archiveFeed{archive: archive, id: id},
		poll:   m.config.RemotePoll,
		cursor: max(0, since),
	}
	if !job.Status.IsTerminal() && m.notifier != nil {
		notify, stop, err := m.notifier.Watch(ctx, id)
		if err != nil {
			logger.WithContext(ctx).Warn().Err(err).Str("job_id", id).Msg("订阅跨实例通知失败，改为轮询")
		} else {
			sub.notify = notify
			sub.release = stop
		}
	}
	m.metrics.SubscriberAdded()
	return sub, nil
}

// Unsubscribe 取消订阅
func (m *Manager) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.Close()
	m.metrics.SubscriberRemoved()
}

// Cancel 请求提前结束优化阶段。已结束或不在本实例执行的任务不受影响。
func (m *Manager) Cancel(ctx context.Context, id string, userID int64) (*model.Job, error) {
	job, archive, err := m.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.Authorize(ctx, userID, job.TeamID); err != nil {
		return nil, err
	}
	if archive != nil {
		return job, nil
	}

	job, err = m.registry.Cancel(id)
	if err != nil {
		return nil, err
	}
	logger.WithContext(ctx).Info().Str("job_id", id).Str("status", string(job.Status)).Msg("收到提前结束请求")
	return job, nil
}

// Apply 手动应用已完成任务的结果。先校验团队权限再检查状态；同一任务只写入一次，之后返回首次结果。
func (m *Manager) Apply(ctx context.Context, id string, userID int64) (*model.ApplyResult, error) {
	job, archive, err := m.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.Authorize(ctx, userID, job.TeamID); err != nil {
		return nil, err
	}

	if archive == nil {
		if lock, ok := m.registry.applyLock(id); ok {
			lock.Lock()
			defer lock.Unlock()
			if current, ok := m.registry.Get(id); ok {
				return m.applyJob(ctx, current, userID)
			}
		}
	}

	// 任务已移出内存或由其他实例执行
	m.archivedApplyMu.Lock()
	defer m.archivedApplyMu.Unlock()
	if job, _, err = m.loadArchived(ctx, id); err != nil {
		return nil, err
	}
	return m.applyJob(ctx, job, userID)
}

func (m *Manager) applyJob(ctx context.Context, job *model.Job, userID int64) (*model.ApplyResult, error) {
	if job.Applied != nil {
		return job.Applied, nil
	}
	if job.Status != model.JobDone || job.Result == nil {
		return nil, apperrors.JobNotReady(job.ID, string(job.Status))
	}

	applied, err := m.runner.Apply(ctx, job.TeamID, userID, job.Result)
	if err != nil {
		return nil, err
	}
	applied.JobID = job.ID
	applied.AppliedBy = userID
	applied.AppliedAt = time.Now()

	mark := func(j *model.Job) {
		j.Applied = applied
		j.Message = "已手动应用"
	}
	updated, ok := m.registry.Update(job.ID, mark)
	if !ok {
		mark(job)
		updated = job
	}
	m.metrics.RecordApply(applied.AppliedOps, applied.SkippedOps)
	m.persistJob(updated)

	logger.WithContext(ctx).Info().
		Str("job_id", job.ID).
		Int64("user_id", userID).
		Int("applied", applied.AppliedOps).
		Int("skipped", applied.SkippedOps).
		Msg("排班结果已手动应用")
	return applied, nil
}

// Shutdown 取消所有任务的优化阶段并等待工作池结束。
// 未执行的任务与超时后仍未结束的任务都标记为失败。
func (m *Manager) Shutdown() {
	for _, job := range m.registry.List() {
		if !job.Status.IsTerminal() {
			_, _ = m.registry.Cancel(job.ID)
		}
	}
	stopped := m.pool.Stop(m.config.ShutdownTimeout)
	m.baseCancel()
	m.pool.Drain()
	m.janitorWG.Wait()

	for _, job := range m.registry.List() {
		switch {
		case job.Status == model.JobQueued:
			if m.finish(job.ID, nil, fmt.Errorf("服务停止，任务未执行")) {
				m.metrics.JobDropped()
			}
		case job.Status == model.JobRunning && !stopped:
			if m.finish(job.ID, nil, fmt.Errorf("服务停止，任务被中断")) {
				var elapsed time.Duration
				if job.StartedAt != nil {
					elapsed = time.Since(*job.StartedAt)
				}
				m.metrics.JobFinished(string(model.JobFailed), elapsed, 0)
				logger.Warn().Str("job_id", job.ID).Msg("排班任务停止超时，已标记为失败")
			}
		}
	}
}

// janitor 定时淘汰已结束的任务
func (m *Manager) janitor(ctx context.Context) {
	defer m.janitorWG.Done()

	interval := m.config.Retention / 4
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	if evicted := m.registry.Sweep(time.Now()); len(evicted) > 0 {
		logger.Debug().Int("evicted", len(evicted)).Int("remaining", m.registry.Len()).Msg("已结束任务移出内存")
	}
}

// lookup 先查内存再查落地存储，archive 非空表示任务来自落地存储
func (m *Manager) lookup(ctx context.Context, id string) (*model.Job, Archive, error) {
	if job, ok := m.registry.Get(id); ok {
		return job, nil, nil
	}
	return m.loadArchived(ctx, id)
}

func (m *Manager) loadArchived(ctx context.Context, id string) (*model.Job, Archive, error) {
	for _, a := range m.archives {
		job, err := a.LoadJob(ctx, id)
		if err != nil {
			logger.WithContext(ctx).Warn().Err(err).Str("job_id", id).Msg("查询已落地任务失败")
			continue
		}
		if job != nil {
			return job, a, nil
		}
	}
	return nil, nil, apperrors.JobNotFound(id)
}

// execute 在工作协程中执行任务，panic 与错误都会转为失败状态
func (m *Manager) execute(ctx context.Context, id string) {
	started := time.Now()
	job, ok := m.registry.Update(id, func(j *model.Job) {
		j.Status = model.JobRunning
		j.StartedAt = &started
	})
	if !ok {
		return
	}
	m.metrics.JobStarted()
	m.persistJob(job)

	log := logger.NewJobLogger(id, job.TeamID)

	var (
		result *model.Result
		err    error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Logger().Error().
					Interface("panic_value", r).
					Str("stack_trace", string(debug.Stack())).
					Msg("排班流水线发生panic")
				err = fmt.Errorf("内部错误: %v", r)
			}
		}()
		result, err = m.runner.Run(ctx, job, func(ev model.Event) {
			if stored, ok := m.registry.Append(id, ev); ok {
				m.persistEvent(id, stored)
			}
		})
	}()

	// 停止超时后任务已被标记为失败，迟到的结果丢弃
	if !m.finish(id, result, err) {
		log.Logger().Warn().Msg("任务已结束，丢弃迟到的结果")
		return
	}

	duration := time.Since(started)
	if err != nil {
		log.Failed(duration, err)
		m.metrics.JobFinished(string(model.JobFailed), duration, 0)
		return
	}
	log.Done(duration, result.Metrics.Score, result.Iterations)
	m.metrics.JobFinished(string(model.JobDone), duration, result.Iterations)
	m.metrics.SetSolutionScore(job.TeamID, result.Metrics.Score)
	for _, v := range result.Violations {
		m.metrics.RecordViolation(v.Code)
	}
}

// finish 写入结果并追加终态事件，任务已结束时返回 false
func (m *Manager) finish(id string, result *model.Result, err error) bool {
	finished := time.Now()
	ev := model.Event{Phase: model.PhaseFinalize, Progress: 1, Timestamp: finished}

	var mutate func(*model.Job)
	if err != nil {
		ev.Status = model.JobFailed
		ev.Note = apperrors.GetMessage(err)
		mutate = func(j *model.Job) {
			j.Message = ev.Note
			j.FinishedAt = &finished
		}
	} else {
		score := result.Metrics.Score
		ev.Status = model.JobDone
		ev.Score = &score
		ev.Note = "完成"
		if len(result.Violations) > 0 {
			ev.Note = "完成但存在提醒"
		}
		mutate = func(j *model.Job) {
			j.Result = result
			j.Message = ev.Note
			j.FinishedAt = &finished
		}
	}

	stored, job, ok := m.registry.Finish(id, ev, mutate)
	if !ok {
		return false
	}
	m.persistEvent(id, stored)
	m.persistJob(job)
	return true
}

// sinkTimeout 单次外部落地的超时
const sinkTimeout = 5 * time.Second

func (m *Manager) persistJob(job *model.Job) {
	for _, s := range m.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := s.SaveJob(ctx, job); err != nil {
			logger.Warn().Err(err).Str("job_id", job.ID).Msg("保存任务状态失败")
		}
		cancel()
	}
}

func (m *Manager) persistEvent(id string, ev model.Event) {
	for _, s := range m.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := s.AppendEvent(ctx, id, ev); err != nil {
			logger.Warn().Err(err).Str("job_id", id).Int("seq", ev.Seq).Msg("保存进度事件失败")
		}
		cancel()
	}
}
