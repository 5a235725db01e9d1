// Package jobs 管理自动排班任务的生命周期、执行与进度分发
package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "github.com/paiban/autoshift/pkg/errors"
	"github.com/paiban/autoshift/pkg/model"
)

// entry 单个任务的内存状态
type entry struct {
	job     model.Job
	events  []model.Event
	subs    map[int]chan struct{}
	cancel  context.CancelFunc
	applyMu sync.Mutex
}

// Registry 任务与事件日志的内存存储，按任务分发新事件通知。
// 已结束的任务超过保留时长或数量上限后移出内存。
type Registry struct {
	mu          sync.RWMutex
	jobs        map[string]*entry
	nextSub     int
	retention   time.Duration
	maxFinished int
}

// NewRegistry 创建任务注册表，retention 或 maxFinished 为 0 时不按该条件淘汰
func NewRegistry(retention time.Duration, maxFinished int) *Registry {
	return &Registry{
		jobs:        make(map[string]*entry),
		retention:   retention,
		maxFinished: maxFinished,
	}
}

// Create 登记新任务
func (r *Registry) Create(job *model.Job, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = &entry{
		job:    *job,
		subs:   make(map[int]chan struct{}),
		cancel: cancel,
	}
}

// Remove 删除任务（仅用于入队失败的回滚）
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.jobs[id]; ok {
		for _, ch := range e.subs {
			close(ch)
		}
		delete(r.jobs, id)
	}
}

// Get 返回任务快照
func (r *Registry) Get(id string) (*model.Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.jobs[id]
	if !ok {
		return nil, false
	}
	job := e.job
	return &job, true
}

// List 返回全部任务快照
func (r *Registry) List() []*model.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Job, 0, len(r.jobs))
	for _, e := range r.jobs {
		job := e.job
		out = append(out, &job)
	}
	return out
}

// Len 内存中的任务数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// Update 在锁内修改任务
func (r *Registry) Update(id string, fn func(*model.Job)) (*model.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[id]
	if !ok {
		return nil, false
	}
	fn(&e.job)
	job := e.job
	return &job, true
}

// Append 追加事件：分配序号，进度不回退，同步任务的阶段、进度与得分，并通知订阅者。
// 任务已结束时丢弃。
func (r *Registry) Append(id string, ev model.Event) (model.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[id]
	if !ok || e.job.Status.IsTerminal() {
		return ev, false
	}
	return r.appendLocked(e, ev), true
}

// Finish 在同一把锁内修改任务并追加终态事件，每个任务只成功一次
func (r *Registry) Finish(id string, ev model.Event, fn func(*model.Job)) (model.Event, *model.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[id]
	if !ok || e.job.Status.IsTerminal() {
		return ev, nil, false
	}
	fn(&e.job)
	stored := r.appendLocked(e, ev)
	job := e.job
	return stored, &job, true
}

func (r *Registry) appendLocked(e *entry, ev model.Event) model.Event {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if ev.Progress < e.job.Progress {
		ev.Progress = e.job.Progress
	}
	if ev.Status == "" {
		ev.Status = e.job.Status
	}
	ev.Seq = len(e.events) + 1
	e.events = append(e.events, ev)

	e.job.Phase = ev.Phase
	e.job.Progress = ev.Progress
	if ev.Score != nil {
		score := *ev.Score
		e.job.Score = &score
	}
	e.job.EventCount = len(e.events)
	if ev.Status.IsTerminal() {
		e.job.Status = ev.Status
	}

	for _, ch := range e.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return ev
}

// EventsSince 返回序号大于 since 的事件，以及任务是否已结束
func (r *Registry) EventsSince(id string, since int) ([]model.Event, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.jobs[id]
	if !ok {
		return nil, false, apperrors.JobNotFound(id)
	}
	if since < 0 {
		since = 0
	}
	if since >= len(e.events) {
		return []model.Event{}, e.job.Status.IsTerminal(), nil
	}
	out := make([]model.Event, len(e.events)-since)
	copy(out, e.events[since:])
	return out, e.job.Status.IsTerminal(), nil
}

// Cancel 触发任务的取消信号
func (r *Registry) Cancel(id string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[id]
	if !ok {
		return nil, apperrors.JobNotFound(id)
	}
	if !e.job.Status.IsTerminal() {
		e.job.Cancelled = true
		if e.cancel != nil {
			e.cancel()
		}
	}
	job := e.job
	return &job, nil
}

// applyLock 返回任务的应用锁，保证同一任务的应用串行
func (r *Registry) applyLock(id string) (*sync.Mutex, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.jobs[id]
	if !ok {
		return nil, false
	}
	return &e.applyMu, true
}

// Sweep 淘汰已结束且无订阅者的任务：先按保留时长，再按数量上限淘汰最早结束的。
// 返回被淘汰的任务ID。
func (r *Registry) Sweep(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	type finished struct {
		id string
		at time.Time
	}
	var (
		kept    []finished
		evicted []string
	)
	for id, e := range r.jobs {
		if !e.job.Status.IsTerminal() || len(e.subs) > 0 {
			continue
		}
		at := e.job.CreatedAt
		if e.job.FinishedAt != nil {
			at = *e.job.FinishedAt
		}
		if r.retention > 0 && now.Sub(at) > r.retention {
			delete(r.jobs, id)
			evicted = append(evicted, id)
			continue
		}
		kept = append(kept, finished{id: id, at: at})
	}

	if r.maxFinished > 0 && len(kept) > r.maxFinished {
		sort.Slice(kept, func(i, j int) bool { return kept[i].at.Before(kept[j].at) })
		for _, f := range kept[:len(kept)-r.maxFinished] {
			delete(r.jobs, f.id)
			evicted = append(evicted, f.id)
		}
	}
	return evicted
}

// Subscribe 订阅内存中的任务，从序号 since 之后开始读取，同时返回订阅时的任务快照
func (r *Registry) Subscribe(id string, since int) (*Subscription, *model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[id]
	if !ok {
		return nil, nil, apperrors.JobNotFound(id)
	}
	r.nextSub++
	subID := r.nextSub
	notify := make(chan struct{}, 1)
	e.subs[subID] = notify

	sub := &Subscription{
		jobID:  id,
		feed:   localFeed{reg: r, id: id},
		notify: notify,
		cursor: max(0, since),
		release: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if e, ok := r.jobs[id]; ok {
				delete(e.subs, subID)
			}
		},
	}
	job := e.job
	return sub, &job, nil
}

// localFeed 从本实例内存读取
type localFeed struct {
	reg *Registry
	id  string
}

func (f localFeed) events(ctx context.Context, since int) ([]model.Event, bool, error) {
	return f.reg.EventsSince(f.id, since)
}

func (f localFeed) snapshot(ctx context.Context) (*model.Job, error) {
	job, ok := f.reg.Get(f.id)
	if !ok {
		return nil, apperrors.JobNotFound(f.id)
	}
	return job, nil
}
