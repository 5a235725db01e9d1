package jobs

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/paiban/autoshift/pkg/errors"
	"github.com/paiban/autoshift/pkg/model"
)

// Archive 已落地的任务（数据库或 Redis 镜像），内存中找不到任务时按顺序查询
type Archive interface {
	LoadJob(ctx context.Context, id string) (*model.Job, error)
	Events(ctx context.Context, id string, since int) ([]model.Event, error)
}

// Notifier 跨实例的新事件通知。返回的通道在有新事件时可读，断开时关闭；stop 释放订阅。
type Notifier interface {
	Watch(ctx context.Context, jobID string) (<-chan struct{}, func(), error)
}

// feed 订阅的数据来源
type feed interface {
	events(ctx context.Context, since int) ([]model.Event, bool, error)
	snapshot(ctx context.Context) (*model.Job, error)
}

// Subscription 某任务事件的订阅，按序号续读，落后时从日志补齐
type Subscription struct {
	jobID   string
	feed    feed
	notify  <-chan struct{}
	poll    time.Duration // 大于 0 时定时重读，用于其他实例执行的任务
	cursor  int
	release func()
	once    sync.Once
}

// Next 阻塞直到有新事件或任务结束。done 为 true 表示之后不会再有事件。
func (s *Subscription) Next(ctx context.Context) (events []model.Event, done bool, err error) {
	var tick <-chan time.Time
	if s.poll > 0 {
		ticker := time.NewTicker(s.poll)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		events, terminal, err := s.feed.events(ctx, s.cursor)
		if err != nil {
			return nil, true, err
		}
		if len(events) > 0 {
			s.cursor = events[len(events)-1].Seq
			return events, false, nil
		}
		if terminal {
			return nil, true, nil
		}

		select {
		case <-ctx.Done():
			return nil, true, ctx.Err()
		case _, ok := <-s.notify:
			if !ok {
				if s.poll <= 0 {
					return nil, true, apperrors.JobNotFound(s.jobID)
				}
				// 通知断开后只靠轮询
				s.notify = nil
			}
		case <-tick:
		}
	}
}

// Job 返回任务当前快照，订阅结束后用于推送结果
func (s *Subscription) Job(ctx context.Context) (*model.Job, error) {
	return s.feed.snapshot(ctx)
}

// Cursor 已读取的最后序号
func (s *Subscription) Cursor() int {
	return s.cursor
}

// Close 取消订阅
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}

// archiveFeed 从落地存储读取，任务可能由其他实例执行或已移出内存
type archiveFeed struct {
	archive Archive
	id      string
}

func (f archiveFeed) events(ctx context.Context, since int) ([]model.Event, bool, error) {
	// 先读状态再读事件：终态写入前事件已全部落地
	job, err := f.snapshot(ctx)
	if err != nil {
		return nil, true, err
	}
	events, err := f.archive.Events(ctx, f.id, since)
	if err != nil {
		return nil, true, apperrors.Wrap(err, apperrors.CodeDatabaseError, "读取进度事件失败")
	}
	terminal := job.Status.IsTerminal()
	if n := len(events); n > 0 && events[n-1].Status.IsTerminal() {
		terminal = true
	}
	return events, terminal, nil
}

func (f archiveFeed) snapshot(ctx context.Context) (*model.Job, error) {
	job, err := f.archive.LoadJob(ctx, f.id)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "读取任务失败")
	}
	if job == nil {
		return nil, apperrors.JobNotFound(f.id)
	}
	return job, nil
}
