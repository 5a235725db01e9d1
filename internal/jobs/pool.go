package jobs

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/paiban/autoshift/pkg/errors"
	"github.com/paiban/autoshift/pkg/logger"
)

// Task 在工作协程中执行的任务
type Task func(ctx context.Context)

// Pool 固定数量的工作协程消费有界队列
type Pool struct {
	concurrency int
	queue       chan Task
	wg          sync.WaitGroup
	stopChan    chan struct{}
	stopOnce    sync.Once
	started     atomic.Bool
	active      atomic.Int64
}

// NewPool 创建工作池
func NewPool(concurrency, queueSize int) *Pool {
	if concurrency <= 0 {
		concurrency = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		concurrency: concurrency,
		queue:       make(chan Task, queueSize),
		stopChan:    make(chan struct{}),
	}
}

// Start 启动工作协程
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	logger.Info().Int("workers", p.concurrency).Int("queue_size", cap(p.queue)).Msg("启动排班工作池")
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i+1)
	}
}

// Submit 入队，队列已满或已停止时立即返回错误
func (p *Pool) Submit(t Task) error {
	select {
	case <-p.stopChan:
		return apperrors.New(apperrors.CodeQueueFull, "排班工作池已停止")
	default:
	}
	select {
	case p.queue <- t:
		return nil
	default:
		return apperrors.ErrQueueFull
	}
}

// Stop 停止接收任务并等待正在执行的任务结束，返回是否在超时前结束
func (p *Pool) Stop(timeout time.Duration) bool {
	p.stopOnce.Do(func() { close(p.stopChan) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("排班工作池已停止")
		return true
	case <-time.After(timeout):
		logger.Warn().Dur("timeout", timeout).Msg("排班工作池停止超时")
		return false
	}
}

// Active 正在执行的任务数
func (p *Pool) Active() int64 {
	return p.active.Load()
}

// Pending 排队中的任务数
func (p *Pool) Pending() int {
	return len(p.queue)
}

// Drain 取出停止后残留在队列中的任务
func (p *Pool) Drain() []Task {
	var out []Task
	for {
		select {
		case t := <-p.queue:
			out = append(out, t)
		default:
			return out
		}
	}
}

func (p *Pool) worker(ctx context.Context, workerID int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		case t := <-p.queue:
			p.execute(ctx, workerID, t)
		}
	}
}

func (p *Pool) execute(ctx context.Context, workerID int, t Task) {
	p.active.Add(1)
	defer p.active.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Int("worker_id", workerID).
				Interface("panic_value", r).
				Str("stack_trace", string(debug.Stack())).
				Msg("排班任务发生panic")
		}
	}()
	t(ctx)
}
