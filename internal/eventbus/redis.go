// Package eventbus 将任务状态与进度事件镜像到 Redis，供其他实例查询与订阅
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/paiban/autoshift/pkg/model"
)

// DefaultTTL 镜像数据的默认保留时间
const DefaultTTL = 24 * time.Hour

// RedisMirror 基于 Redis 的任务镜像
type RedisMirror struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisMirror 创建镜像，prefix 为空时使用 autoshift
func NewRedisMirror(client *redis.Client, prefix string, ttl time.Duration) *RedisMirror {
	if prefix == "" {
		prefix = "autoshift"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisMirror{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisMirror) jobKey(id string) string {
	return fmt.Sprintf("%s:job:%s", r.prefix, id)
}

func (r *RedisMirror) eventsKey(id string) string {
	return fmt.Sprintf("%s:job:%s:events", r.prefix, id)
}

// Channel 任务事件的发布频道
func (r *RedisMirror) Channel(id string) string {
	return fmt.Sprintf("%s:job:notify:%s", r.prefix, id)
}

// Watch 订阅任务的通知频道，每条消息触发一次唤醒，多条合并。
// 调用 stop 后通道关闭。
func (r *RedisMirror) Watch(ctx context.Context, jobID string) (<-chan struct{}, func(), error) {
	pubsub := r.client.Subscribe(ctx, r.Channel(jobID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("订阅任务通知失败: %w", err)
	}

	notify := make(chan struct{}, 1)
	msgs := pubsub.Channel()
	go func() {
		defer close(notify)
		for range msgs {
			select {
			case notify <- struct{}{}:
			default:
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() { pubsub.Close() })
	}
	return notify, stop, nil
}

// SaveJob 写入任务快照：HSET + EXPIRE + PUBLISH 在同一管道中执行
func (r *RedisMirror) SaveJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("序列化任务失败: %w", err)
	}

	fields := map[string]interface{}{
		"status":      string(job.Status),
		"phase":       string(job.Phase),
		"progress":    strconv.FormatFloat(job.Progress, 'f', -1, 64),
		"event_count": job.EventCount,
		"data":        string(data),
	}
	if job.Score != nil {
		fields["score"] = strconv.FormatFloat(*job.Score, 'f', -1, 64)
	}

	key := r.jobKey(job.ID)
	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, r.ttl)
	pipe.Publish(ctx, r.Channel(job.ID), "status:"+string(job.Status))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("写入任务镜像失败: %w", err)
	}
	return nil
}

// AppendEvent 追加事件：RPUSH + EXPIRE + PUBLISH
func (r *RedisMirror) AppendEvent(ctx context.Context, jobID string, ev model.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	key := r.eventsKey(jobID)
	pipe := r.client.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, r.ttl)
	pipe.Publish(ctx, r.Channel(jobID), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("写入事件镜像失败: %w", err)
	}
	return nil
}

// LoadJob 读取任务快照，不存在时返回 nil, nil
func (r *RedisMirror) LoadJob(ctx context.Context, id string) (*model.Job, error) {
	data, err := r.client.HGet(ctx, r.jobKey(id), "data").Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取任务镜像失败: %w", err)
	}

	var job model.Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("解析任务镜像失败: %w", err)
	}
	return &job, nil
}

// Events 读取序号大于 since 的事件
func (r *RedisMirror) Events(ctx context.Context, id string, since int) ([]model.Event, error) {
	if since < 0 {
		since = 0
	}
	raw, err := r.client.LRange(ctx, r.eventsKey(id), int64(since), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("读取事件镜像失败: %w", err)
	}

	events := make([]model.Event, 0, len(raw))
	for _, item := range raw {
		var ev model.Event
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			return nil, fmt.Errorf("解析事件失败: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// Close 关闭连接
func (r *RedisMirror) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
