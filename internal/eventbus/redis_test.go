package eventbus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/paiban/autoshift/pkg/model"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("启动 miniredis 失败: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, mr
}

func TestNewRedisMirror_Defaults(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()

	m := NewRedisMirror(client, "", 0)
	if m.prefix != "autoshift" {
		t.Errorf("prefix = %q, want autoshift", m.prefix)
	}
	if m.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", m.ttl, DefaultTTL)
	}
	if got := m.Channel("j1"); got != "autoshift:job:notify:j1" {
		t.Errorf("Channel() = %q", got)
	}
}

func TestRedisMirror_SaveAndLoadJob(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()

	m := NewRedisMirror(client, "test", time.Hour)
	ctx := context.Background()

	score := 0.82
	job := &model.Job{
		ID:         "job-1",
		TeamID:     3,
		Status:     model.JobRunning,
		Phase:      model.PhaseImprove,
		Progress:   0.7,
		Score:      &score,
		EventCount: 6,
		CreatedAt:  time.Now().Truncate(time.Second),
	}

	if err := m.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob() error = %v", err)
	}

	if got := mr.HGet("test:job:job-1", "status"); got != "running" {
		t.Errorf("status 字段 = %q, want running", got)
	}
	if got := mr.HGet("test:job:job-1", "score"); got != "0.82" {
		t.Errorf("score 字段 = %q, want 0.82", got)
	}
	if ttl := mr.TTL("test:job:job-1"); ttl != time.Hour {
		t.Errorf("TTL = %v, want 1h", ttl)
	}

	loaded, err := m.LoadJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("LoadJob() error = %v", err)
	}
	if loaded == nil {
		t.Fatal("LoadJob() 返回 nil")
	}
	if loaded.TeamID != 3 || loaded.Phase != model.PhaseImprove || loaded.EventCount != 6 {
		t.Errorf("LoadJob() = %+v", loaded)
	}
	if loaded.Score == nil || *loaded.Score != score {
		t.Errorf("Score = %v, want %v", loaded.Score, score)
	}

	missing, err := m.LoadJob(ctx, "nope")
	if err != nil {
		t.Fatalf("LoadJob(nope) error = %v", err)
	}
	if missing != nil {
		t.Errorf("LoadJob(nope) = %+v, want nil", missing)
	}
}

func TestRedisMirror_Events(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()

	m := NewRedisMirror(client, "test", time.Hour)
	ctx := context.Background()

	for i, phase := range []model.Phase{model.PhaseInit, model.PhaseSeedRest, model.PhaseFixOnDuty} {
		ev := model.Event{Seq: i + 1, Phase: phase, Progress: float64(i+1) / 10}
		if err := m.AppendEvent(ctx, "job-1", ev); err != nil {
			t.Fatalf("AppendEvent() error = %v", err)
		}
	}

	tests := []struct {
		name     string
		since    int
		wantLen  int
		firstSeq int
	}{
		{name: "全部", since: 0, wantLen: 3, firstSeq: 1},
		{name: "负数按零处理", since: -5, wantLen: 3, firstSeq: 1},
		{name: "续读", since: 2, wantLen: 1, firstSeq: 3},
		{name: "已读完", since: 3, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := m.Events(ctx, "job-1", tt.since)
			if err != nil {
				t.Fatalf("Events() error = %v", err)
			}
			if len(events) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(events), tt.wantLen)
			}
			if tt.wantLen > 0 && events[0].Seq != tt.firstSeq {
				t.Errorf("first seq = %d, want %d", events[0].Seq, tt.firstSeq)
			}
		})
	}
}

func TestRedisMirror_PublishesEvents(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()

	m := NewRedisMirror(client, "test", time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pubsub := client.Subscribe(ctx, m.Channel("job-1"))
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		t.Fatalf("订阅失败: %v", err)
	}

	ev := model.Event{Seq: 1, Phase: model.PhaseInit, Progress: 0.05, Note: "载入团队与员工"}
	if err := m.AppendEvent(ctx, "job-1", ev); err != nil {
		t.Fatalf("AppendEvent() error = %v", err)
	}

	select {
	case msg := <-pubsub.Channel():
		var got model.Event
		if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
			t.Fatalf("解析消息失败: %v", err)
		}
		if got.Note != ev.Note || got.Seq != 1 {
			t.Errorf("收到 %+v, want %+v", got, ev)
		}
	case <-ctx.Done():
		t.Fatal("未收到发布的事件")
	}
}

func TestRedisMirror_Watch(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()

	m := NewRedisMirror(client, "test", time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	notify, stop, err := m.Watch(ctx, "job-1")
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	if err := m.SaveJob(ctx, &model.Job{ID: "job-1", Status: model.JobRunning}); err != nil {
		t.Fatalf("SaveJob() error = %v", err)
	}

	select {
	case _, ok := <-notify:
		if !ok {
			t.Fatal("通知通道提前关闭")
		}
	case <-ctx.Done():
		t.Fatal("未收到任务通知")
	}

	stop()
	stop()
	for {
		select {
		case _, ok := <-notify:
			if !ok {
				return
			}
		case <-ctx.Done():
			t.Fatal("stop 后通知通道应关闭")
		}
	}
}

func TestRedisMirror_WatchConnectionError(t *testing.T) {
	client, mr := setupTestRedis(t)
	m := NewRedisMirror(client, "test", time.Hour)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, _, err := m.Watch(ctx, "job-1"); err == nil {
		t.Error("Redis 不可用时 Watch() 应返回错误")
	}
}

func TestRedisMirror_ConnectionError(t *testing.T) {
	client, mr := setupTestRedis(t)
	m := NewRedisMirror(client, "test", time.Hour)
	mr.Close()

	if err := m.SaveJob(context.Background(), &model.Job{ID: "x"}); err == nil {
		t.Error("Redis 不可用时 SaveJob() 应返回错误")
	}
}
