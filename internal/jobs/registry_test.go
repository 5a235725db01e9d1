package jobs

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/paiban/autoshift/pkg/model"
)

func finishedJob(id string, status model.JobStatus, at time.Time) *model.Job {
	job := &model.Job{ID: id, Status: status, CreatedAt: at}
	if status.IsTerminal() {
		job.FinishedAt = &at
	}
	return job
}

func TestRegistry_Sweep(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		retention   time.Duration
		maxFinished int
		jobs        []*model.Job
		subscribe   string
		wantEvicted []string
	}{
		{
			name:      "超过保留时长",
			retention: time.Hour,
			jobs: []*model.Job{
				finishedJob("old", model.JobDone, now.Add(-2*time.Hour)),
				finishedJob("fresh", model.JobFailed, now.Add(-time.Minute)),
			},
			wantEvicted: []string{"old"},
		},
		{
			name:        "超过数量上限淘汰最早结束的",
			maxFinished: 2,
			jobs: []*model.Job{
				finishedJob("a", model.JobDone, now.Add(-3*time.Minute)),
				finishedJob("b", model.JobDone, now.Add(-2*time.Minute)),
				finishedJob("c", model.JobDone, now.Add(-time.Minute)),
			},
			wantEvicted: []string{"a"},
		},
		{
			name:      "运行中的任务不淘汰",
			retention: time.Hour,
			jobs: []*model.Job{
				finishedJob("running", model.JobRunning, now.Add(-3*time.Hour)),
				finishedJob("queued", model.JobQueued, now.Add(-3*time.Hour)),
			},
		},
		{
			name:      "有订阅者的任务不淘汰",
			retention: time.Hour,
			jobs: []*model.Job{
				finishedJob("watched", model.JobDone, now.Add(-2*time.Hour)),
			},
			subscribe: "watched",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(tt.retention, tt.maxFinished)
			for _, j := range tt.jobs {
				r.Create(j, nil)
			}
			if tt.subscribe != "" {
				sub, _, err := r.Subscribe(tt.subscribe, 0)
				if err != nil {
					t.Fatalf("Subscribe() error = %v", err)
				}
				defer sub.Close()
			}

			evicted := r.Sweep(now)
			sort.Strings(evicted)
			if len(evicted) != len(tt.wantEvicted) {
				t.Fatalf("Sweep() = %v, want %v", evicted, tt.wantEvicted)
			}
			for i, id := range tt.wantEvicted {
				if evicted[i] != id {
					t.Errorf("Sweep()[%d] = %s, want %s", i, evicted[i], id)
				}
				if _, ok := r.Get(id); ok {
					t.Errorf("%s 仍在内存中", id)
				}
			}
			if got := r.Len(); got != len(tt.jobs)-len(tt.wantEvicted) {
				t.Errorf("Len() = %d", got)
			}
		})
	}
}

func TestRegistry_FinishOnce(t *testing.T) {
	r := NewRegistry(0, 0)
	r.Create(&model.Job{ID: "j1", Status: model.JobRunning}, nil)

	ev := model.Event{Phase: model.PhaseFinalize, Progress: 1, Status: model.JobFailed, Note: "服务停止，任务被中断"}
	stored, job, ok := r.Finish("j1", ev, func(j *model.Job) { j.Message = ev.Note })
	if !ok {
		t.Fatal("首次 Finish() 应成功")
	}
	if stored.Seq != 1 || job.Status != model.JobFailed || job.Message != ev.Note {
		t.Errorf("Finish() = %+v, %+v", stored, job)
	}

	done := model.Event{Phase: model.PhaseFinalize, Progress: 1, Status: model.JobDone}
	if _, _, ok := r.Finish("j1", done, func(j *model.Job) { j.Result = &model.Result{} }); ok {
		t.Error("已结束的任务不应再次 Finish")
	}
	got, _ := r.Get("j1")
	if got.Status != model.JobFailed || got.Result != nil || got.EventCount != 1 {
		t.Errorf("任务被覆盖: %+v", got)
	}
}

func TestSubscription_ClosedNotifyEndsLocalStream(t *testing.T) {
	r := NewRegistry(0, 0)
	r.Create(&model.Job{ID: "j1", Status: model.JobQueued}, nil)
	sub, _, err := r.Subscribe("j1", 0)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()

	r.Remove("j1")
	_, done, err := sub.Next(context.Background())
	if !done || err == nil {
		t.Errorf("Next() = done %v, err %v; want done with error", done, err)
	}
}
