// Package handler 提供HTTP请求处理器
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/paiban/autoshift/internal/jobs"
	"github.com/paiban/autoshift/internal/middleware"
	apperrors "github.com/paiban/autoshift/pkg/errors"
	"github.com/paiban/autoshift/pkg/logger"
	"github.com/paiban/autoshift/pkg/model"
)

// JobService 自动排班任务服务，userID 用于校验团队权限
type JobService interface {
	Submit(ctx context.Context, params model.Params, userID int64) (*model.Job, error)
	Get(ctx context.Context, id string, userID int64) (*model.Job, error)
	List(ctx context.Context, userID, teamID int64) ([]*model.Job, error)
	Events(ctx context.Context, id string, userID int64, since int) (*model.Job, []model.Event, error)
	Subscribe(ctx context.Context, id string, userID int64, since int) (*jobs.Subscription, error)
	Unsubscribe(sub *jobs.Subscription)
	Cancel(ctx context.Context, id string, userID int64) (*model.Job, error)
	Apply(ctx context.Context, id string, userID int64) (*model.ApplyResult, error)
}

// AutoScheduleHandler 自动排班处理器
type AutoScheduleHandler struct {
	jobs JobService
}

// NewAutoScheduleHandler 创建处理器
func NewAutoScheduleHandler(svc JobService) *AutoScheduleHandler {
	return &AutoScheduleHandler{jobs: svc}
}

// Register 注册路由
func (h *AutoScheduleHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/auto-schedule/jobs", h.Submit)
	mux.HandleFunc("GET /api/v1/auto-schedule/jobs", h.List)
	mux.HandleFunc("GET /api/v1/auto-schedule/jobs/{id}", h.Get)
	mux.HandleFunc("GET /api/v1/auto-schedule/jobs/{id}/events", h.Events)
	mux.HandleFunc("GET /api/v1/auto-schedule/jobs/{id}/stream", h.Stream)
	mux.HandleFunc("POST /api/v1/auto-schedule/jobs/{id}/apply", h.Apply)
	mux.HandleFunc("POST /api/v1/auto-schedule/jobs/{id}/cancel", h.Cancel)
}

// SubmitResponse 提交响应
type SubmitResponse struct {
	JobID  string          `json:"job_id"`
	Status model.JobStatus `json:"status"`
}

// Submit 提交自动排班任务
func (h *AutoScheduleHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var params model.Params
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		respondError(w, apperrors.Wrap(err, apperrors.CodeInvalidInput, "解析请求失败"))
		return
	}

	job, err := h.jobs.Submit(r.Context(), params, middleware.UserID(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, SubmitResponse{JobID: job.ID, Status: job.Status})
}

// JobSummary 列表中的任务摘要
type JobSummary struct {
	JobID     string          `json:"job_id"`
	TeamID    int64           `json:"team_id"`
	Status    model.JobStatus `json:"status"`
	Phase     model.Phase     `json:"phase"`
	Progress  float64         `json:"progress"`
	Score     *float64        `json:"score"`
	Message   string          `json:"message,omitempty"`
	CreatedAt string          `json:"created_at"`
}

// List 列出本实例内存中当前用户有权访问的任务，可按 team_id 过滤
func (h *AutoScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	var teamID int64
	if raw := r.URL.Query().Get("team_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(w, apperrors.InvalidInput("team_id", "应为整数"))
			return
		}
		teamID = id
	}

	all, err := h.jobs.List(r.Context(), middleware.UserID(r.Context()), teamID)
	if err != nil {
		respondError(w, err)
		return
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	out := make([]JobSummary, 0, len(all))
	for _, j := range all {
		out = append(out, JobSummary{
			JobID:     j.ID,
			TeamID:    j.TeamID,
			Status:    j.Status,
			Phase:     j.Phase,
			Progress:  j.Progress,
			Score:     j.Score,
			Message:   j.Message,
			CreatedAt: j.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"jobs": out, "total": len(out)})
}

// Get 查询任务快照
func (h *AutoScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Get(r.Context(), r.PathValue("id"), middleware.UserID(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// EventsResponse 事件分页响应
type EventsResponse struct {
	JobID     string          `json:"job_id"`
	Status    model.JobStatus `json:"status"`
	Progress  float64         `json:"progress"`
	Events    []model.Event   `json:"events"`
	NextSince int             `json:"next_since"`
}

// Events 返回序号大于 since 的事件
func (h *AutoScheduleHandler) Events(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	since, err := parseSince(r)
	if err != nil {
		respondError(w, err)
		return
	}

	job, events, err := h.jobs.Events(r.Context(), id, middleware.UserID(r.Context()), since)
	if err != nil {
		respondError(w, err)
		return
	}

	next := since
	if len(events) > 0 {
		next = events[len(events)-1].Seq
	}
	respondJSON(w, http.StatusOK, EventsResponse{
		JobID:     id,
		Status:    job.Status,
		Progress:  job.Progress,
		Events:    events,
		NextSince: next,
	})
}

// Apply 手动应用已完成任务的结果
func (h *AutoScheduleHandler) Apply(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	userID := middleware.UserID(r.Context())

	res, err := h.jobs.Apply(r.Context(), id, userID)
	if err != nil {
		if apperrors.GetHTTPStatus(err) >= http.StatusInternalServerError || apperrors.Is(err, apperrors.CodeApplyForbidden) {
			logger.WithContext(r.Context()).Warn().Err(err).Str("job_id", id).Msg("手动应用失败")
		}
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Cancel 请求提前结束优化
func (h *AutoScheduleHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Cancel(r.Context(), r.PathValue("id"), middleware.UserID(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":           job.ID,
		"status":           job.Status,
		"cancel_requested": job.Cancelled,
	})
}

func parseSince(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		return 0, nil
	}
	since, err := strconv.Atoi(raw)
	if err != nil || since < 0 {
		return 0, apperrors.InvalidInput("since", "应为非负整数")
	}
	return since, nil
}

// respondJSON 返回JSON响应
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError 返回错误响应，非 AppError 按内部错误处理
func respondError(w http.ResponseWriter, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.Wrap(err, apperrors.CodeInternal, "内部错误")
	}
	body := map[string]interface{}{
		"error":   true,
		"code":    appErr.Code,
		"message": appErr.Message,
	}
	if appErr.Details != "" {
		body["details"] = appErr.Details
	}
	if len(appErr.Fields) > 0 {
		body["fields"] = appErr.Fields
	}
	respondJSON(w, appErr.HTTPStatus, body)
}
