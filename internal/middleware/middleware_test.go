package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/paiban/autoshift/pkg/logger"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value(logger.RequestIDKey).(string)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	got := rec.Header().Get("X-Request-ID")
	if !strings.HasPrefix(got, "req_") || seen != got {
		t.Errorf("生成的请求ID = %q, 上下文 = %q", got, seen)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("X-Request-ID") != "abc" || seen != "abc" {
		t.Errorf("应沿用请求中的ID, got %q", rec.Header().Get("X-Request-ID"))
	}
}

func TestUser(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   int64
	}{
		{name: "正常", header: "42", want: 42},
		{name: "缺失", header: "", want: 0},
		{name: "非数字", header: "abc", want: 0},
		{name: "非正数", header: "-3", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got int64
			h := User(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = UserID(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("X-User-ID", tt.header)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("UserID = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "INTERNAL_ERROR") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(1, 2)
	h := l.Handler(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}

	// 不同操作人独立计数
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	req = req.WithContext(context.WithValue(req.Context(), logger.UserIDKey, int64(7)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("其他操作人 status = %d, want 200", rec.Code)
	}
}

func TestRateLimiter_EvictsIdleKeys(t *testing.T) {
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	l := NewRateLimiter(1, 1)
	l.now = func() time.Time { return now }

	for _, key := range []string{"addr:10.0.0.1", "addr:10.0.0.2", "user:7"} {
		if !l.Allow(key) {
			t.Fatalf("首次请求 %s 应允许", key)
		}
	}
	if l.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", l.Len())
	}

	now = now.Add(DefaultLimiterIdle / 2)
	l.Allow("user:7")

	// 其余两个键空闲超时后回收，活跃的键保留
	now = now.Add(DefaultLimiterIdle/2 + time.Second)
	if !l.Allow("addr:10.0.0.3") {
		t.Fatal("新键应允许")
	}
	if l.Len() != 2 {
		t.Errorf("Len() = %d, want 2", l.Len())
	}

	// 回收后的键重新获得完整令牌
	if !l.Allow("addr:10.0.0.1") {
		t.Error("回收后的键应允许")
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	l := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if !l.Allow("k") {
			t.Fatal("不限流时应始终允许")
		}
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		origins    []string
		origin     string
		method     string
		wantHeader string
		wantStatus int
	}{
		{name: "允许全部", origins: []string{"*"}, origin: "http://a.com", method: http.MethodGet, wantHeader: "*", wantStatus: 200},
		{name: "白名单命中", origins: []string{"http://a.com"}, origin: "http://a.com", method: http.MethodGet, wantHeader: "http://a.com", wantStatus: 200},
		{name: "白名单未命中", origins: []string{"http://a.com"}, origin: "http://b.com", method: http.MethodGet, wantHeader: "", wantStatus: 200},
		{name: "预检", origins: []string{"*"}, origin: "http://a.com", method: http.MethodOptions, wantHeader: "*", wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := CORS(tt.origins)(okHandler())
			req := httptest.NewRequest(tt.method, "/", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantHeader {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantHeader)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRouteLabel(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/api/v1/auto-schedule/jobs", "/api/v1/auto-schedule/jobs"},
		{"/api/v1/auto-schedule/jobs/abc", "/api/v1/auto-schedule/jobs/{id}"},
		{"/api/v1/auto-schedule/jobs/abc/events", "/api/v1/auto-schedule/jobs/{id}/events"},
	}
	for _, tt := range tests {
		if got := routeLabel(tt.path); got != tt.want {
			t.Errorf("routeLabel(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mk := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(okHandler(), mk("a"), mk("b"), mk("c"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if strings.Join(order, ",") != "a,b,c" {
		t.Errorf("order = %v", order)
	}
}
