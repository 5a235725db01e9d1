package logger

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"unknown", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.expected {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestWithContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), RequestIDKey, "req_1")
	ctx = context.WithValue(ctx, UserIDKey, int64(5))

	l := WithContext(ctx)
	if l == nil {
		t.Fatal("WithContext 不应返回 nil")
	}
	// 未初始化时也能直接使用
	l.Debug().Msg("测试")
	NewJobLogger("job-1", 3).Phase("init", 0.05, "载入团队与员工")
}
