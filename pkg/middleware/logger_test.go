package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger はLoggerミドルウェアを検証する。
func TestLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		wantLevel zapcore.Level
	}{
		{name: "2xxはInfoで出力されること", status: http.StatusOK, wantLevel: zapcore.InfoLevel},
		{name: "4xxはWarnで出力されること", status: http.StatusNotFound, wantLevel: zapcore.WarnLevel},
		{name: "5xxはErrorで出力されること", status: http.StatusBadGateway, wantLevel: zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zap.DebugLevel)
			router := gin.New()
			router.Use(RequestID(), Logger(zap.New(core)))
			router.GET("/test", func(c *gin.Context) {
				c.Status(tt.status)
			})

			req := httptest.NewRequest(http.MethodGet, "/test?q=1", nil)
			req.Header.Set("X-Request-ID", "req-1")
			req.RemoteAddr = "10.0.0.5:1234"
			router.ServeHTTP(httptest.NewRecorder(), req)

			if logs.Len() != 1 {
				t.Fatalf("ログ件数 = %d, want 1", logs.Len())
			}
			entry := logs.All()[0]
			if entry.Level != tt.wantLevel {
				t.Errorf("ログレベル = %v, want %v", entry.Level, tt.wantLevel)
			}
			fields := entry.ContextMap()
			want := map[string]any{
				"request_id": "req-1",
				"method":     http.MethodGet,
				"path":       "/test",
				"query":      "q=1",
				"status":     int64(tt.status),
				"client_ip":  "10.0.0.5",
			}
			for key, value := range want {
				if fields[key] != value {
					t.Errorf("%s = %v, want %v", key, fields[key], value)
				}
			}
		})
	}
}
