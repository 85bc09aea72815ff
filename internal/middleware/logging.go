package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader はステータスコードを記録してから委譲する。
func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はデータを書き込む。WriteHeaderが未呼び出しの場合は200を記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// requestInfo は後段のミドルウェアが書き込み、ログ出力時に参照するリクエスト情報。
type requestInfo struct {
	adminID string
}

var requestInfoContextKey = contextKey("request_info")

// recordAdminID はログ用に認証済み管理者IDを記録する。
// ロギングミドルウェアを経由していないリクエストでは何もしない。
func recordAdminID(ctx context.Context, adminID string) {
	if info, ok := ctx.Value(requestInfoContextKey).(*requestInfo); ok {
		info.adminID = adminID
	}
}

// StatusObserver はレスポンスステータスを受け取るインターフェース。
// metrics.Collectorが実装する。
type StatusObserver interface {
	RecordHTTPStatus(statusCode int)
}

// NewLoggingMiddleware はリクエストのJSON構造化ログを出力するミドルウェアを返す。
// ログにはmethod、path、action、status、duration_ms、client_ip、admin_id（認証済みの場合）を含む。
// observerがnilでない場合はステータスコードを通知する。
func NewLoggingMiddleware(logger *slog.Logger, observer StatusObserver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}
			info := &requestInfo{}
			ctx := context.WithValue(r.Context(), requestInfoContextKey, info)

			next.ServeHTTP(rec, r.WithContext(ctx))

			duration := time.Since(start)
			durationMs := float64(duration.Nanoseconds()) / float64(time.Millisecond)

			attrs := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", durationMs),
				slog.String("client_ip", ClientIP(r)),
			}
			if action := r.URL.Query().Get("action"); action != "" {
				attrs = append(attrs, slog.String("action", action))
			}
			if info.adminID != "" {
				attrs = append(attrs, slog.String("admin_id", info.adminID))
			}

			level := slog.LevelInfo
			if rec.statusCode >= 500 {
				level = slog.LevelError
			} else if rec.statusCode >= 400 {
				level = slog.LevelWarn
			}

			logger.Log(r.Context(), level, "http_request", attrs...)

			if observer != nil {
				observer.RecordHTTPStatus(rec.statusCode)
			}
		})
	}
}
