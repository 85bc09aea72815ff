package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/skyline/internal/metrics"
	"github.com/hitoshi/skyline/internal/middleware"
)

// healthTimeout はヘルスチェックでDB疎通を待つ上限。
const healthTimeout = 3 * time.Second

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Authenticator  *middleware.Authenticator
	RateLimiter    *middleware.RateLimiter
	Logger         *slog.Logger
	StatusObserver middleware.StatusObserver

	// 運用
	Health          HealthChecker
	MetricsGatherer prometheus.Gatherer
	// UploadDir が空でなければ /uploads/ 以下で静的配信する
	UploadDir string

	// action
	AuthService       AuthServiceInterface
	CatalogService    CatalogServiceInterface
	RecordService     RecordServiceInterface
	BookingService    BookingServiceInterface
	NewsletterService NewsletterServiceInterface
	PlannerService    PlannerServiceInterface
	SettingsService   SettingsServiceInterface
	UploadService     UploadServiceInterface
	MailProber        MailProberInterface
	FeedImportService FeedImportServiceInterface
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS
//
// 認証とレート制限はaction単位でActionDispatcherが適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusObserver))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware())

	dispatcher := newActionDispatcher(deps)
	r.Handle("/api", dispatcher)
	r.Handle("/api.php", dispatcher)
	r.Handle("/api/", dispatcher)

	r.Get("/health", healthHandler(deps.Health))

	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	if deps.UploadDir != "" {
		files := http.StripPrefix("/uploads/", sandboxedFiles(http.FileServer(http.Dir(deps.UploadDir))))
		r.Handle("/uploads/*", files)
	}

	return r
}

type healthResponse struct {
	Status string `json:"status"`
}

// healthHandler はDBに到達できれば200、できなければ503を返す。
func healthHandler(db HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}

// sandboxedFiles はディレクトリへのリクエストを404にする。
// 配信するファイルの中でスクリプトが動かないようCSPでサンドボックス化する。
func sandboxedFiles(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Security-Policy", "default-src 'none'; img-src 'self'; style-src 'unsafe-inline'; sandbox")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}
