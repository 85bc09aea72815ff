package app

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/skyline/internal/auth"
	"github.com/hitoshi/skyline/internal/booking"
	"github.com/hitoshi/skyline/internal/catalog"
	"github.com/hitoshi/skyline/internal/config"
	"github.com/hitoshi/skyline/internal/feedimport"
	"github.com/hitoshi/skyline/internal/handler"
	"github.com/hitoshi/skyline/internal/mail"
	"github.com/hitoshi/skyline/internal/metrics"
	"github.com/hitoshi/skyline/internal/middleware"
	"github.com/hitoshi/skyline/internal/newsletter"
	"github.com/hitoshi/skyline/internal/planner"
	"github.com/hitoshi/skyline/internal/record"
	"github.com/hitoshi/skyline/internal/repository"
	"github.com/hitoshi/skyline/internal/security"
	"github.com/hitoshi/skyline/internal/settings"
	"github.com/hitoshi/skyline/internal/token"
	"github.com/hitoshi/skyline/internal/upload"
)

// server はワイヤリング済みのHTTPハンドラーと、停止時に解放が必要な資源を持つ。
// tokensはログインでの発行と認証ゲートでの検証に共通で使うコーデック。
type server struct {
	handler     http.Handler
	rateLimiter *middleware.RateLimiter
	tokens      *token.Codec
}

// Close はレート制限のクリーンアップgoroutineを止める。
func (s *server) Close() {
	s.rateLimiter.Stop()
}

// newTokenCodec はTOKEN_SECRETからトークンコーデックを作る。
func newTokenCodec(cfg *config.Config) (*token.Codec, error) {
	codec, err := token.NewCodec(cfg.TokenSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create token codec: %w", err)
	}
	return codec, nil
}

// newAuthService は管理者認証サービスを組み立てる。serveとsetupで共有する。
func newAuthService(cfg *config.Config, db *sql.DB, codec *token.Codec, logger *slog.Logger) *auth.Service {
	return auth.NewService(repository.NewPostgresAdminRepo(db), codec, auth.ServiceConfig{
		TokenTTL:          cfg.TokenTTL,
		AllowBootstrap:    cfg.AllowBootstrapAdmin,
		BootstrapUsername: cfg.BootstrapAdminUsername,
		BootstrapPassword: cfg.BootstrapAdminPassword,
	}, logger)
}

// newServer はDB接続から全依存関係をワイヤリングし、ルーターを構築する。
// DBへの接続確認は行わない。
func newServer(cfg *config.Config, db *sql.DB, logger *slog.Logger) (*server, error) {
	// 1. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 2. リポジトリの初期化
	recordRepo := repository.NewPostgresRecordRepo(db)
	settingsRepo := repository.NewPostgresSettingsRepo(db)
	subscriberRepo := repository.NewPostgresSubscriberRepo(db)
	planRepo := repository.NewPostgresPlanRepo(db)

	// 3. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	// 4. ドメインサービスの初期化
	codec, err := newTokenCodec(cfg)
	if err != nil {
		return nil, err
	}
	authService := newAuthService(cfg, db, codec, logger)

	store := record.NewStore(recordRepo, logger, record.WithObserver(collector))
	settingsService := settings.NewService(settingsRepo, logger)
	mailFactory := mail.NewFactory(cfg.MailHeloName, cfg.MailTimeout, logger, mail.WithResultObserver(collector))

	bookingService := booking.NewService(store, settingsService, mailFactory, sanitizer, logger, collector)
	aggregator := catalog.NewAggregator(store, settingsService, planRepo)
	plannerService := planner.NewService(planRepo, cfg.PlanLimit, logger)
	newsletterService := newsletter.NewService(subscriberRepo, logger)
	uploadService := upload.NewService(settingsService, upload.NewLocalStore(cfg.UploadDir, cfg.BaseURL), cfg.UploadMaxBytes, logger)
	prober := mail.NewProber(settingsService, mailFactory, logger)
	importer := feedimport.NewImporter(ssrfGuard, sanitizer, store, feedimport.Options{
		Timeout:     cfg.FeedImportTimeout,
		MaxBodySize: cfg.FeedImportMaxSize,
		Observer:    collector,
	}, logger)

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitPublic, cfg.RateLimitLogin))

	router := handler.NewRouter(&handler.RouterDeps{
		Authenticator:  middleware.NewAuthenticator(codec),
		RateLimiter:    rateLimiter,
		Logger:         logger,
		StatusObserver: collector,

		Health:          db,
		MetricsGatherer: registry,
		UploadDir:       cfg.UploadDir,

		AuthService:       authService,
		CatalogService:    aggregator,
		RecordService:     store,
		BookingService:    bookingService,
		NewsletterService: newsletterService,
		PlannerService:    plannerService,
		SettingsService:   settingsService,
		UploadService:     uploadService,
		MailProber:        prober,
		FeedImportService: importer,
	})

	return &server{handler: router, rateLimiter: rateLimiter, tokens: codec}, nil
}
