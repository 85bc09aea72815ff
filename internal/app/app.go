package app

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/skyline/internal/config"
	"github.com/hitoshi/skyline/internal/database"
	"github.com/hitoshi/skyline/internal/logger"
)

// dbPingTimeout は起動時のDB接続確認の上限。
const dbPingTimeout = 5 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. .envで指定されたLOG_LEVELも反映する
	slog.SetDefault(logger.Setup(w, logger.ParseLevel(cfg.LogLevel)))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	if !cmd.needsConfig() {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandSetup:
		var rest []string
		if len(args) > 1 {
			rest = args[1:]
		}
		return runSetup(cfg, rest)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.Ping(context.Background(), db, dbPingTimeout); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. 依存関係のワイヤリング
	srv, err := newServer(cfg, db, slog.Default())
	if err != nil {
		return err
	}
	defer srv.Close()

	if cfg.AllowBootstrapAdmin {
		slog.Warn("bootstrap admin login is enabled; disable ALLOW_BOOTSTRAP_ADMIN after initial setup")
	}

	// 3. HTTPサーバーの起動
	// WriteTimeoutはSMTPの応答待ちとアップロードを含むため長めに取る
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// setupOptions はsetupサブコマンドの引数。
type setupOptions struct {
	Username string
	Email    string
	Password string
}

// parseSetupArgs はsetupサブコマンドの引数を解析する。
// 指定が無い項目はBOOTSTRAP_ADMIN_USERNAME/BOOTSTRAP_ADMIN_PASSWORDの値を使う。
func parseSetupArgs(cfg *config.Config, args []string) (*setupOptions, error) {
	opts := &setupOptions{}
	fs := flag.NewFlagSet("setup", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.Username, "username", cfg.BootstrapAdminUsername, "admin username")
	fs.StringVar(&opts.Email, "email", "", "admin email")
	fs.StringVar(&opts.Password, "password", cfg.BootstrapAdminPassword, "admin password")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("invalid setup arguments: %w", err)
	}
	return opts, nil
}

// runSetup は初回セットアップとして管理者アカウントを作成する。
// 同名の管理者が既に存在する場合は何もしない。
func runSetup(cfg *config.Config, args []string) error {
	opts, err := parseSetupArgs(cfg, args)
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	codec, err := newTokenCodec(cfg)
	if err != nil {
		return err
	}
	authService := newAuthService(cfg, db, codec, slog.Default())

	admin, created, err := authService.Bootstrap(ctx, opts.Username, opts.Email, opts.Password)
	if err != nil {
		return fmt.Errorf("setup failed: %w", err)
	}

	if !created {
		slog.Info("admin already exists", slog.String("username", admin.Username))
		return nil
	}
	slog.Info("admin created", slog.String("username", admin.Username), slog.String("admin_id", admin.ID))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
