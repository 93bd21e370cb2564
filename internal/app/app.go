package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/devjobs/internal/auth"
	"github.com/hitoshi/devjobs/internal/config"
	"github.com/hitoshi/devjobs/internal/database"
	"github.com/hitoshi/devjobs/internal/handler"
	"github.com/hitoshi/devjobs/internal/logger"
	"github.com/hitoshi/devjobs/internal/mail"
	"github.com/hitoshi/devjobs/internal/metrics"
	"github.com/hitoshi/devjobs/internal/middleware"
	"github.com/hitoshi/devjobs/internal/repository"
	"github.com/hitoshi/devjobs/internal/security"
	"github.com/hitoshi/devjobs/internal/upload"
	"github.com/hitoshi/devjobs/internal/user"
	"github.com/hitoshi/devjobs/internal/vacancy"
	"github.com/hitoshi/devjobs/internal/view"
	"github.com/hitoshi/devjobs/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envがあれば読み込む（既存の環境変数が優先）
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.SetLevel(cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	var rollback int
	if cmd == CommandMigrate {
		steps, err := ParseRollbackSteps(args)
		if err != nil {
			return err
		}
		rollback = steps
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
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
		slog.String("storage", cfg.StorageBackend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg, rollback)
	default:
		return runServe(ctx, cfg)
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		return nil, err
	}

	if err := database.Ping(ctx, db, 5*time.Second); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// newStore は設定に応じてアップロードの保存先を生成する。
func newStore(ctx context.Context, cfg *config.Config) (upload.Store, error) {
	if cfg.StorageBackend == config.StorageS3 {
		return upload.NewS3Store(ctx, upload.S3Config{
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
	}
	return upload.NewLocalStore(cfg.UploadDir)
}

// newMailer はSMTP_HOSTが設定されていればSMTP、なければログ出力のMailerを生成する。
func newMailer(cfg *config.Config) (mail.Mailer, error) {
	if cfg.SMTPHost == "" {
		slog.Warn("SMTP_HOST is not set, reset emails will only be logged")
		return mail.NewLogMailer(slog.Default()), nil
	}
	return mail.NewSMTPMailer(mail.SMTPConfig{
		Host:       cfg.SMTPHost,
		Port:       cfg.SMTPPort,
		User:       cfg.SMTPUser,
		Password:   cfg.SMTPPassword,
		From:       cfg.MailFrom,
		FromName:   cfg.MailFromName,
		SkipVerify: cfg.SMTPSkipVerify,
	})
}

// buildRouter は全依存関係をワイヤリングしてルーターを構築する。
// 返り値のstopはレートリミッターのクリーンアップを停止する。
func buildRouter(ctx context.Context, cfg *config.Config, db *sql.DB) (http.Handler, func(), error) {
	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	vacancyRepo := repository.NewPostgresVacancyRepo(db)
	candidateRepo := repository.NewPostgresCandidateRepo(db)

	// 2. 外部リソースの初期化
	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize upload store: %w", err)
	}
	mailer, err := newMailer(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize mailer: %w", err)
	}
	sanitizer := security.NewSanitizer()

	// 3. ドメインサービスの初期化
	authService := auth.NewService(userRepo, sessionRepo, mailer, auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
		ResetTokenTTL: cfg.ResetTokenTTL,
	})
	vacancyService := vacancy.NewService(vacancyRepo, candidateRepo, sanitizer, store)
	userService := user.NewService(userRepo, sanitizer, store)

	// 4. 表示とメトリクス
	renderer, err := view.New(view.NewFlashStore(cfg.SessionSecret, cfg.CookieSecure))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 5. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = middleware.PerMinute(cfg.RateLimitGeneral)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.SensitiveRate = middleware.PerMinute(cfg.RateLimitSensitive)
	rateLimiterCfg.SensitiveBurst = cfg.RateLimitSensitive
	limiter := middleware.NewRateLimiter(rateLimiterCfg)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:         slog.Default(),
		HealthChecker:  db,
		UserResolver:   authService,
		RateLimiter:    limiter,
		CSRF:           middleware.CSRFConfig{CookieSecure: cfg.CookieSecure},
		Metrics:        collector,
		MetricsHandler: metrics.Handler(registry),

		Renderer: renderer,
		Uploader: upload.NewIntake(store),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:            cfg.BaseURL,
			CookieSecure:       cfg.CookieSecure,
			SessionMaxAge:      cfg.SessionMaxAge,
			RevealUnknownEmail: cfg.ResetRevealUnknownEmail,
		},

		VacancyService: vacancyService,
		MaxCVBytes:     cfg.UploadMaxBytes,

		UserService:   userService,
		MaxImageBytes: cfg.UploadMaxBytes,
	})

	return router, limiter.Stop, nil
}

// runServe はWebサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	router, stopLimiter, err := buildRouter(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer stopLimiter()

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("web server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down web server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("web server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れのセッションと再設定トークンを定期的に削除する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("worker starting", slog.Duration("cleanup_interval", cfg.CleanupInterval))

	cleanup.NewCleanupJob(db, slog.Default()).RunEvery(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// rollbackが0ならすべての未適用マイグレーションを順番に適用し、
// 正の値ならその件数だけ巻き戻す。
func runMigrate(cfg *config.Config, rollback int) error {
	if rollback > 0 {
		slog.Info("rolling back database migrations",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
			slog.Int("steps", rollback),
		)
		if err := database.RollbackMigrations(cfg.DatabaseURL, rollback); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		slog.Info("database rollback completed successfully")
		return nil
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
