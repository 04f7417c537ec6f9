package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/deckman/internal/config"
	"github.com/hitoshi/deckman/internal/database"
	"github.com/hitoshi/deckman/internal/deck"
	"github.com/hitoshi/deckman/internal/handler"
	"github.com/hitoshi/deckman/internal/logger"
	"github.com/hitoshi/deckman/internal/metrics"
	"github.com/hitoshi/deckman/internal/middleware"
	"github.com/hitoshi/deckman/internal/repository"
	"github.com/hitoshi/deckman/internal/scheduler"
	"github.com/hitoshi/deckman/internal/security"
	"github.com/hitoshi/deckman/internal/srs"
	"github.com/hitoshi/deckman/internal/user"
	"github.com/hitoshi/deckman/internal/worker/remind"
)

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

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

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
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// srsParams は設定値からスケジューリングパラメータを構築する。
func srsParams(cfg *config.Config) srs.Params {
	p := srs.DefaultParams()
	p.Growth = cfg.SRSGrowth
	p.AbitFactor = cfg.SRSAbitFactor
	p.LapsePenalty = cfg.SRSLapsePenalty
	p.EaseDelta = cfg.SRSEaseDelta
	p.SmallDelta = cfg.SRSSmallDelta
	p.LargeDelta = cfg.SRSLargeDelta
	p.MinStability = cfg.SRSMinStability
	return p
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

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	deckRepo := repository.NewPostgresDeckRepo(db)
	stateRepo := repository.NewPostgresStateRepo(db)
	eventRepo := repository.NewPostgresEventRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. ドメインサービスの初期化
	schedService := scheduler.NewService(
		userRepo, deckRepo, stateRepo, eventRepo,
		srsParams(cfg), cfg.RecordMaxAttempts, collector,
	)
	deckService := deck.NewService(deckRepo, stateRepo)
	userService := user.NewService(userRepo, user.Defaults{
		Timezone: cfg.DefaultTimezone,
		SendTime: cfg.DefaultSendTime,
		Locale:   cfg.DefaultLocale,
	})

	// 5. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.ActionRate = rate.Limit(float64(cfg.RateLimitAction) / 60.0)

	deps := &handler.RouterDeps{
		RateLimiter: middleware.NewRateLimiter(rateLimiterCfg),
		AdminIDs:    cfg.AdminIDs,
		Logger:      slog.Default(),

		SchedulerService: schedService,
		DeckService:      deckService,
		AdminDeckService: deckService,
		UserService:      userService,

		MetricsHandler: metrics.Handler(registry),
	}

	router := handler.NewRouter(deps)

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はリマインドワーカーモードで起動する。
// DB接続を開き、リマインドスケジューラを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	stateRepo := repository.NewPostgresStateRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. 通知送信の初期化
	var notifier remind.Notifier
	if cfg.NotifyWebhookURL != "" {
		guard := security.NewWebhookGuard()
		if err := guard.ValidateURL(cfg.NotifyWebhookURL); err != nil {
			return fmt.Errorf("invalid NOTIFY_WEBHOOK_URL: %w", err)
		}
		notifier = remind.NewWebhookNotifier(
			cfg.NotifyWebhookURL, guard, security.NewTextSanitizer(), cfg.NotifyTimeout,
		)
	} else {
		slog.Warn("NOTIFY_WEBHOOK_URL is not set, reminders will only be logged")
		notifier = remind.NewLogNotifier(slog.Default())
	}

	// 5. スケジューラの起動
	remindScheduler := remind.NewScheduler(
		userRepo, stateRepo, notifier, slog.Default(), collector, cfg.RemindMaxConcurrent,
	)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("remind_interval", cfg.RemindInterval),
		slog.Int("max_concurrent", cfg.RemindMaxConcurrent),
	)

	// リマインドスケジューラをメインgoroutineで実行（ブロッキング）
	remindScheduler.Start(ctx, cfg.RemindInterval)

	slog.Info("worker stopped gracefully")
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
