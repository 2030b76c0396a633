// Package app はアプリケーションの起動とワイヤリングを提供する。
package app

import (
	"context"
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/stockgate/internal/access"
	"github.com/hitoshi/stockgate/internal/auth"
	"github.com/hitoshi/stockgate/internal/config"
	"github.com/hitoshi/stockgate/internal/database"
	"github.com/hitoshi/stockgate/internal/directory"
	"github.com/hitoshi/stockgate/internal/gate"
	"github.com/hitoshi/stockgate/internal/handler"
	"github.com/hitoshi/stockgate/internal/logger"
	"github.com/hitoshi/stockgate/internal/metrics"
	"github.com/hitoshi/stockgate/internal/middleware"
	"github.com/hitoshi/stockgate/internal/repository"
	"github.com/hitoshi/stockgate/internal/session"
)

const (
	dbPingTimeout   = 5 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	log := logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, log, nil
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

	cfg, log, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	log.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("store_driver", cfg.StoreDriver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg, log)
	default:
		return runServe(ctx, cfg, log)
	}
}

// userStore はユーザーディレクトリの永続化層と、その疎通確認・後始末をまとめたもの。
type userStore struct {
	repo   repository.UserRepository
	health handler.HealthChecker
	close  func() error
}

// openUserStore はSTORE_DRIVERに応じたユーザーリポジトリを開く。
// USER_CACHE_TTLが正の場合は期限付きLRUキャッシュを前段に置く。
func openUserStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (*userStore, error) {
	store := &userStore{close: func() error { return nil }}

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Warn("using in-memory user directory; records are lost on restart")
		store.repo = repository.NewMemoryUserRepo()
	default:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		log.Info("database connection established")
		store.repo = repository.NewPostgresUserRepo(db)
		store.health = db
		store.close = db.Close
	}

	if cfg.UserCacheTTL > 0 {
		log.Info("user directory cache enabled",
			slog.Duration("ttl", cfg.UserCacheTTL),
			slog.Int("size", cfg.UserCacheSize),
		)
		store.repo = repository.NewCachedUserRepo(store.repo, cfg.UserCacheSize, cfg.UserCacheTTL)
	}

	return store, nil
}

// openAllowList は許可リストの取得元を構築する。
// WHITELIST_FILEが設定されている場合はファイルを監視し、変更を即時反映する。
// 読み込みに失敗した場合は空の許可リスト（全拒否）で起動を続ける。
func openAllowList(ctx context.Context, cfg *config.Config, log *slog.Logger) access.Source {
	if cfg.AllowListFile == "" {
		return access.NewEnvSource(cfg.AllowListEnvKey)
	}

	src, err := access.NewFileSource(cfg.AllowListFile, log)
	if err != nil {
		log.Error("failed to load allow-list file; all sign-ins will be rejected until it is readable",
			slog.String("path", cfg.AllowListFile),
			slog.String("error", err.Error()),
		)
	}

	go func() {
		if err := src.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("allow-list watcher stopped", slog.String("error", err.Error()))
		}
	}()

	return src
}

// serverDeps はルーター構築に必要な外部依存。
type serverDeps struct {
	oauth    auth.OAuthProvider
	store    *userStore
	policy   access.Source
	registry *prometheus.Registry
}

// newHandler はサインインゲート全体をワイヤリングし、HTTPハンドラーを返す。
// 返却するRateLimiterはシャットダウン時にStopする。
func newHandler(cfg *config.Config, log *slog.Logger, deps serverDeps) (http.Handler, *middleware.RateLimiter, error) {
	rec := metrics.NewCollector(deps.registry)

	dir := directory.NewService(deps.store.repo, directory.Config{Timeout: cfg.DirectoryTimeout}, log)
	enricher := session.NewEnricher(dir, log, rec)
	g := gate.New(deps.policy, dir, enricher, gate.Config{SignInTimeout: cfg.SignInTimeout}, log, rec)

	tokens, err := session.NewManager(session.ManagerConfig{
		Secret: []byte(cfg.SessionSecret),
		MaxAge: cfg.SessionMaxAgeDuration(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	authService := auth.NewService(deps.oauth, g, tokens, log)
	rateLimiter := middleware.NewRateLimiter(middleware.AuthRateLimiterConfig(cfg.RateLimitAuth))

	router := handler.NewRouter(&handler.RouterDeps{
		SessionReader:     authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		RateLimiter:       rateLimiter,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Logger:      log,
		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:      cfg.BaseURL,
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
		},
		Users:          dir,
		HealthChecker:  deps.store.health,
		MetricsHandler: metrics.Handler(deps.registry),
	})

	return router, rateLimiter, nil
}

// runServe はAPIサーバーモードで起動する。
// ユーザーディレクトリを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	// 1. ユーザーディレクトリ
	store, err := openUserStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.close()

	// 2. 許可リスト
	policy := openAllowList(ctx, cfg, log)

	// 3. OIDCプロバイダー（ディスカバリのため起動時に通信する）
	oauthProvider, err := auth.NewGoogleOAuthProvider(ctx, auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		IssuerURL:    cfg.GoogleIssuerURL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize oauth provider: %w", err)
	}

	// 4. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// 5. ルーター
	router, rateLimiter, err := newHandler(cfg, log, serverDeps{
		oauth:    oauthProvider,
		store:    store,
		policy:   policy,
		registry: registry,
	})
	if err != nil {
		return err
	}
	defer rateLimiter.Stop()

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// インメモリストアの場合はスキーマが無いため何もしない。
func runMigrate(cfg *config.Config, log *slog.Logger) error {
	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Info("memory store driver selected; no migrations to run")
		return nil
	}

	log.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	result, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Info("database migrations completed",
		slog.Uint64("schema_version", uint64(result.Version)),
		slog.Bool("changed", result.Changed),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
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
