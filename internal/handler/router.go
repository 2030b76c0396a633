package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/stockgate/internal/middleware"
	"github.com/hitoshi/stockgate/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionReader     middleware.SessionReader
	CORSAllowedOrigin string
	TrustProxyHeaders bool // trueの場合のみX-Forwarded-For等でRemoteAddrを書き換える
	RateLimiter       *middleware.RateLimiter
	CSRF              middleware.CSRFConfig
	Logger            *slog.Logger

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ユーザーディレクトリ
	Users UserLookup

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RequestID → (RealIP) → SecurityHeaders → SessionLoader → Logging → CORS
//
// /auth/* にはさらにクライアントIPごとのレート制限とCSRF検証を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(chimw.RequestID)
	if deps.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.AuthConfig.CookieSecure))
	r.Use(middleware.NewSessionLoader(deps.SessionReader))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, logger)

	// --- 運用エンドポイント ---
	r.Get("/health", Health(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 認証ルート ---
	r.Route("/auth", func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		// OAuthフロー
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)

		// ページ
		r.Get("/signin", authHandler.SignIn)
		r.Get("/error", authHandler.Error)

		// セッション管理
		r.Get("/csrf", middleware.NewCSRFTokenHandler(deps.CSRF).ServeHTTP)
		r.Get("/session", authHandler.Session)
		r.Post("/signout", authHandler.SignOut)
	})

	// --- ユーザールート ---
	if deps.Users != nil {
		userHandler := NewUserHandler(deps.Users, logger)
		r.With(middleware.RequireSession).Get("/api/me", userHandler.Me)
	}

	// --- 管理者ルート ---
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.RequireRole(model.RoleAdmin))
		r.Get("/ping", AdminPing)
	})

	return r
}
