// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/stockgate/internal/auth"
	"github.com/hitoshi/stockgate/internal/middleware"
	"github.com/hitoshi/stockgate/internal/model"
)

const (
	oauthStateCookie = "stockgate_oauth_state"
	oauthStateMaxAge = 600 // 10分

	errorPagePath = "/auth/error"
	loginPath     = "/auth/google/login"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*auth.IssuedSession, error)
}

var _ AuthServiceInterface = (*auth.Service)(nil)

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL      string
	CookieDomain string
	CookieSecure bool
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
	logger  *slog.Logger
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		service: service,
		config:  config,
		logger:  logger,
	}
}

// Login はGoogle OAuthフローを開始する。
// GET /auth/google/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		h.logger.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// stateをCookieに保存（CSRF対策）
	h.setCookie(w, oauthStateCookie, state, oauthStateMaxAge, "")

	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/google/callback?code=xxx&state=yyy
// 許可された場合はセッションCookieを設定してBASE_URLへ、
// 拒否された場合は理由を含まない/auth/error?error=AccessDeniedへリダイレクトする。
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// 1. stateの検証（CSRF対策）
	state := q.Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(stateCookie.Value), []byte(state)) != 1 {
		h.logger.Warn("oauth state mismatch")
		h.redirectToError(w, r, "Default")
		return
	}
	h.setCookie(w, oauthStateCookie, "", -1, "")

	// 2. プロバイダー側で同意が拒否された場合
	if providerErr := q.Get("error"); providerErr != "" {
		h.logger.Info("oauth provider returned error", slog.String("error", providerErr))
		h.redirectToError(w, r, model.ErrCodeAccessDenied)
		return
	}

	// 3. 認可コードの取得
	code := q.Get("code")
	if code == "" {
		h.redirectToError(w, r, "Default")
		return
	}

	// 4. 認証処理（許可リスト判定とプロビジョニングを含む）
	issued, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		if errors.Is(err, auth.ErrAccessDenied) {
			h.redirectToError(w, r, model.ErrCodeAccessDenied)
			return
		}
		h.logger.Error("oauth callback failed", slog.String("error", err.Error()))
		h.redirectToError(w, r, model.ErrCodeConfiguration)
		return
	}

	// 5. セッションCookieを設定（HTTP Only）
	maxAge := int(time.Until(issued.ExpiresAt).Seconds())
	h.setCookie(w, middleware.SessionCookieName, issued.Token, maxAge, h.config.CookieDomain)

	// 6. フロントエンドにリダイレクト
	http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
}

// SignIn はサインインページの入口。
// GET /auth/signin
// 有効なセッションがある場合はBASE_URLへ、無い場合はGoogleログインへリダイレクトする。
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.SessionFromContext(r.Context()); ok {
		http.Redirect(w, r, h.config.BaseURL, http.StatusFound)
		return
	}
	http.Redirect(w, r, loginPath, http.StatusFound)
}

// Error はサインインエラーを統一フォーマットで返す。
// GET /auth/error?error=AccessDenied
func (h *AuthHandler) Error(w http.ResponseWriter, r *http.Request) {
	apiErr := model.NewAuthErrorFromCode(r.URL.Query().Get("error"))

	status := http.StatusBadRequest
	switch apiErr.Code {
	case model.ErrCodeAccessDenied:
		status = http.StatusForbidden
	case model.ErrCodeConfiguration:
		status = http.StatusInternalServerError
	}
	middleware.WriteErrorResponse(w, status, apiErr)
}

// SignOut はセッションCookieを破棄する。
// POST /auth/signout
// セッションはトークンに閉じているため、サーバー側で破棄する状態は無い。
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if session, ok := middleware.SessionFromContext(r.Context()); ok {
		h.logger.Info("signed out", slog.String("email", session.Email))
	}
	h.setCookie(w, middleware.SessionCookieName, "", -1, h.config.CookieDomain)

	http.Redirect(w, r, h.config.BaseURL, http.StatusSeeOther)
}

// sessionUserResponse はセッションJSONのuser部分。
// idとroleは拡充に成功した場合のみ含まれる。
type sessionUserResponse struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Image string `json:"image,omitempty"`
	ID    string `json:"id,omitempty"`
	Role  string `json:"role,omitempty"`
}

type sessionResponse struct {
	User    sessionUserResponse `json:"user"`
	Expires time.Time           `json:"expires"`
}

// Session は現在のセッション（拡充済み）を返す。
// GET /auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	middleware.WriteJSON(w, http.StatusOK, sessionResponse{
		User: sessionUserResponse{
			Email: session.Email,
			Name:  session.Name,
			Image: session.Image,
			ID:    session.ID,
			Role:  string(session.Role),
		},
		Expires: session.ExpiresAt.UTC(),
	})
}

func (h *AuthHandler) redirectToError(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, errorPagePath+"?error="+url.QueryEscape(code), http.StatusTemporaryRedirect)
}

func (h *AuthHandler) setCookie(w http.ResponseWriter, name, value string, maxAge int, domain string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
