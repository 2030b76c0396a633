// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/stockgate/internal/model"
)

// SessionCookieName はセッショントークンを保持するHTTP Only Cookieの名前。
const SessionCookieName = "stockgate_session"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// sessionContextKey はリクエストコンテキストに拡充済みセッションを格納するためのキー。
var sessionContextKey = contextKey("session")

// SessionReader はセッショントークンから拡充済みセッションを復元するインターフェース。
// auth.Serviceが実装する。
type SessionReader interface {
	CurrentSession(ctx context.Context, token string) (*model.Session, error)
}

// NewSessionLoader はCookieのセッショントークンを検証し、
// 有効な場合に拡充済みセッションをリクエストコンテキストに注入するミドルウェアを返す。
// トークンが無い・無効な場合も拒否はせず、セッション無しとして後続に渡す。
func NewSessionLoader(reader SessionReader) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			session, err := reader.CurrentSession(r.Context(), cookie.Value)
			if err != nil {
				slog.Debug("ignoring invalid session token",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), session)))
		})
	}
}

// RequireSession はセッションの無いリクエストに401 Unauthorizedを返すミドルウェア。
// NewSessionLoaderの後に配置する。
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := SessionFromContext(r.Context()); !ok {
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole は指定ロールを持たないリクエストを拒否するミドルウェアを返す。
// セッションが無い場合は401、ロールが一致しない場合は403を返す。
// ロールの判定はEffectiveRoleで行うため、拡充に失敗したセッションは一般ユーザーとして扱われる。
func RequireRole(role model.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := SessionFromContext(r.Context())
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if session.EffectiveRole() != role {
				slog.Warn("role check failed",
					slog.String("email", session.Email),
					slog.String("required_role", string(role)),
					slog.String("role", string(session.EffectiveRole())),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。
func SessionFromContext(ctx context.Context) (*model.Session, bool) {
	session, ok := ctx.Value(sessionContextKey).(*model.Session)
	if !ok || session == nil {
		return nil, false
	}
	return session, true
}

// ContextWithSession はコンテキストにセッションを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, session *model.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}
