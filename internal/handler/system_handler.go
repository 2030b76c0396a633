package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/stockgate/internal/middleware"
	"github.com/hitoshi/stockgate/internal/model"
)

const healthCheckTimeout = 2 * time.Second

// HealthChecker はユーザーディレクトリの疎通確認インターフェース。
// *sql.DBが実装する。インメモリストアの場合はnilを渡す。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// Health はヘルスチェック結果を返す。
// GET /health
func Health(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Warn("health check failed", slog.String("error", err.Error()))
				middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// AdminPing は管理者ロールの確認用エンドポイント。
// GET /api/admin/ping
// RequireRole(model.RoleAdmin)の内側に配置する。
func AdminPing(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok || !session.IsAdmin() {
		middleware.WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"email":  session.Email,
		"id":     session.ID,
	})
}
