package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/stockgate/internal/middleware"
	"github.com/hitoshi/stockgate/internal/model"
)

// UserLookup はユーザーディレクトリの参照インターフェース。
type UserLookup interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// UserHandler はログイン中ユーザーのディレクトリ情報を返すハンドラー。
type UserHandler struct {
	users  UserLookup
	logger *slog.Logger
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(users UserLookup, logger *slog.Logger) *UserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandler{users: users, logger: logger}
}

type meResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Image     string    `json:"image"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Me はログイン中ユーザーのディレクトリレコードを返す。
// GET /api/me
// 拡充されていないセッション（ID未設定）はレコードなしとして404を返す。
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	if session.ID == "" {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError())
		return
	}

	user, err := h.users.FindByID(r.Context(), session.ID)
	if err != nil {
		h.logger.Error("failed to look up user",
			slog.String("user_id", session.ID),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}
	if user == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError())
		return
	}

	middleware.WriteJSON(w, http.StatusOK, meResponse{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Image:     user.Image,
		Role:      string(user.Role),
		CreatedAt: user.CreatedAt,
	})
}
