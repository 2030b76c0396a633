// Package auth はOAuth認証フローとセッションの発行・復元を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/stockgate/internal/model"
)

// ErrAccessDenied はサインインが許可されなかったことを示す。
// 拒否理由の詳細は含めない。
var ErrAccessDenied = errors.New("access denied")

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、検証済みのクレームを取得する。
	ExchangeCode(ctx context.Context, code string) (*model.Claim, error)
}

// SessionGate はサインイン判定とセッション拡充のフック。
type SessionGate interface {
	OnSignIn(ctx context.Context, claim model.Claim) bool
	OnSession(ctx context.Context, s *model.Session) *model.Session
}

// TokenIssuer はセッショントークンの発行・検証インターフェース。
type TokenIssuer interface {
	Issue(claim model.Claim) (string, time.Time, error)
	Parse(token string) (*model.Session, error)
}

// IssuedSession はサインイン成功時に発行したセッショントークン。
type IssuedSession struct {
	Token     string
	ExpiresAt time.Time
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth  OAuthProvider
	gate   SessionGate
	tokens TokenIssuer
	logger *slog.Logger
}

// NewService はServiceを生成する。loggerがnilの場合はslog.Default()を使う。
func NewService(oauth OAuthProvider, gate SessionGate, tokens TokenIssuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		oauth:  oauth,
		gate:   gate,
		tokens: tokens,
		logger: logger,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、許可された場合にセッションを発行する。
// 許可されなかった場合はErrAccessDeniedを返す。
func (s *Service) HandleCallback(ctx context.Context, code string) (*IssuedSession, error) {
	// 1. 認可コードを交換し、クレームを取得
	claim, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	// 2. サインイン判定（許可リスト → プロビジョニング）
	if !s.gate.OnSignIn(ctx, *claim) {
		return nil, ErrAccessDenied
	}

	// 3. セッションを発行
	token, expiresAt, err := s.tokens.Issue(*claim)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}

	s.logger.Info("session issued",
		slog.String("email", model.NormalizeEmail(claim.Email)),
		slog.Time("expires_at", expiresAt),
	)
	return &IssuedSession{Token: token, ExpiresAt: expiresAt}, nil
}

// CurrentSession はセッショントークンを検証し、拡充済みセッションを返す。
func (s *Service) CurrentSession(ctx context.Context, token string) (*model.Session, error) {
	base, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	return s.gate.OnSession(ctx, base), nil
}
