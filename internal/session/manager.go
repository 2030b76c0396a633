// Package session は署名付きトークンによるセッションの発行・復元と、
// ユーザーディレクトリによるセッション拡充を提供する。
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/stockgate/internal/model"
)

// ErrInvalidToken はセッショントークンが不正または期限切れであることを示す。
var ErrInvalidToken = errors.New("invalid session token")

// Claims はセッショントークンに格納するクレーム。
// ロールやユーザーIDは含めず、読み出しのたびにディレクトリから拡充する。
type Claims struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// ManagerConfig はセッショントークンの設定。
type ManagerConfig struct {
	Secret []byte
	MaxAge time.Duration
}

// Manager はHS256署名のセッショントークンを発行・検証する。
type Manager struct {
	config ManagerConfig
	now    func() time.Time
}

// NewManager はManagerを生成する。
func NewManager(config ManagerConfig) (*Manager, error) {
	if len(config.Secret) == 0 {
		return nil, fmt.Errorf("session secret is required")
	}
	if config.MaxAge <= 0 {
		return nil, fmt.Errorf("session max age must be positive")
	}
	return &Manager{config: config, now: time.Now}, nil
}

// Issue はクレームに対するセッショントークンを発行する。
func (m *Manager) Issue(claim model.Claim) (string, time.Time, error) {
	email := model.NormalizeEmail(claim.Email)
	if email == "" {
		return "", time.Time{}, model.ErrInvalidClaim
	}

	now := m.now()
	expiresAt := now.Add(m.config.MaxAge)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email:   email,
		Name:    claim.Name,
		Picture: claim.Image,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	signed, err := token.SignedString(m.config.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse はセッショントークンを検証し、拡充前のセッションを復元する。
func (m *Manager) Parse(tokenString string) (*model.Session, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return m.config.Secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Email == "" {
		return nil, ErrInvalidToken
	}

	return &model.Session{
		Email:     claims.Email,
		Name:      claims.Name,
		Image:     claims.Picture,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// MaxAge はセッションの有効期間を返す。
func (m *Manager) MaxAge() time.Duration {
	return m.config.MaxAge
}
