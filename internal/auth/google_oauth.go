package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hitoshi/stockgate/internal/model"
	"golang.org/x/oauth2"
)

const defaultGoogleIssuerURL = "https://accounts.google.com"

// GoogleOAuthConfig はGoogle OAuthプロバイダーの設定。
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能な発行者URL
	IssuerURL string
}

// GoogleOAuthProvider はGoogle OpenID Connectによる本人確認を提供する。
type GoogleOAuthProvider struct {
	oauth2   *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewGoogleOAuthProvider はディスカバリーを行いGoogleOAuthProviderを生成する。
func NewGoogleOAuthProvider(ctx context.Context, config GoogleOAuthConfig) (*GoogleOAuthProvider, error) {
	if config.IssuerURL == "" {
		config.IssuerURL = defaultGoogleIssuerURL
	}

	provider, err := oidc.NewProvider(ctx, config.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	oauthCfg := &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		RedirectURL:  config.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: config.ClientID})

	return newGoogleOAuthProvider(oauthCfg, verifier), nil
}

func newGoogleOAuthProvider(oauthCfg *oauth2.Config, verifier *oidc.IDTokenVerifier) *GoogleOAuthProvider {
	return &GoogleOAuthProvider{oauth2: oauthCfg, verifier: verifier}
}

// GetLoginURL はGoogleの認証URLを生成する。
// スコープにはopenid, email, profileを含む。
func (p *GoogleOAuthProvider) GetLoginURL(state string) string {
	return p.oauth2.AuthCodeURL(state)
}

// googleIDTokenClaims はGoogleのIDトークンから取り出すクレーム。
type googleIDTokenClaims struct {
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// ExchangeCode は認可コードをトークンに交換し、IDトークンを検証してクレームを返す。
// email_verifiedがfalseの場合、メールアドレスは信頼できないため空にする。
func (p *GoogleOAuthProvider) ExchangeCode(ctx context.Context, code string) (*model.Claim, error) {
	// 1. 認可コードをトークンに交換
	token, err := p.oauth2.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	// 2. IDトークンを検証
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("missing id_token in token response")
	}
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	// 3. クレームを取り出す
	var claims googleIDTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse ID token claims: %w", err)
	}

	email := claims.Email
	if claims.EmailVerified != nil && !*claims.EmailVerified {
		email = ""
	}

	return &model.Claim{
		Email: email,
		Name:  claims.Name,
		Image: claims.Picture,
	}, nil
}

// compile-time interface check
var _ OAuthProvider = (*GoogleOAuthProvider)(nil)
