// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Role はユーザーの権限ロールを表す。
type Role string

const (
	// RoleUser は一般ユーザー。作成時のデフォルト。
	RoleUser Role = "user"
	// RoleAdmin は管理者。付与は外部の管理操作でのみ行う。
	RoleAdmin Role = "admin"
)

// Valid は既知のロールかどうかを返す。
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User はダッシュボード利用ユーザーを表す。
// メールアドレスは小文字化済みで、1メールにつき1レコードのみ存在する。
type User struct {
	ID        string
	Email     string
	Name      string
	Image     string
	Role      Role
	CreatedAt time.Time
}

// Claim はIdPが1回のサインイン試行で返す検証済みの本人情報を表す。
// Emailのみが必須かつ信頼できるフィールド。
type Claim struct {
	Email string
	Name  string
	Image string
}

// NormalizeEmail はメールアドレスを比較・保存用に正規化する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
