package model

import (
	"errors"
	"fmt"
)

// サインイン拒否理由。セッション境界を越えて返されることはなく、
// ゲート内部で拒否（false）に変換される。
var (
	// ErrInvalidClaim はクレームにメールアドレスが含まれないことを示す。
	ErrInvalidClaim = errors.New("identity claim has no email")
	// ErrPolicyRejected はメールアドレスが許可リストに含まれないことを示す。
	ErrPolicyRejected = errors.New("email is not in the allow-list")
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAccessDenied  = "AccessDenied"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeUserNotFound  = "USER_NOT_FOUND"
	ErrCodeConfiguration = "Configuration"
)

// NewAccessDeniedError はサインイン拒否エラーを生成する。
// 拒否理由の詳細（許可リスト外・メール欠落）は利用者に開示しない。
func NewAccessDeniedError() *APIError {
	return &APIError{
		Code:     ErrCodeAccessDenied,
		Message:  "このアカウントにはアクセス権限がありません。",
		Category: "auth",
		Action:   "管理者にアクセス権限の付与を依頼してください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "ログインが必要です。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者に権限の確認を依頼してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewAuthErrorFromCode はエラーページのクエリコードからAPIErrorを生成する。
// 未知のコードは汎用の認証エラーとして扱う。
func NewAuthErrorFromCode(code string) *APIError {
	switch code {
	case ErrCodeAccessDenied:
		return NewAccessDeniedError()
	case ErrCodeConfiguration:
		return &APIError{
			Code:     ErrCodeConfiguration,
			Message:  "認証サーバーの設定に問題があります。",
			Category: "system",
			Action:   "しばらく待ってから再度お試しください。",
		}
	default:
		return &APIError{
			Code:     "Default",
			Message:  "サインインできませんでした。",
			Category: "auth",
			Action:   "もう一度サインインをお試しください。",
		}
	}
}
