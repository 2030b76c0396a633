// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/stockgate/internal/model"
)

// ErrDuplicateEmail は同一メールアドレスのユーザーが既に存在し、
// 一意制約により挿入が拒否されたことを示す。
var ErrDuplicateEmail = errors.New("user with this email already exists")

// UserRepository はユーザーデータの永続化インターフェース。
// メールアドレスの一意性はストア側で保証する。
type UserRepository interface {
	// FindByEmail は正規化済みメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// Create はユーザーを作成する。
	// 同一メールアドレスのレコードが既に存在する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error
}
