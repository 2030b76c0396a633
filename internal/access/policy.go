// Package access はサインイン可否を判定するアクセスポリシーと許可リストを提供する。
package access

import (
	"strings"

	"github.com/hitoshi/stockgate/internal/model"
)

// AllowList は小文字化済みメールアドレスの集合。
// 構築後は変更しないため、ロックなしで並行に参照できる。
type AllowList struct {
	emails map[string]struct{}
}

// NewAllowList は指定メールアドレスから許可リストを生成する。
// 各エントリは正規化され、空文字列は無視される。
func NewAllowList(emails ...string) AllowList {
	set := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		n := model.NormalizeEmail(e)
		if n == "" {
			continue
		}
		set[n] = struct{}{}
	}
	return AllowList{emails: set}
}

// ParseAllowList はカンマ区切りの設定値から許可リストを生成する。
// 改行区切りも受け付け、#以降はコメントとして扱う。
// 空または解釈できない入力は空の許可リスト（全拒否）になる。
func ParseAllowList(raw string) AllowList {
	var emails []string
	for _, line := range strings.Split(raw, "\n") {
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		emails = append(emails, strings.Split(line, ",")...)
	}
	return NewAllowList(emails...)
}

// Contains は正規化済みメールアドレスが含まれるかどうかを返す。
func (a AllowList) Contains(email string) bool {
	_, ok := a.emails[email]
	return ok
}

// Len は許可リストの件数を返す。
func (a AllowList) Len() int {
	return len(a.emails)
}

// IsAuthorized はクレームのメールアドレスがサインインを許可されているかを判定する。
// メールアドレスは小文字化して比較し、空の場合は常に拒否する。
// 許可リストが空の場合も全て拒否する（fail closed）。
func IsAuthorized(claimEmail string, allow AllowList) bool {
	return Evaluate(claimEmail, allow) == nil
}

// Evaluate はIsAuthorizedと同じ判定を行い、拒否理由をエラーで返す。
// 許可時はnilを返す。
func Evaluate(claimEmail string, allow AllowList) error {
	email := model.NormalizeEmail(claimEmail)
	if email == "" {
		return model.ErrInvalidClaim
	}
	if !allow.Contains(email) {
		return model.ErrPolicyRejected
	}
	return nil
}
