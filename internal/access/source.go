package access

import (
	"os"
)

// Source は評価時点の許可リストを提供する。
// サインイン評価のたびに呼び出されるため、設定の更新は再デプロイなしで反映される。
type Source interface {
	AllowList() AllowList
}

// EnvSource は環境変数から許可リストを毎回読み込む。
type EnvSource struct {
	Key string
}

// NewEnvSource はEnvSourceを生成する。
func NewEnvSource(key string) *EnvSource {
	return &EnvSource{Key: key}
}

// AllowList は環境変数の現在値を解析して返す。未設定の場合は空。
func (s *EnvSource) AllowList() AllowList {
	return ParseAllowList(os.Getenv(s.Key))
}

// StaticSource は固定の許可リストを返す。
type StaticSource struct {
	list AllowList
}

// NewStaticSource はStaticSourceを生成する。
func NewStaticSource(emails ...string) *StaticSource {
	return &StaticSource{list: NewAllowList(emails...)}
}

// AllowList は固定の許可リストを返す。
func (s *StaticSource) AllowList() AllowList {
	return s.list
}

// compile-time interface check
var (
	_ Source = (*EnvSource)(nil)
	_ Source = (*StaticSource)(nil)
	_ Source = (*FileSource)(nil)
)
