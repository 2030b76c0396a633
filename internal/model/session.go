package model

import "time"

// Session はリクエストごとに署名付きトークンから復元されるセッションを表す。
// IDとRoleはセッション拡充（enrichment）でのみ設定され、トークンには含まれない。
type Session struct {
	Email     string
	Name      string
	Image     string
	ID        string
	Role      Role
	ExpiresAt time.Time
}

// EffectiveRole は認可判定に使うロールを返す。
// ロールが未設定または未知の場合は最小権限のRoleUserとして扱う。
func (s *Session) EffectiveRole() Role {
	if s == nil || !s.Role.Valid() {
		return RoleUser
	}
	return s.Role
}

// IsAdmin は明示的にadminロールが付与されている場合のみtrueを返す。
func (s *Session) IsAdmin() bool {
	return s != nil && s.Role == RoleAdmin
}

// Enriched はユーザーレコード由来のフィールドが付与済みかどうかを返す。
func (s *Session) Enriched() bool {
	return s != nil && s.ID != ""
}
