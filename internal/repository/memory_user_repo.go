package repository

import (
	"context"
	"sync"

	"github.com/hitoshi/stockgate/internal/model"
)

// MemoryUserRepo はメモリ上のユーザーリポジトリ。
// ローカル実行とテスト用で、PostgreSQLと同じくメールアドレスの一意性を保証する。
type MemoryUserRepo struct {
	mu      sync.RWMutex
	byEmail map[string]*model.User
	byID    map[string]*model.User
}

// NewMemoryUserRepo はMemoryUserRepoを生成する。
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		byEmail: make(map[string]*model.User),
		byID:    make(map[string]*model.User),
	}
}

// FindByEmail は正規化済みメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u, ok := r.byEmail[email]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u, ok := r.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

// Create はユーザーを作成する。同一メールアドレスが存在する場合はErrDuplicateEmailを返す。
func (r *MemoryUserRepo) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[user.Email]; ok {
		return ErrDuplicateEmail
	}
	cp := *user
	r.byEmail[cp.Email] = &cp
	r.byID[cp.ID] = &cp
	return nil
}

// SetRole はユーザーのロールを変更する。
// 外部の管理操作を模したもので、サインイン処理からは呼ばれない。
func (r *MemoryUserRepo) SetRole(email string, role model.Role) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byEmail[email]
	if !ok {
		return false
	}
	u.Role = role
	return true
}

// Delete はユーザーを削除する。レコードの外部削除を模したもの。
func (r *MemoryUserRepo) Delete(email string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byEmail[email]; ok {
		delete(r.byID, u.ID)
		delete(r.byEmail, email)
	}
}

// Count は保持しているユーザー数を返す。
func (r *MemoryUserRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byEmail)
}

// compile-time interface check
var _ UserRepository = (*MemoryUserRepo)(nil)
