package repository

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/hitoshi/stockgate/internal/model"
)

// CachedUserRepo はFindByEmailのヒット結果を期限付きLRUにキャッシュするデコレータ。
// 未登録（nil）や取得エラーはキャッシュしない。
// 管理者レコードはキャッシュせず毎回ストアを参照するため、降格や削除は即座に反映される。
// 一般ユーザーの昇格はTTL経過後に反映される。
type CachedUserRepo struct {
	next  UserRepository
	cache *expirable.LRU[string, model.User]
}

// NewCachedUserRepo はCachedUserRepoを生成する。
func NewCachedUserRepo(next UserRepository, size int, ttl time.Duration) *CachedUserRepo {
	if size <= 0 {
		size = 1024
	}
	return &CachedUserRepo{
		next:  next,
		cache: expirable.NewLRU[string, model.User](size, nil, ttl),
	}
}

// FindByEmail はキャッシュを参照し、ミス時は下位リポジトリから取得する。
func (r *CachedUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if u, ok := r.cache.Get(email); ok {
		return &u, nil
	}
	user, err := r.next.FindByEmail(ctx, email)
	if err != nil || user == nil {
		return user, err
	}
	r.store(email, user)
	return user, nil
}

// FindByID は下位リポジトリに委譲する。
func (r *CachedUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.next.FindByID(ctx, id)
}

// Create は下位リポジトリで作成し、成功時にキャッシュへ登録する。
func (r *CachedUserRepo) Create(ctx context.Context, user *model.User) error {
	if err := r.next.Create(ctx, user); err != nil {
		return err
	}
	r.store(user.Email, user)
	return nil
}

func (r *CachedUserRepo) store(email string, user *model.User) {
	if user.Role == model.RoleAdmin {
		r.cache.Remove(email)
		return
	}
	r.cache.Add(email, *user)
}

// Len はキャッシュ件数を返す。
func (r *CachedUserRepo) Len() int {
	return r.cache.Len()
}

// compile-time interface check
var _ UserRepository = (*CachedUserRepo)(nil)
