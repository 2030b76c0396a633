// Package directory はメールアドレスをキーとするユーザーディレクトリを提供する。
// 検索と初回サインイン時のプロビジョニング（未登録なら作成）のみを扱う。
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/stockgate/internal/model"
	"github.com/hitoshi/stockgate/internal/repository"
)

// ErrDirectoryFault はストア障害（接続断・タイムアウト・制約違反など）を示す。
var ErrDirectoryFault = errors.New("user directory fault")

// FaultError はディレクトリ操作の失敗を表す。errors.Is(err, ErrDirectoryFault)がtrueになる。
type FaultError struct {
	Op  string // "find" or "create"
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *FaultError) Error() string {
	return fmt.Sprintf("directory %s: %v", e.Op, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *FaultError) Unwrap() error {
	return e.Err
}

// Is はErrDirectoryFaultとの比較を可能にする。
func (e *FaultError) Is(target error) bool {
	return target == ErrDirectoryFault
}

// Config はディレクトリサービスの設定。
type Config struct {
	Timeout time.Duration // 1回のストア呼び出しの上限時間。0以下で無制限
}

// Service はユーザーディレクトリのサービス層。
// メールアドレスの一意性はストアの一意制約に任せ、プロセス内ロックは持たない。
type Service struct {
	repo   repository.UserRepository
	config Config
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewService はServiceを生成する。
func NewService(repo repository.UserRepository, config Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		config: config,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// FindByEmail はメールアドレスを正規化してユーザーを検索する。
// 見つからない場合はnil, nilを返す。ストア障害はFaultErrorとして返す。
func (s *Service) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	email = model.NormalizeEmail(email)
	if email == "" {
		return nil, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, &FaultError{Op: "find", Err: err}
	}
	return user, nil
}

// FindByID はIDでユーザーを検索する。見つからない場合はnil, nilを返す。
func (s *Service) FindByID(ctx context.Context, id string) (*model.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, &FaultError{Op: "find", Err: err}
	}
	return user, nil
}

// CreateIfAbsent は未登録のメールアドレスに対してユーザーを作成する。
// 既に存在する場合は書き込みを行わず既存レコードを返す。
// 並行する初回サインインで挿入が一意制約に当たった場合は、再読込して勝者のレコードを返す。
// 2番目の戻り値は今回の呼び出しで作成したかどうか。
func (s *Service) CreateIfAbsent(ctx context.Context, email, name, image string) (*model.User, bool, error) {
	email = model.NormalizeEmail(email)
	if email == "" {
		return nil, false, model.ErrInvalidClaim
	}

	existing, err := s.FindByEmail(ctx, email)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	user := &model.User{
		ID:        s.newID(),
		Email:     email,
		Name:      name,
		Image:     image,
		Role:      model.RoleUser,
		CreatedAt: s.now().UTC(),
	}

	insertCtx, cancel := s.withTimeout(ctx)
	err = s.repo.Create(insertCtx, user)
	cancel()

	if errors.Is(err, repository.ErrDuplicateEmail) {
		// 並行する挿入に負けた: 既存レコードとして扱う
		winner, findErr := s.FindByEmail(ctx, email)
		if findErr != nil {
			return nil, false, findErr
		}
		if winner == nil {
			return nil, false, &FaultError{Op: "create", Err: fmt.Errorf("duplicate email reported but record not found: %w", err)}
		}
		s.logger.Info("user provisioned concurrently, using existing record",
			slog.String("user_id", winner.ID),
			slog.String("email", email),
		)
		return winner, false, nil
	}
	if err != nil {
		return nil, false, &FaultError{Op: "create", Err: err}
	}

	s.logger.Info("new user provisioned",
		slog.String("user_id", user.ID),
		slog.String("email", email),
		slog.String("role", string(user.Role)),
	)
	return user, true, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.config.Timeout)
}
