package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/stockgate/internal/directory"
	"github.com/hitoshi/stockgate/internal/metrics"
	"github.com/hitoshi/stockgate/internal/model"
)

// UserFinder はセッション拡充に必要なディレクトリ検索のインターフェース。
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

// Enricher はセッションにユーザーレコードのIDとロールを付与する。
// 読み取りのみで副作用はなく、同じ入力に対して何度呼んでも同じ結果になる。
type Enricher struct {
	users   UserFinder
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewEnricher はEnricherを生成する。
func NewEnricher(users UserFinder, logger *slog.Logger, rec metrics.Recorder) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Enricher{users: users, logger: logger, metrics: rec}
}

// Enrich はセッションのメールアドレスでユーザーを検索し、IDとロールを付与したコピーを返す。
// レコードが存在しない場合や検索に失敗した場合は、元のセッションをそのまま返す。
// 呼び出し側はロール未設定を最小権限として扱うこと。
func (e *Enricher) Enrich(ctx context.Context, base *model.Session) *model.Session {
	if base == nil || base.Email == "" {
		e.metrics.RecordEnrichment(metrics.EnrichSkip)
		return base
	}

	user, err := e.users.FindByEmail(ctx, base.Email)
	if err != nil {
		e.metrics.RecordEnrichment(metrics.EnrichFault)
		e.metrics.RecordDirectoryFault(metrics.StageEnrich)
		e.logger.Error("session enrichment failed, continuing without role",
			slog.String("email", model.NormalizeEmail(base.Email)),
			slog.Bool("directory_fault", errors.Is(err, directory.ErrDirectoryFault)),
			slog.String("error", err.Error()),
		)
		return base
	}
	if user == nil {
		e.metrics.RecordEnrichment(metrics.EnrichMiss)
		e.logger.Warn("no user record for session, continuing least-privileged",
			slog.String("email", model.NormalizeEmail(base.Email)),
		)
		return base
	}

	enriched := *base
	enriched.ID = user.ID
	enriched.Role = user.Role
	e.metrics.RecordEnrichment(metrics.EnrichHit)
	return &enriched
}
