// Package gate はサインイン時のアクセス判定とセッション読み出し時の拡充を束ねる。
//
// 状態遷移:
//
//	ClaimReceived → PolicyEvaluated → {Rejected | Provisioned} → SessionIssued → SessionEnriched(*)
//
// 拒否はポリシー評価で確定し、ディレクトリへの書き込みより必ず先に行われる。
// 許可後のディレクトリ障害はサインイン結果を覆さない（継続性はfail open、権限はfail closed）。
package gate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/stockgate/internal/access"
	"github.com/hitoshi/stockgate/internal/metrics"
	"github.com/hitoshi/stockgate/internal/model"
)

// State はサインイン試行の状態を表す。
type State string

const (
	StateClaimReceived   State = "claim_received"
	StatePolicyEvaluated State = "policy_evaluated"
	StateRejected        State = "rejected"
	StateProvisioned     State = "provisioned"
	StateSessionIssued   State = "session_issued"
	StateSessionEnriched State = "session_enriched"
)

// Provisioner は初回サインイン時のユーザー作成インターフェース。
type Provisioner interface {
	CreateIfAbsent(ctx context.Context, email, name, image string) (*model.User, bool, error)
}

// Enricher はセッション拡充のインターフェース。
type Enricher interface {
	Enrich(ctx context.Context, base *model.Session) *model.Session
}

// Config はゲートの設定。
type Config struct {
	SignInTimeout time.Duration // サインイン判定全体の上限時間。0以下で無制限
}

// Decision は1回のサインイン試行の判定結果。
type Decision struct {
	Accepted bool
	State    State
	Reason   error       // 拒否理由（model.ErrInvalidClaim / model.ErrPolicyRejected）
	User     *model.User // プロビジョニング結果。障害時はnil
	Created  bool        // 今回の試行でユーザーを作成したか
	Fault    error       // プロビジョニング中のディレクトリ障害
}

// Gate はサインインコールバックとセッションコールバックを提供する。
type Gate struct {
	policy      access.Source
	provisioner Provisioner
	enricher    Enricher
	config      Config
	logger      *slog.Logger
	metrics     metrics.Recorder
}

// New はGateを生成する。
func New(
	policy access.Source,
	provisioner Provisioner,
	enricher Enricher,
	config Config,
	logger *slog.Logger,
	rec metrics.Recorder,
) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Gate{
		policy:      policy,
		provisioner: provisioner,
		enricher:    enricher,
		config:      config,
		logger:      logger,
		metrics:     rec,
	}
}

// OnSignIn はサインイン可否を返す。trueの場合、呼び出し側がセッションを発行する。
// 拒否理由やディレクトリ障害は呼び出し側に伝播しない。
func (g *Gate) OnSignIn(ctx context.Context, claim model.Claim) bool {
	return g.Decide(ctx, claim).Accepted
}

// Decide はサインイン試行を評価し、詳細な判定結果を返す。
func (g *Gate) Decide(ctx context.Context, claim model.Claim) Decision {
	email := model.NormalizeEmail(claim.Email)
	g.logger.Debug("sign-in claim received",
		slog.String("state", string(StateClaimReceived)),
		slog.String("email", email),
	)

	// ポリシー評価時点の許可リストを読み直す
	if err := access.Evaluate(email, g.policy.AllowList()); err != nil {
		outcome := metrics.SignInPolicyRejected
		if errors.Is(err, model.ErrInvalidClaim) {
			outcome = metrics.SignInInvalidClaim
		}
		g.metrics.RecordSignIn(outcome)
		g.logger.Warn("sign-in rejected",
			slog.String("state", string(StateRejected)),
			slog.String("email", email),
			slog.String("reason", outcome),
		)
		return Decision{State: StateRejected, Reason: err}
	}

	g.metrics.RecordSignIn(metrics.SignInAccepted)

	if g.config.SignInTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.SignInTimeout)
		defer cancel()
	}

	user, created, err := g.provisioner.CreateIfAbsent(ctx, email, claim.Name, claim.Image)
	if err != nil {
		// ポリシーは通過済み: 障害を報告しつつサインインは継続する
		g.metrics.RecordDirectoryFault(metrics.StageProvision)
		g.logger.Error("user provisioning failed, sign-in continues",
			slog.String("state", string(StateProvisioned)),
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
		return Decision{Accepted: true, State: StateSessionIssued, Fault: err}
	}

	g.metrics.RecordProvisioned(created)
	g.logger.Info("sign-in accepted",
		slog.String("state", string(StateSessionIssued)),
		slog.String("email", email),
		slog.String("user_id", user.ID),
		slog.Bool("created", created),
	)
	return Decision{Accepted: true, State: StateSessionIssued, User: user, Created: created}
}

// OnSession はセッション読み出しのたびに呼ばれ、拡充済みセッションを返す。
// 拡充に失敗してもリクエストは失敗させない。
func (g *Gate) OnSession(ctx context.Context, s *model.Session) *model.Session {
	return g.enricher.Enrich(ctx, s)
}
