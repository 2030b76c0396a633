// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// サインイン判定の結果ラベル
const (
	SignInAccepted       = "accepted"
	SignInInvalidClaim   = "invalid_claim"
	SignInPolicyRejected = "policy_rejected"
)

// ディレクトリ障害の発生段階ラベル
const (
	StageProvision = "provision"
	StageEnrich    = "enrich"
)

// セッション拡充の結果ラベル
const (
	EnrichHit   = "hit"
	EnrichMiss  = "miss"
	EnrichFault = "fault"
	EnrichSkip  = "skip"
)

// Recorder はメトリクス収集のインターフェース。
// ゲートやセッション拡充から利用する。
type Recorder interface {
	RecordSignIn(outcome string)
	RecordProvisioned(created bool)
	RecordDirectoryFault(stage string)
	RecordEnrichment(outcome string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	signIn         *prometheus.CounterVec
	provisioned    *prometheus.CounterVec
	directoryFault *prometheus.CounterVec
	enrichment     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockgate_signin_total",
			Help: "サインイン判定の結果別件数",
		}, []string{"outcome"}),
		provisioned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockgate_provision_total",
			Help: "プロビジョニング結果（新規作成/既存）別件数",
		}, []string{"result"}),
		directoryFault: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockgate_directory_fault_total",
			Help: "ユーザーディレクトリ障害の段階別件数",
		}, []string{"stage"}),
		enrichment: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockgate_session_enrichment_total",
			Help: "セッション拡充の結果別件数",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		c.signIn,
		c.provisioned,
		c.directoryFault,
		c.enrichment,
	)

	return c
}

// RecordSignIn はサインイン判定の結果を記録する。
func (c *Collector) RecordSignIn(outcome string) {
	c.signIn.WithLabelValues(outcome).Inc()
}

// RecordProvisioned はプロビジョニング結果を記録する。
func (c *Collector) RecordProvisioned(created bool) {
	result := "existing"
	if created {
		result = "created"
	}
	c.provisioned.WithLabelValues(result).Inc()
}

// RecordDirectoryFault はディレクトリ障害を記録する。
func (c *Collector) RecordDirectoryFault(stage string) {
	c.directoryFault.WithLabelValues(stage).Inc()
}

// RecordEnrichment はセッション拡充の結果を記録する。
func (c *Collector) RecordEnrichment(outcome string) {
	c.enrichment.WithLabelValues(outcome).Inc()
}

// Nop は何も記録しないRecorder。
type Nop struct{}

func (Nop) RecordSignIn(string)         {}
func (Nop) RecordProvisioned(bool)      {}
func (Nop) RecordDirectoryFault(string) {}
func (Nop) RecordEnrichment(string)     {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)
