package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the grant engine. A nil *Metrics
// is valid and records nothing, so tests can skip registration entirely.
type Metrics struct {
	CodesIssued      prometheus.Counter
	CodesRedeemed    prometheus.Counter
	TokensIssued     *prometheus.CounterVec
	ReplaysDetected  *prometheus.CounterVec
	TokensRevoked    prometheus.Counter
	GrantFailures    *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics. Call once per process.
func New() *Metrics {
	return &Metrics{
		CodesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "grantor_authorization_codes_issued_total",
			Help: "Total number of authorization codes issued",
		}),
		CodesRedeemed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "grantor_authorization_codes_redeemed_total",
			Help: "Total number of authorization codes successfully redeemed",
		}),
		TokensIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "grantor_tokens_issued_total",
			Help: "Total number of access tokens issued, by grant type",
		}, []string{"grant_type"}),
		ReplaysDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "grantor_replays_detected_total",
			Help: "Total number of code replays and refresh token reuses detected",
		}, []string{"kind"}),
		TokensRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "grantor_tokens_revoked_total",
			Help: "Total number of tokens revoked via the revocation endpoint",
		}),
		GrantFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "grantor_grant_failures_total",
			Help: "Total number of failed grant executions, by oauth error code",
		}, []string{"error_code"}),
	}
}

func (m *Metrics) IncCodesIssued() {
	if m == nil {
		return
	}
	m.CodesIssued.Inc()
}

func (m *Metrics) IncCodesRedeemed() {
	if m == nil {
		return
	}
	m.CodesRedeemed.Inc()
}

func (m *Metrics) IncTokensIssued(grantType string) {
	if m == nil {
		return
	}
	m.TokensIssued.WithLabelValues(grantType).Inc()
}

func (m *Metrics) IncReplaysDetected(kind string) {
	if m == nil {
		return
	}
	m.ReplaysDetected.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncTokensRevoked() {
	if m == nil {
		return
	}
	m.TokensRevoked.Inc()
}

func (m *Metrics) IncGrantFailures(errorCode string) {
	if m == nil {
		return
	}
	m.GrantFailures.WithLabelValues(errorCode).Inc()
}
