package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TokensIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_tokens_issued_total",
		Help: "Tokens issued, by token type",
	}, []string{"type"})

	TokenValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_token_validations_total",
		Help: "Token validations, by kind and result",
	}, []string{"kind", "result"})

	TokensRevoked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timeline_tokens_revoked_total",
		Help: "Tokens explicitly revoked",
	})

	AuthGate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_auth_gate_total",
		Help: "Authentication gate outcomes",
	}, []string{"outcome"})

	RateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_ratelimit_rejections_total",
		Help: "Requests rejected by the rate limiter",
	}, []string{"operation", "scope"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
