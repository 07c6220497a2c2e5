package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "compliance_evaluations_total",
		Help: "Eligibility evaluations by resulting application status",
	}, []string{"status"})

	gateChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "compliance_gate_checks_total",
		Help: "Eligibility gate checks by outcome",
	}, []string{"outcome"}) // outcome: "allowed", "not_approved", "expired", "badge_hidden", "error"

	documentReviewsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "compliance_document_reviews_total",
		Help: "Reviewer decisions applied to compliance documents",
	}, []string{"decision"})

	rateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_rate_limited_total",
		Help: "Requests rejected by the rate limiter by route group",
	}, []string{"group"})

	evaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "compliance_evaluation_duration_seconds",
		Help:    "Duration of a full eligibility evaluation inside its transaction",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})
)

// IncEvaluation counts an evaluation that produced status.
func IncEvaluation(status string) {
	evaluationsTotal.WithLabelValues(status).Inc()
}

// IncGateCheck counts an eligibility gate outcome.
func IncGateCheck(outcome string) {
	gateChecksTotal.WithLabelValues(outcome).Inc()
}

// IncDocumentReview counts an applied reviewer decision.
func IncDocumentReview(decision string) {
	documentReviewsTotal.WithLabelValues(decision).Inc()
}

// IncRateLimited counts a request rejected by the rate limiter.
func IncRateLimited(group string) {
	rateLimitedTotal.WithLabelValues(group).Inc()
}

// ObserveEvaluationDuration records how long an evaluation took.
func ObserveEvaluationDuration(d time.Duration) {
	if d < 0 {
		d = 0
	}
	evaluationDuration.Observe(d.Seconds())
}

// Handler exposes the default registry in Prometheus text format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
