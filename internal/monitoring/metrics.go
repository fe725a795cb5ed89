// Package monitoring exposes pipeline metrics and run statistics.
package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/reel-importer/internal/model"
)

const namespace = "reel"

// Metrics holds the importer's prometheus collectors.
type Metrics struct {
	Candidates     *prometheus.CounterVec
	PriceDecisions *prometheus.CounterVec
	EncodeAttempts prometheus.Counter
	Clips          *prometheus.CounterVec
	Uploads        *prometheus.CounterVec
	RunDuration    prometheus.Histogram

	gatherer prometheus.Gatherer
}

// NewMetrics creates the collectors and registers them on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_total",
			Help:      "Candidates by final state.",
		}, []string{"state"}),
		PriceDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_decisions_total",
			Help:      "Pricing decisions by rule branch.",
		}, []string{"branch"}),
		EncodeAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encode_attempts_total",
			Help:      "GIF encodes run during the size search.",
		}),
		Clips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clips_total",
			Help:      "Clips produced, split by whether they exceed the size cap.",
		}, []string{"best_effort"}),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Asset uploads by result.",
		}, []string{"result"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of import runs.",
			Buckets:   []float64{30, 60, 120, 300, 600, 1200, 1800, 3600, 7200},
		}),
		gatherer: reg,
	}
	reg.MustRegister(m.Candidates, m.PriceDecisions, m.EncodeAttempts, m.Clips, m.Uploads, m.RunDuration)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Candidate counts a candidate's final state.
func (m *Metrics) Candidate(state model.CandidateState) {
	m.Candidates.WithLabelValues(string(state)).Inc()
}

// Decision counts a pricing decision.
func (m *Metrics) Decision(d model.PriceDecision) {
	m.PriceDecisions.WithLabelValues(string(d.Branch)).Inc()
}

// Encode counts one encode attempt.
func (m *Metrics) Encode() {
	m.EncodeAttempts.Inc()
}

// Clip counts a produced clip.
func (m *Metrics) Clip(c model.EncodedClip) {
	m.Clips.WithLabelValues(strconv.FormatBool(c.BestEffort)).Inc()
}

// Upload counts an upload result.
func (m *Metrics) Upload(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Uploads.WithLabelValues(result).Inc()
}

// Run observes a finished run's duration.
func (m *Metrics) Run(d time.Duration) {
	m.RunDuration.Observe(d.Seconds())
}
