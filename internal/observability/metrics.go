package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. Every method
// is safe on a nil receiver so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry
	window   *latencyWindow

	RecognitionOutcomes  *prometheus.CounterVec
	SynthesisOutcomes    *prometheus.CounterVec
	ChatReplies          *prometheus.CounterVec
	VoiceTurns           *prometheus.CounterVec
	ProviderErrors       *prometheus.CounterVec
	HTTPRequests         *prometheus.CounterVec
	StageLatency         *prometheus.HistogramVec
	ConversationMessages prometheus.Gauge
	ArchiveErrors        prometheus.Counter
}

// NewMetrics registers instruments on a private registry so several
// instances (tests, embedded servers) never collide.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		window:   newLatencyWindow(128),
		RecognitionOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_outcomes_total",
			Help:      "Speech recognition results by outcome.",
		}, []string{"outcome"}),
		SynthesisOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_outcomes_total",
			Help:      "Speech synthesis results by outcome.",
		}, []string{"outcome"}),
		ChatReplies: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_replies_total",
			Help:      "Assistant replies by outcome.",
		}, []string{"outcome"}),
		VoiceTurns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_turns_total",
			Help:      "Voice round trips by outcome.",
		}, []string{"outcome"}),
		ProviderErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider and code.",
		}, []string{"provider", "code"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status class.",
		}, []string{"route", "status"}),
		StageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_ms",
			Help:      "Latency of external calls and voice turns in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 12000},
		}, []string{"stage"}),
		ConversationMessages: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conversation_messages",
			Help:      "Messages currently held by the conversation store.",
		}),
		ArchiveErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_errors_total",
			Help:      "Failed transcript archive writes.",
		}),
	}
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageLatency.WithLabelValues(stage).Observe(float64(d.Milliseconds()))
	m.window.observe(stage, d)
}

func (m *Metrics) ObserveRecognition(outcome string) {
	if m == nil {
		return
	}
	m.RecognitionOutcomes.WithLabelValues(outcome).Inc()
	m.window.count("recognition_" + outcome)
}

func (m *Metrics) ObserveSynthesis(outcome string) {
	if m == nil {
		return
	}
	m.SynthesisOutcomes.WithLabelValues(outcome).Inc()
	m.window.count("synthesis_" + outcome)
}

func (m *Metrics) ObserveChatReply(outcome string) {
	if m == nil {
		return
	}
	m.ChatReplies.WithLabelValues(outcome).Inc()
	m.window.count("chat_" + outcome)
}

func (m *Metrics) ObserveVoiceTurn(outcome string) {
	if m == nil {
		return
	}
	m.VoiceTurns.WithLabelValues(outcome).Inc()
	m.window.count("voice_turn_" + outcome)
}

func (m *Metrics) ObserveProviderError(provider, code string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider, code).Inc()
}

func (m *Metrics) ObserveHTTPRequest(route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, statusClass(status)).Inc()
}

func (m *Metrics) SetConversationSize(n int) {
	if m == nil {
		return
	}
	m.ConversationMessages.Set(float64(n))
}

func (m *Metrics) ObserveArchiveError() {
	if m == nil {
		return
	}
	m.ArchiveErrors.Inc()
}

// SnapshotLatency returns rolling per-stage latency percentiles.
func (m *Metrics) SnapshotLatency() LatencySnapshot {
	if m == nil {
		return LatencySnapshot{GeneratedAt: time.Now().UTC(), Stages: []StageStats{}}
	}
	return m.window.snapshot()
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
