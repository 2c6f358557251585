package metrics

import "github.com/prometheus/client_golang/prometheus"

// AssistantMetrics exposes counters/histograms for conversation turns, demo
// sequences and speech synthesis.
type AssistantMetrics struct {
	turnsTotal     *prometheus.CounterVec
	demosTotal     *prometheus.CounterVec
	speechTotal    *prometheus.CounterVec
	speechLatency  *prometheus.HistogramVec
	noticesTotal   *prometheus.CounterVec
	activeSessions prometheus.Gauge
}

func NewAssistantMetrics(reg prometheus.Registerer) *AssistantMetrics {
	m := &AssistantMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "demo_assistant",
			Name:      "turns_total",
			Help:      "Assistant replies appended, by how the reply was matched",
		}, []string{"kind"}),
		demosTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "demo_assistant",
			Name:      "demo_sequences_total",
			Help:      "Highlight sequences by outcome",
		}, []string{"outcome"}),
		speechTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "demo_assistant",
			Name:      "speech_requests_total",
			Help:      "Speech synthesis requests by outcome",
		}, []string{"outcome"}),
		speechLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "demo_assistant",
			Name:      "speech_latency_seconds",
			Help:      "Latency of speech synthesis requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		noticesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "demo_assistant",
			Name:      "notices_total",
			Help:      "User-visible notices raised by sessions",
		}, []string{"kind"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "demo_assistant",
			Name:      "active_sessions",
			Help:      "Conversation sessions currently open",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.demosTotal, m.speechTotal, m.speechLatency, m.noticesTotal, m.activeSessions)
	return m
}

func (m *AssistantMetrics) ObserveTurn(kind string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(kind).Inc()
}

// ObserveDemo records a sequence outcome: started, completed, cancelled or empty.
func (m *AssistantMetrics) ObserveDemo(outcome string) {
	if m == nil {
		return
	}
	m.demosTotal.WithLabelValues(outcome).Inc()
}

func (m *AssistantMetrics) ObserveSpeech(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.speechTotal.WithLabelValues(outcome).Inc()
	m.speechLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *AssistantMetrics) ObserveNotice(kind string) {
	if m == nil {
		return
	}
	m.noticesTotal.WithLabelValues(kind).Inc()
}

func (m *AssistantMetrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *AssistantMetrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}
