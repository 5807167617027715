package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	loads          *prometheus.CounterVec
	inferences     *prometheus.CounterVec
	faults         *prometheus.CounterVec
	promptTokens   prometheus.Counter
	generated      prometheus.Counter
	inferDuration  prometheus.Histogram
	lifecycleGauge prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when reg is
// non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llmhost",
			Subsystem: "engine",
			Name:      "loads_total",
			Help:      "Model load attempts by result",
		}, []string{"result"}),
		inferences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llmhost",
			Subsystem: "engine",
			Name:      "inferences_total",
			Help:      "Completed chat inferences by stop reason",
		}, []string{"stop"}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llmhost",
			Subsystem: "engine",
			Name:      "faults_total",
			Help:      "Native faults trapped by the fault barrier",
		}, []string{"signal"}),
		promptTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "llmhost",
			Subsystem: "engine",
			Name:      "prompt_tokens_total",
			Help:      "Prompt tokens evaluated",
		}),
		generated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "llmhost",
			Subsystem: "engine",
			Name:      "generated_tokens_total",
			Help:      "Tokens generated",
		}),
		inferDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "llmhost",
			Subsystem: "engine",
			Name:      "inference_duration_seconds",
			Help:      "Wall time of chat inferences",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		lifecycleGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "llmhost",
			Subsystem: "engine",
			Name:      "lifecycle",
			Help:      "Engine lifecycle: 0 unloaded, 1 loaded, 2 poisoned",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.loads, m.inferences, m.faults, m.promptTokens, m.generated, m.inferDuration, m.lifecycleGauge)
	}
	return m
}

func (m *Metrics) observeLoad(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = KindOf(err).String()
	}
	m.loads.WithLabelValues(result).Inc()
}

func (m *Metrics) observeInference(res Result, d time.Duration) {
	if m == nil {
		return
	}
	m.inferences.WithLabelValues(string(res.StopReason)).Inc()
	m.promptTokens.Add(float64(res.PromptTokens))
	m.generated.Add(float64(res.GeneratedTokens))
	m.inferDuration.Observe(d.Seconds())
}

func (m *Metrics) observeFault(signal string) {
	if m == nil {
		return
	}
	m.faults.WithLabelValues(signal).Inc()
}

func (m *Metrics) setLifecycle(l Lifecycle) {
	if m == nil {
		return
	}
	m.lifecycleGauge.Set(float64(l))
}
