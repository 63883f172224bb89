// Package metrics exposes prometheus collectors for the answer pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector records pipeline outcomes. A nil *Collector is valid and records
// nothing.
type Collector struct {
	agentCallsTotal     *prometheus.CounterVec
	agentCallDuration   *prometheus.HistogramVec
	llmCompletionsTotal *prometheus.CounterVec
	llmRetriesTotal     *prometheus.CounterVec
	judgeOutcomesTotal  *prometheus.CounterVec
	synthOutcomesTotal  *prometheus.CounterVec
	requestsTotal       *prometheus.CounterVec
	requestDuration     prometheus.Histogram
	hallucinationRisk   prometheus.Histogram
}

// NewCollector registers the collectors on reg. A nil reg uses the default
// registerer.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		agentCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retrieval_agent_calls_total",
				Help:      "Retrieval agent calls by outcome",
			},
			[]string{"agent", "status"},
		),
		agentCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "retrieval_agent_call_duration_seconds",
				Help:      "Retrieval agent call duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
			},
			[]string{"agent"},
		),
		llmCompletionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_completions_total",
				Help:      "Text completion calls by outcome",
			},
			[]string{"provider", "outcome"},
		),
		llmRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_retries_total",
				Help:      "Text completion retries",
			},
			[]string{"provider"},
		),
		judgeOutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "judge_outcomes_total",
				Help:      "Confidence judge outcomes",
			},
			[]string{"outcome"},
		),
		synthOutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "synthesis_outcomes_total",
				Help:      "Synthesis explain traces",
			},
			[]string{"explain_trace"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "answers_total",
				Help:      "Answered queries by domain source",
			},
			[]string{"domain_source"},
		),
		requestDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "answer_duration_seconds",
				Help:      "End-to-end answer latency in seconds",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
		),
		hallucinationRisk: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "hallucination_risk",
				Help:      "Distribution of hallucination risk scores",
				Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
			},
		),
	}
}

// RecordAgentCall records one retrieval agent outcome
func (c *Collector) RecordAgentCall(agent, status string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.agentCallsTotal.WithLabelValues(agent, status).Inc()
	c.agentCallDuration.WithLabelValues(agent).Observe(elapsed.Seconds())
}

// RecordCompletion records one text completion outcome ("ok" or "error")
func (c *Collector) RecordCompletion(provider, outcome string) {
	if c == nil {
		return
	}
	c.llmCompletionsTotal.WithLabelValues(provider, outcome).Inc()
}

// RecordRetry records one completion retry
func (c *Collector) RecordRetry(provider string) {
	if c == nil {
		return
	}
	c.llmRetriesTotal.WithLabelValues(provider).Inc()
}

// RecordJudge records a judge outcome
func (c *Collector) RecordJudge(outcome string) {
	if c == nil {
		return
	}
	c.judgeOutcomesTotal.WithLabelValues(outcome).Inc()
}

// RecordSynthesis records a synthesis explain trace
func (c *Collector) RecordSynthesis(trace string) {
	if c == nil {
		return
	}
	c.synthOutcomesTotal.WithLabelValues(trace).Inc()
}

// RecordAnswer records a completed answer
func (c *Collector) RecordAnswer(domainSource string, risk float64, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.requestsTotal.WithLabelValues(domainSource).Inc()
	c.requestDuration.Observe(elapsed.Seconds())
	c.hallucinationRisk.Observe(risk)
}
