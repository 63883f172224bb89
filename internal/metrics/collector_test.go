package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordsOnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("sagrag", reg)

	c.RecordAgentCall("vector", "ok", 120*time.Millisecond)
	c.RecordAgentCall("vector", "timeout", 12*time.Second)
	c.RecordAgentCall("lexical", "ok", 30*time.Millisecond)
	c.RecordCompletion("openai", "ok")
	c.RecordRetry("openai")
	c.RecordJudge("judge_non_json")
	c.RecordSynthesis("success")
	c.RecordAnswer("keyword", 0.4, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.agentCallsTotal.WithLabelValues("vector", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.llmRetriesTotal.WithLabelValues("openai")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.judgeOutcomesTotal.WithLabelValues("judge_non_json")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["sagrag_retrieval_agent_calls_total"])
	assert.True(t, names["sagrag_hallucination_risk"])
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordAgentCall("vector", "ok", time.Millisecond)
		c.RecordCompletion("openai", "error")
		c.RecordRetry("openai")
		c.RecordJudge("success")
		c.RecordSynthesis("success")
		c.RecordAnswer("unknown", 1, time.Second)
	})
}
