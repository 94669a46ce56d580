package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getCounterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, counter.Write(metric))
	return metric.GetCounter().GetValue()
}

func getGaugeValue(t *testing.T, gauge prometheus.Gauge) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, gauge.Write(metric))
	return metric.GetGauge().GetValue()
}

func TestRecordState_OneHot(t *testing.T) {
	RecordState("built", "playing")
	RecordState("playing", "paused")

	for _, s := range States {
		want := 0.0
		if s == "paused" {
			want = 1
		}
		assert.Equal(t, want, getGaugeValue(t, pipelineState.WithLabelValues(s)), s)
	}

	assert.GreaterOrEqual(t, getCounterValue(t, stateTransitions.WithLabelValues("playing", "paused")), 1.0)
}

func TestFrameCounters(t *testing.T) {
	before := getCounterValue(t, framesPublished)
	for i := 0; i < 3; i++ {
		IncFramePublished()
	}
	assert.Equal(t, before+3, getCounterValue(t, framesPublished))

	gated := getCounterValue(t, framesGated)
	IncFrameGated()
	assert.Equal(t, gated+1, getCounterValue(t, framesGated))
}

func TestLabelDefaults(t *testing.T) {
	before := getCounterValue(t, renderSkipped.WithLabelValues("unknown"))
	IncRenderSkipped("")
	assert.Equal(t, before+1, getCounterValue(t, renderSkipped.WithLabelValues("unknown")))

	before = getCounterValue(t, streamErrors.WithLabelValues("warning", "unknown"))
	IncStreamError("warning", "")
	assert.Equal(t, before+1, getCounterValue(t, streamErrors.WithLabelValues("warning", "unknown")))
}
