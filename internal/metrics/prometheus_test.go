package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveStage("stt", time.Second, errors.New("x"))
	m.ObserveFrame(10)
	m.ObserveSegment("ready")
	m.ObserveDelivery("binary", 1, 1)
	m.SetSessions(3)
}

func TestObserveStageCountsErrors(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveStage("mt", 10*time.Millisecond, nil)
	m.ObserveStage("mt", 10*time.Millisecond, errors.New("boom"))
	require.Equal(t, 1.0, testutil.ToFloat64(m.StageErrors.WithLabelValues("mt")))

	m.ObserveFrame(320)
	m.ObserveFrame(320)
	require.Equal(t, 2.0, testutil.ToFloat64(m.FramesReceived))
	require.Equal(t, 640.0, testutil.ToFloat64(m.BytesReceived))

	m.ObserveDelivery("text", 3, 1)
	require.Equal(t, 3.0, testutil.ToFloat64(m.FramesSent.WithLabelValues("text")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.FramesDropped))
}
