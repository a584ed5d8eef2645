package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencySnapshot(t *testing.T) {
	m := NewMetrics("test")
	m.ObserveStage(StageCompletion, 500*time.Millisecond)
	m.ObserveStage(StageCompletion, 700*time.Millisecond)
	m.ObserveStage(StageCompletion, 900*time.Millisecond)
	m.ObserveChatReply("ok")
	m.ObserveChatReply("ok")

	snap := m.SnapshotLatency()
	require.Len(t, snap.Stages, 1)
	s := snap.Stages[0]
	assert.Equal(t, StageCompletion, s.Stage)
	assert.Equal(t, 3, s.Samples)
	assert.Equal(t, 900.0, s.LastMS)
	assert.Equal(t, 700.0, s.P50MS)
	assert.Equal(t, 900.0, s.MaxMS)
	assert.Equal(t, 2500.0, s.TargetP95MS)
	assert.Greater(t, s.P95MS, 700.0)

	require.Len(t, snap.Outcomes, 1)
	assert.Equal(t, OutcomeCount{Name: "chat_ok", Count: 2}, snap.Outcomes[0])
}

func TestLatencyWindowWraps(t *testing.T) {
	w := newLatencyWindow(2)
	w.observe(StageSynthesis, time.Second)
	w.observe(StageSynthesis, 2*time.Second)
	w.observe(StageSynthesis, 3*time.Second)

	snap := w.snapshot()
	require.Len(t, snap.Stages, 1)
	assert.Equal(t, 2, snap.Stages[0].Samples)
	assert.Equal(t, 2500.0, snap.Stages[0].AvgMS)
}

func TestLatencyWindowTracksPipelineStagesInOrder(t *testing.T) {
	w := newLatencyWindow(8)
	w.observe(StageVoiceTurn, 3*time.Second)
	w.observe("warmup", time.Second)
	w.observe(StageRecognition, 1500*time.Millisecond)
	w.observe(StageSynthesis, -time.Second)

	snap := w.snapshot()
	require.Len(t, snap.Stages, 2)
	assert.Equal(t, StageRecognition, snap.Stages[0].Stage)
	assert.Equal(t, 1500.0, snap.Stages[0].P95MS)
	assert.Equal(t, 10000.0, snap.Stages[0].TargetP95MS)
	assert.Equal(t, StageVoiceTurn, snap.Stages[1].Stage)
	assert.Equal(t, 8, snap.WindowSize)
	assert.Empty(t, snap.Outcomes)
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObserveStage(StageRecognition, time.Second)
	m.ObserveRecognition("timeout")
	m.SetConversationSize(3)
	assert.Empty(t, m.SnapshotLatency().Stages)
}

func TestHandlerExposesPrivateRegistry(t *testing.T) {
	a := NewMetrics("svc")
	b := NewMetrics("svc")
	a.ObserveRecognition("recognized")
	b.ObserveHTTPRequest("/api/chat", 404)

	bodyA := scrape(t, a)
	assert.True(t, strings.Contains(bodyA, `svc_recognition_outcomes_total{outcome="recognized"} 1`))
	assert.False(t, strings.Contains(bodyA, "svc_http_requests_total"))

	bodyB := scrape(t, b)
	assert.True(t, strings.Contains(bodyB, `svc_http_requests_total{route="/api/chat",status="4xx"} 1`))
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}
