package httpapi

import (
	"net/http"

	"github.com/ent0n29/voicechat/internal/observability"
)

type perfResponse struct {
	observability.LatencySnapshot
	SpeechProvider     string `json:"speech_provider"`
	CompletionProvider string `json:"completion_provider"`
}

// handlePerfLatency reports rolling per-stage latency and outcome counters.
func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	out := perfResponse{
		SpeechProvider:     s.cfg.SpeechProvider,
		CompletionProvider: s.cfg.CompletionProvider,
	}
	if s.metrics != nil {
		out.LatencySnapshot = s.metrics.SnapshotLatency()
	}
	if out.Stages == nil {
		out.Stages = []observability.StageStats{}
	}
	respondJSON(w, http.StatusOK, out)
}
