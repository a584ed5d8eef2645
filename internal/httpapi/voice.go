package httpapi

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/ent0n29/voicechat/internal/speech"
	"github.com/ent0n29/voicechat/internal/voiceturn"
)

type voiceTurnResponse struct {
	RecognizedText string `json:"recognized_text"`
	ChatResponse   string `json:"chat_response"`
	AudioBase64    string `json:"audio_base64"`
	AudioFormat    string `json:"audio_format"`
	Language       string `json:"language,omitempty"`
}

// handleVoiceTurn runs one round trip. An audio body is used as the
// utterance; without one the server's default microphone is used.
func (s *Server) handleVoiceTurn(w http.ResponseWriter, r *http.Request) {
	data, err := readAudio(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	var src *speech.AudioSource
	if len(data) > 0 {
		buf := speech.FromBuffer(data)
		src = &buf
	}

	res, err := s.turns.Run(r.Context(), src)
	if err != nil {
		var synthErr *speech.SynthesisError
		switch {
		case errors.Is(err, voiceturn.ErrRecognitionEmpty):
			respondError(w, http.StatusUnprocessableEntity, "no_speech", "no speech was recognized")
		case errors.As(err, &synthErr):
			s.respondInternal(w, r, "synthesis_failed", err)
		default:
			s.respondInternal(w, r, "internal_error", err)
		}
		return
	}

	respondJSON(w, http.StatusOK, voiceTurnResponse{
		RecognizedText: res.RecognizedText,
		ChatResponse:   res.ChatResponse,
		AudioBase64:    base64.StdEncoding.EncodeToString(res.Audio),
		AudioFormat:    res.AudioFormat,
		Language:       res.Language,
	})
}
