package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/ent0n29/voicechat/internal/audio"
	"github.com/ent0n29/voicechat/internal/speech"
)

type synthesizeRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type recognizeResponse struct {
	Text     string         `json:"text"`
	Outcome  speech.Outcome `json:"outcome"`
	Language string         `json:"language"`
}

type languagesResponse struct {
	Current   string            `json:"current"`
	Languages map[string]string `json:"languages"`
}

type setLanguageRequest struct {
	Language string `json:"language"`
}

type setLanguageResponse struct {
	Current  string `json:"current"`
	Accepted bool   `json:"accepted"`
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "text must not be empty")
		return
	}

	out, err := s.speech.TextToSpeech(r.Context(), req.Text, req.Language)
	if err != nil {
		s.respondInternal(w, r, "synthesis_failed", err)
		return
	}
	w.Header().Set("Content-Type", speech.ContentType(out.Format))
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Audio)))
	w.Header().Set("X-Speech-Language", out.Language)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Audio)
}

func (s *Server) handleRecognize(w http.ResponseWriter, r *http.Request) {
	data, err := readAudio(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if len(data) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "audio must not be empty")
		return
	}

	res := s.speech.Recognize(r.Context(), speech.FromBuffer(data))
	respondJSON(w, http.StatusOK, recognizeResponse{
		Text:     res.Text,
		Outcome:  res.Outcome,
		Language: s.speech.CurrentLanguage(),
	})
}

func (s *Server) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, languagesResponse{
		Current:   s.speech.CurrentLanguage(),
		Languages: s.speech.Languages(),
	})
}

func (s *Server) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	var req setLanguageRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	if strings.TrimSpace(req.Language) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "language must not be empty")
		return
	}
	accepted := s.speech.SetLanguage(req.Language)
	respondJSON(w, http.StatusOK, setLanguageResponse{
		Current:  s.speech.CurrentLanguage(),
		Accepted: accepted,
	})
}

// readAudio returns the uploaded audio, either the raw body or the "audio"
// (or "file") part of a multipart form. Accepted payloads are WAV (PCM16) and
// raw PCM16LE mono at 16 kHz; compressed containers such as webm or ogg are
// rejected.
func readAudio(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := readAudioBody(w, r)
	if err != nil {
		return nil, err
	}
	if err := audio.CheckUpload(data); err != nil {
		return nil, err
	}
	return data, nil
}

func readAudioBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes)
	defer r.Body.Close()

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read audio: %w", err)
		}
		return data, nil
	}

	if err := r.ParseMultipartForm(maxAudioBytes); err != nil {
		return nil, fmt.Errorf("parse multipart form: %w", err)
	}
	for _, field := range []string{"audio", "file"} {
		f, _, err := r.FormFile(field)
		if err != nil {
			continue
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s part: %w", field, err)
		}
		return data, nil
	}
	return nil, nil
}
