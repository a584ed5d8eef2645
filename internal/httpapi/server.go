package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ent0n29/voicechat/internal/config"
	"github.com/ent0n29/voicechat/internal/conversation"
	"github.com/ent0n29/voicechat/internal/logging"
	"github.com/ent0n29/voicechat/internal/observability"
	"github.com/ent0n29/voicechat/internal/speech"
	"github.com/ent0n29/voicechat/internal/voiceturn"
)

const maxAudioBytes = 10 << 20

type Chat interface {
	Reply(ctx context.Context, userMessage string) string
	ClearHistory()
	History() []conversation.Message
}

type Speech interface {
	Recognize(ctx context.Context, src speech.AudioSource) speech.Recognition
	TextToSpeech(ctx context.Context, text, tag string) (speech.Synthesis, error)
	SetLanguage(tag string) bool
	CurrentLanguage() string
	Languages() map[string]string
}

type VoiceTurns interface {
	Run(ctx context.Context, src *speech.AudioSource) (voiceturn.Result, error)
}

type Server struct {
	cfg     config.Config
	chat    Chat
	speech  Speech
	turns   VoiceTurns
	metrics *observability.Metrics
	logger  *slog.Logger
}

func New(cfg config.Config, chat Chat, sp Speech, turns VoiceTurns, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		chat:    chat,
		speech:  sp,
		turns:   turns,
		metrics: metrics,
		logger:  logging.Component("httpapi"),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if s.cfg.AllowAnyOrigin {
		r.Use(allowAnyOrigin)
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			http.NotFound(w, r)
			return
		}
		s.metrics.Handler().ServeHTTP(w, r)
	})
	r.Get("/api/perf/latency", s.handlePerfLatency)

	r.Post("/api/chat", s.handleChat)
	r.Get("/api/chat/history", s.handleHistory)
	r.Post("/api/chat/clear", s.handleClear)
	r.Post("/api/voice/turn", s.handleVoiceTurn)
	r.Post("/api/speech/synthesize", s.handleSynthesize)
	r.Post("/api/speech/recognize", s.handleRecognize)
	r.Get("/api/speech/languages", s.handleLanguages)
	r.Post("/api/speech/language", s.handleSetLanguage)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":              "ready",
		"speech_provider":     s.cfg.SpeechProvider,
		"completion_provider": s.cfg.CompletionProvider,
		"archive":             s.cfg.ArchiveKind,
		"language":            s.speech.CurrentLanguage(),
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			s.metrics.ObserveHTTPRequest(route, status)
			s.logger.Debug("http request",
				"method", r.Method,
				"route", route,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

func allowAnyOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondInternal logs err and answers with a generic 500.
func (s *Server) respondInternal(w http.ResponseWriter, r *http.Request, code string, err error) {
	s.logger.Error("request failed",
		"path", r.URL.Path,
		"code", code,
		"request_id", middleware.GetReqID(r.Context()),
		"error", err,
	)
	respondError(w, http.StatusInternalServerError, code, "internal server error")
}
