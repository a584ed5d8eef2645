package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestParseFlagsDefaultsAndTexts(t *testing.T) {
	cfg, err := parseFlags(nil)
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if len(cfg.texts) != len(defaultUtterances) {
		t.Fatalf("texts = %d, want %d", len(cfg.texts), len(defaultUtterances))
	}

	cfg, err = parseFlags([]string{"-texts", " hello | | bye ", "-turns", "3", "-base-url", "http://x/"})
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if len(cfg.texts) != 2 || cfg.texts[0] != "hello" || cfg.texts[1] != "bye" {
		t.Fatalf("texts = %q", cfg.texts)
	}
	if cfg.baseURL != "http://x" {
		t.Fatalf("baseURL = %q", cfg.baseURL)
	}

	if _, err := parseFlags([]string{"-turns", "0"}); err == nil {
		t.Fatalf("expected error for zero turns")
	}
	if _, err := parseFlags([]string{"-texts", " | "}); err == nil {
		t.Fatalf("expected error for blank texts")
	}
}

func TestRunReplaysSynthesizedClips(t *testing.T) {
	var turns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/speech/synthesize":
			var req synthesizeRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			_, _ = w.Write([]byte("clip:" + req.Text))
		case "/api/voice/turn":
			turns.Add(1)
			clip, _ := io.ReadAll(r.Body)
			_ = json.NewEncoder(w).Encode(voiceTurnResponse{
				RecognizedText: string(clip),
				ChatResponse:   "ok",
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := options{baseURL: srv.URL, turns: 3, texts: []string{"one", "two"}}
	results, err := run(context.Background(), srv.Client(), cfg)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if turns.Load() != 3 || len(results) != 3 {
		t.Fatalf("turns = %d results = %d, want 3", turns.Load(), len(results))
	}
	if results[2].Recognized != "clip:one" {
		t.Fatalf("third turn heard %q, want clip:one", results[2].Recognized)
	}
}

func TestRunReportsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/voice/turn" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"code":"no_speech"}`))
			return
		}
		_, _ = w.Write([]byte("clip"))
	}))
	defer srv.Close()

	_, err := run(context.Background(), srv.Client(), options{baseURL: srv.URL, turns: 1, texts: []string{"x"}})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestSummarize(t *testing.T) {
	var results []turnResult
	for i := 1; i <= 20; i++ {
		results = append(results, turnResult{Latency: time.Duration(i) * time.Millisecond})
	}
	s := summarize(results)
	if s.Turns != 20 || s.P50 != 10*time.Millisecond || s.P95 != 19*time.Millisecond || s.Max != 20*time.Millisecond {
		t.Fatalf("summary = %+v", s)
	}
	if (summarize(nil) != summary{}) {
		t.Fatalf("empty summary should be zero")
	}
}
