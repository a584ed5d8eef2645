package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"
)

type options struct {
	baseURL        string
	language       string
	turns          int
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	texts          []string
	verbose        bool
}

type synthesizeRequest struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

type voiceTurnResponse struct {
	RecognizedText string `json:"recognized_text"`
	ChatResponse   string `json:"chat_response"`
	AudioFormat    string `json:"audio_format"`
}

type turnResult struct {
	Utterance  string
	Recognized string
	Reply      string
	Latency    time.Duration
}

type summary struct {
	Turns int
	P50   time.Duration
	P95   time.Duration
	Max   time.Duration
}

var defaultUtterances = []string{
	"Book a flight to Lisbon.",
	"What is the weather like tomorrow?",
	"Tell me a short joke.",
	"Thank you, goodbye.",
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfvoice: %v\n", err)
		os.Exit(2)
	}
	results, err := run(context.Background(), &http.Client{Timeout: cfg.turnTimeout}, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfvoice: %v\n", err)
		os.Exit(1)
	}
	s := summarize(results)
	fmt.Printf("perfvoice: turns=%d p50=%s p95=%s max=%s\n", s.Turns, s.P50, s.P95, s.Max)
}

func parseFlags(args []string) (options, error) {
	var cfg options
	var textsRaw string
	var interTurnMS int
	var turnTimeoutMS int

	fs := flag.NewFlagSet("perfvoice", flag.ContinueOnError)
	fs.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "voicechat base URL")
	fs.StringVar(&cfg.language, "language", "", "language tag for the synthesized utterances (server default when empty)")
	fs.IntVar(&cfg.turns, "turns", 10, "number of voice turns to replay")
	fs.IntVar(&interTurnMS, "inter-turn-ms", 180, "delay between turns in milliseconds")
	fs.IntVar(&turnTimeoutMS, "turn-timeout-ms", 30000, "per-request timeout in milliseconds")
	fs.StringVar(&textsRaw, "texts", "", "utterances separated by '|' (optional)")
	fs.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if interTurnMS < 0 {
		interTurnMS = 0
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	cfg.interTurnDelay = time.Duration(interTurnMS) * time.Millisecond
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond

	if strings.TrimSpace(textsRaw) == "" {
		cfg.texts = append([]string(nil), defaultUtterances...)
	} else {
		for _, part := range strings.Split(textsRaw, "|") {
			if t := strings.TrimSpace(part); t != "" {
				cfg.texts = append(cfg.texts, t)
			}
		}
		if len(cfg.texts) == 0 {
			return options{}, fmt.Errorf("texts produced no non-empty utterances")
		}
	}
	return cfg, nil
}

// run synthesizes each utterance once through the server, then replays the
// clips as voice turns and times every round trip.
func run(ctx context.Context, client *http.Client, cfg options) ([]turnResult, error) {
	clips := make([][]byte, len(cfg.texts))
	for i, text := range cfg.texts {
		clip, err := synthClip(ctx, client, cfg, text)
		if err != nil {
			return nil, fmt.Errorf("prepare utterance audio: %w", err)
		}
		clips[i] = clip
	}

	results := make([]turnResult, 0, cfg.turns)
	for i := 0; i < cfg.turns; i++ {
		if i > 0 && cfg.interTurnDelay > 0 {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-time.After(cfg.interTurnDelay):
			}
		}
		idx := i % len(clips)
		start := time.Now()
		out, err := voiceTurn(ctx, client, cfg.baseURL, clips[idx])
		if err != nil {
			return results, fmt.Errorf("turn %d: %w", i+1, err)
		}
		res := turnResult{
			Utterance:  cfg.texts[idx],
			Recognized: out.RecognizedText,
			Reply:      out.ChatResponse,
			Latency:    time.Since(start),
		}
		results = append(results, res)
		if cfg.verbose {
			fmt.Printf("perfvoice: turn=%d latency=%s heard=%q reply=%q\n", i+1, res.Latency.Round(time.Millisecond), res.Recognized, res.Reply)
		}
	}
	return results, nil
}

func synthClip(ctx context.Context, client *http.Client, cfg options, text string) ([]byte, error) {
	body, err := json.Marshal(synthesizeRequest{Text: text, Language: cfg.language})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/api/speech/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("synthesize status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

func voiceTurn(ctx context.Context, client *http.Client, baseURL string, clip []byte) (voiceTurnResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/voice/turn", bytes.NewReader(clip))
	if err != nil {
		return voiceTurnResponse{}, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := client.Do(req)
	if err != nil {
		return voiceTurnResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return voiceTurnResponse{}, fmt.Errorf("voice turn status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	var out voiceTurnResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return voiceTurnResponse{}, fmt.Errorf("decode voice turn: %w", err)
	}
	return out, nil
}

func summarize(results []turnResult) summary {
	if len(results) == 0 {
		return summary{}
	}
	latencies := make([]time.Duration, len(results))
	for i, r := range results {
		latencies[i] = r.Latency
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	return summary{
		Turns: len(latencies),
		P50:   percentile(latencies, 0.50),
		P95:   percentile(latencies, 0.95),
		Max:   latencies[len(latencies)-1],
	}
}

// percentile uses nearest rank on an ascending slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(p*float64(len(sorted)) + 0.999999)
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}
