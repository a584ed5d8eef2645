// Package chat turns a user message into an assistant reply using the
// conversation history and a completion endpoint.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/voicechat/internal/completion"
	"github.com/ent0n29/voicechat/internal/conversation"
	"github.com/ent0n29/voicechat/internal/logging"
	"github.com/ent0n29/voicechat/internal/observability"
	"github.com/ent0n29/voicechat/internal/policy"
)

// Replies recorded when the completion endpoint does not deliver one.
const (
	FallbackNoResponse = "I'm sorry, I couldn't come up with a response."
	FallbackTrouble    = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."
)

const DefaultSystemPrompt = "You are a friendly voice assistant. Keep answers short, clear and conversational, " +
	"since they will be read aloud."

var ErrEmptyMessage = errors.New("message must not be empty")

// ValidateMessage rejects empty or whitespace-only input.
func ValidateMessage(msg string) error {
	if strings.TrimSpace(msg) == "" {
		return ErrEmptyMessage
	}
	return nil
}

type Config struct {
	SystemPrompt  string
	Model         string
	MaxTokens     int
	Temperature   float64
	ContextWindow int
	Timeout       time.Duration
}

func DefaultConfig() Config {
	return Config{
		SystemPrompt:  DefaultSystemPrompt,
		MaxTokens:     150,
		Temperature:   0.7,
		ContextWindow: 10,
		Timeout:       30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if strings.TrimSpace(c.SystemPrompt) == "" {
		c.SystemPrompt = d.SystemPrompt
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.Temperature <= 0 {
		c.Temperature = d.Temperature
	}
	if c.ContextWindow <= 0 {
		c.ContextWindow = d.ContextWindow
	}
	return c
}

const archiveTimeout = 5 * time.Second

type Orchestrator struct {
	store     *conversation.Store
	completer completion.Completer
	cfg       Config
	archive   conversation.Archive
	logger    *slog.Logger
	metrics   *observability.Metrics

	turnMu    sync.Mutex
	sessionMu sync.RWMutex
	sessionID string
}

type Option func(*Orchestrator)

// WithArchive mirrors every appended message to a.
func WithArchive(a conversation.Archive) Option {
	return func(o *Orchestrator) {
		if a != nil {
			o.archive = a
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithSessionID(id string) Option {
	return func(o *Orchestrator) {
		if strings.TrimSpace(id) != "" {
			o.sessionID = id
		}
	}
}

func New(store *conversation.Store, completer completion.Completer, cfg Config, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("chat orchestrator requires a conversation store")
	}
	if completer == nil {
		return nil, errors.New("chat orchestrator requires a completer")
	}
	o := &Orchestrator{
		store:     store,
		completer: completer,
		cfg:       cfg.withDefaults(),
		archive:   conversation.NoopArchive{},
		logger:    logging.Component("chat"),
		sessionID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Reply records userMessage, asks the completer for an answer using the
// system prompt and the recent context window, records the answer and
// returns it. It always returns a reply; endpoint failures become one of
// the fallback replies.
func (o *Orchestrator) Reply(ctx context.Context, userMessage string) string {
	o.turnMu.Lock()
	defer o.turnMu.Unlock()

	userMsg := o.store.Append(conversation.RoleUser, userMessage)
	o.archiveMessage(ctx, userMsg)

	req := completion.Request{
		Model:       o.cfg.Model,
		Messages:    o.buildMessages(o.store.RecentWindow(o.cfg.ContextWindow)),
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: o.cfg.Temperature,
	}

	cctx := ctx
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := o.completer.Complete(cctx, req)
	o.metrics.ObserveStage(observability.StageCompletion, time.Since(start))

	reply, outcome := o.resolve(resp, err)
	o.metrics.ObserveChatReply(outcome)

	assistantMsg := o.store.Append(conversation.RoleAssistant, reply)
	o.archiveMessage(ctx, assistantMsg)
	o.metrics.SetConversationSize(o.store.Len())

	o.logger.Info("chat reply",
		"outcome", outcome,
		"context_messages", len(req.Messages)-1,
		"latency_ms", time.Since(start).Milliseconds(),
		"reply", policy.LogSafe(reply, 80),
	)
	return reply
}

func (o *Orchestrator) resolve(resp completion.Response, err error) (string, string) {
	if err != nil {
		if errors.Is(err, completion.ErrUnparseableResponse) {
			o.logger.Warn("completion response unparseable", "error", err)
			return FallbackNoResponse, "fallback"
		}
		o.logger.Error("completion failed", "error", err)
		var apiErr *completion.APIError
		if errors.As(err, &apiErr) {
			o.metrics.ObserveProviderError(apiErr.Provider, apiErr.Code)
		}
		return FallbackTrouble, "error"
	}
	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return FallbackNoResponse, "fallback"
	}
	return content, "ok"
}

func (o *Orchestrator) buildMessages(window []conversation.Message) []completion.Message {
	out := make([]completion.Message, 0, len(window)+1)
	out = append(out, completion.Message{Role: completion.RoleSystem, Content: o.cfg.SystemPrompt})
	for _, m := range window {
		role := completion.RoleUser
		if m.Role == conversation.RoleAssistant {
			role = completion.RoleAssistant
		}
		out = append(out, completion.Message{Role: role, Content: m.Content})
	}
	return out
}

func (o *Orchestrator) archiveMessage(ctx context.Context, msg conversation.Message) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()
	if err := o.archive.ArchiveMessage(actx, o.SessionID(), msg); err != nil {
		o.metrics.ObserveArchiveError()
		o.logger.Warn("archive message failed", "message_id", msg.ID, "error", err)
	}
}

// ClearHistory empties the conversation and starts a new archive session.
func (o *Orchestrator) ClearHistory() {
	o.turnMu.Lock()
	defer o.turnMu.Unlock()
	o.store.Clear()
	o.sessionMu.Lock()
	o.sessionID = uuid.NewString()
	o.sessionMu.Unlock()
	o.metrics.SetConversationSize(0)
	o.logger.Info("conversation cleared")
}

func (o *Orchestrator) History() []conversation.Message {
	return o.store.All()
}

func (o *Orchestrator) SessionID() string {
	o.sessionMu.RLock()
	defer o.sessionMu.RUnlock()
	return o.sessionID
}
