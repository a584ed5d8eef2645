package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/voicechat/internal/completion"
	"github.com/ent0n29/voicechat/internal/conversation"
	"github.com/ent0n29/voicechat/internal/logging"
)

type scriptedCompleter struct {
	reply string
	err   error

	mu       sync.Mutex
	requests []completion.Request
}

func (c *scriptedCompleter) Complete(_ context.Context, req completion.Request) (completion.Response, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()
	if c.err != nil {
		return completion.Response{}, c.err
	}
	return completion.Response{Content: c.reply}, nil
}

type memoryArchive struct {
	mu       sync.Mutex
	sessions []string
	messages []conversation.Message
	err      error
}

func (a *memoryArchive) ArchiveMessage(_ context.Context, sessionID string, msg conversation.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions = append(a.sessions, sessionID)
	a.messages = append(a.messages, msg)
	return a.err
}

func (a *memoryArchive) Close() error { return nil }

func newOrchestrator(t *testing.T, c completion.Completer, opts ...Option) (*Orchestrator, *conversation.Store) {
	t.Helper()
	store := conversation.NewStore()
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	o, err := New(store, c, Config{SystemPrompt: "be brief"}, opts...)
	require.NoError(t, err)
	return o, store
}

func TestReplySuccessAppendsBothMessages(t *testing.T) {
	c := &scriptedCompleter{reply: "Sure, where to?"}
	o, store := newOrchestrator(t, c)

	assert.Equal(t, "Sure, where to?", o.Reply(context.Background(), "book a flight"))

	history := store.All()
	require.Len(t, history, 2)
	assert.Equal(t, conversation.RoleUser, history[0].Role)
	assert.Equal(t, "book a flight", history[0].Content)
	assert.Equal(t, conversation.RoleAssistant, history[1].Role)
	assert.Equal(t, "Sure, where to?", history[1].Content)

	require.Len(t, c.requests, 1)
	req := c.requests[0]
	assert.Equal(t, 150, req.MaxTokens)
	assert.Equal(t, 0.7, req.Temperature)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, completion.Message{Role: completion.RoleSystem, Content: "be brief"}, req.Messages[0])
	assert.Equal(t, completion.Message{Role: completion.RoleUser, Content: "book a flight"}, req.Messages[1])
}

func TestReplySendsOnlyRecentWindow(t *testing.T) {
	c := &scriptedCompleter{reply: "ok"}
	o, store := newOrchestrator(t, c)

	for i := 0; i < 6; i++ {
		o.Reply(context.Background(), fmt.Sprintf("message %d", i))
	}
	assert.Equal(t, 12, store.Len())

	last := c.requests[len(c.requests)-1]
	require.Len(t, last.Messages, 11)
	assert.Equal(t, completion.RoleSystem, last.Messages[0].Role)
	assert.Equal(t, completion.Message{Role: completion.RoleAssistant, Content: "ok"}, last.Messages[1])
	assert.Equal(t, "message 1", last.Messages[2].Content)
	assert.Equal(t, "message 5", last.Messages[10].Content)
}

func TestReplyCompletionErrorRecordsApology(t *testing.T) {
	c := &scriptedCompleter{err: &completion.APIError{Provider: "openai", StatusCode: 500, Message: "boom"}}
	o, store := newOrchestrator(t, c)

	assert.Equal(t, FallbackTrouble, o.Reply(context.Background(), "hello"))
	history := store.All()
	require.Len(t, history, 2)
	assert.Equal(t, FallbackTrouble, history[1].Content)
	assert.Equal(t, conversation.RoleAssistant, history[1].Role)
}

func TestReplyUnparseableResponseUsesFallback(t *testing.T) {
	c := &scriptedCompleter{err: fmt.Errorf("decode: %w", completion.ErrUnparseableResponse)}
	o, store := newOrchestrator(t, c)

	assert.Equal(t, FallbackNoResponse, o.Reply(context.Background(), "hello"))
	assert.Equal(t, FallbackNoResponse, store.All()[1].Content)

	empty, _ := newOrchestrator(t, &scriptedCompleter{reply: "   "})
	assert.Equal(t, FallbackNoResponse, empty.Reply(context.Background(), "hello"))
}

func TestReplyArchivesMessages(t *testing.T) {
	archive := &memoryArchive{err: errors.New("archive down")}
	o, _ := newOrchestrator(t, &scriptedCompleter{reply: "hi"}, WithArchive(archive), WithSessionID("session-1"))

	assert.Equal(t, "hi", o.Reply(context.Background(), "hello"))
	require.Len(t, archive.messages, 2)
	assert.Equal(t, []string{"session-1", "session-1"}, archive.sessions)
	assert.Equal(t, "hello", archive.messages[0].Content)
	assert.Equal(t, "hi", archive.messages[1].Content)
}

func TestClearHistoryStartsNewSession(t *testing.T) {
	o, store := newOrchestrator(t, &scriptedCompleter{reply: "hi"})
	o.Reply(context.Background(), "hello")
	before := o.SessionID()

	o.ClearHistory()
	assert.Equal(t, 0, store.Len())
	assert.Empty(t, o.History())
	assert.NotEqual(t, before, o.SessionID())
}

func TestValidateMessage(t *testing.T) {
	assert.ErrorIs(t, ValidateMessage(""), ErrEmptyMessage)
	assert.ErrorIs(t, ValidateMessage(" \n\t"), ErrEmptyMessage)
	assert.NoError(t, ValidateMessage("hi"))
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(nil, &scriptedCompleter{}, Config{})
	assert.Error(t, err)
	_, err = New(conversation.NewStore(), nil, Config{})
	assert.Error(t, err)

	o, err := New(conversation.NewStore(), &scriptedCompleter{}, Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().MaxTokens, o.cfg.MaxTokens)
	assert.Equal(t, DefaultSystemPrompt, o.cfg.SystemPrompt)
}
