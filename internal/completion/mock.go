package completion

import (
	"context"
	"fmt"
	"strings"
)

// MockCompleter gives deterministic replies when no endpoint is configured.
// With a fixed Reply it always answers that; otherwise it echoes the last
// user message.
type MockCompleter struct {
	Reply string
}

func NewMockCompleter() *MockCompleter { return &MockCompleter{} }

func (m *MockCompleter) Complete(ctx context.Context, req Request) (Response, error) {
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	default:
	}
	if m.Reply != "" {
		return Response{Content: m.Reply, FinishReason: "stop", Model: "mock"}, nil
	}

	last := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			last = strings.TrimSpace(req.Messages[i].Content)
			break
		}
	}
	if last == "" {
		last = "nothing yet"
	}
	return Response{
		Content:      fmt.Sprintf("I heard you say: %s", last),
		FinishReason: "stop",
		Model:        "mock",
	}, nil
}
