// Package completion talks to hosted chat-completion endpoints.
package completion

import (
	"context"
	"errors"
	"fmt"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is one chat-completion call.
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Response struct {
	Content      string
	FinishReason string
	Model        string
	Usage        Usage
}

// Completer is the contract of a chat-completion endpoint.
type Completer interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// ErrUnparseableResponse means the endpoint answered but the body did not
// match the expected response schema.
var ErrUnparseableResponse = errors.New("completion: unparseable response")

// APIError is a non-2xx answer from the endpoint.
type APIError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("completion [%s]: status %d (%s): %s", e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("completion [%s]: status %d: %s", e.Provider, e.StatusCode, e.Message)
}
