package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ent0n29/voicechat/internal/logging"
	"github.com/ent0n29/voicechat/internal/reliability"
)

// Config for an OpenAI-compatible chat completions endpoint. Setting
// AzureDeployment switches to the Azure OpenAI URL layout and api-key header.
type Config struct {
	BaseURL         string
	APIKey          string
	Model           string
	AzureDeployment string
	AzureAPIVersion string
	Timeout         time.Duration
	MaxRetries      int
	Logger          *slog.Logger
}

// OpenAIClient implements Completer over HTTP.
type OpenAIClient struct {
	cfg      Config
	endpoint string
	provider string
	http     *http.Client
	logger   *slog.Logger
}

func NewOpenAIClient(cfg Config) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("completion api key is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		if cfg.AzureDeployment != "" {
			return nil, errors.New("completion base url is required for azure deployments")
		}
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.AzureAPIVersion == "" {
		cfg.AzureAPIVersion = "2024-06-01"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.L()
	}

	base := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	endpoint := base + "/chat/completions"
	provider := "openai"
	if cfg.AzureDeployment != "" {
		endpoint = fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			base, url.PathEscape(cfg.AzureDeployment), url.QueryEscape(cfg.AzureAPIVersion))
		provider = "azure_openai"
	}

	return &OpenAIClient{
		cfg:      cfg,
		endpoint: endpoint,
		provider: provider,
		http:     &http.Client{Timeout: cfg.Timeout},
		logger:   logger.With("component", "completion."+provider),
	}, nil
}

type chatPayload struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string  `json:"role"`
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	payload := chatPayload{
		Messages:  req.Messages,
		MaxTokens: req.MaxTokens,
	}
	if c.cfg.AzureDeployment == "" {
		payload.Model = model
	}
	if req.Temperature > 0 {
		temp := req.Temperature
		payload.Temperature = &temp
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("marshal payload: %w", err)
	}

	start := time.Now()
	var raw []byte
	err = reliability.Retry(ctx, reliability.Policy{
		MaxRetries: c.cfg.MaxRetries,
		BaseDelay:  250 * time.Millisecond,
		MaxDelay:   2 * time.Second,
	}, func(attempt int) (bool, error) {
		var retryable bool
		raw, retryable, err = c.post(ctx, body)
		if err != nil && retryable {
			c.logger.Warn("completion request failed, retrying", "attempt", attempt+1, "error", err)
		}
		return retryable, err
	})
	if err != nil {
		return Response{}, err
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrUnparseableResponse, err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == nil {
		return Response{}, fmt.Errorf("%w: no message content", ErrUnparseableResponse)
	}
	choice := parsed.Choices[0]

	c.logger.Debug("completion finished",
		"model", parsed.Model,
		"finish_reason", choice.FinishReason,
		"completion_tokens", parsed.Usage.CompletionTokens,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	return Response{
		Content:      *choice.Message.Content,
		FinishReason: choice.FinishReason,
		Model:        parsed.Model,
		Usage:        parsed.Usage,
	}, nil
}

func (c *OpenAIClient) post(ctx context.Context, body []byte) ([]byte, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.AzureDeployment != "" {
		httpReq.Header.Set("api-key", c.cfg.APIKey)
	} else {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	res, err := c.http.Do(httpReq)
	if err != nil {
		retryable := ctx.Err() == nil
		return nil, retryable, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, reliability.IsRetryableHTTPStatus(res.StatusCode), c.apiError(res.StatusCode, raw)
	}
	return raw, false, nil
}

func (c *OpenAIClient) apiError(status int, raw []byte) *APIError {
	apiErr := &APIError{Provider: c.provider, StatusCode: status}
	var body apiErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		apiErr.Message = body.Error.Message
		if body.Error.Code != nil {
			apiErr.Code = fmt.Sprint(body.Error.Code)
		} else {
			apiErr.Code = body.Error.Type
		}
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(raw))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
