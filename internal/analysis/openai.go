package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"docflow/internal/document/models"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens"`
	Stream         bool              `json:"stream"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// OpenAICompatible talks to any /chat/completions endpoint (OpenAI, GLM).
type OpenAICompatible struct {
	name       string
	baseURL    string
	apiKey     string
	model      string
	jsonMode   bool
	httpClient *http.Client
}

type OpenAIOption func(*OpenAICompatible)

func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(p *OpenAICompatible) { p.httpClient = c }
}

// WithJSONMode requests response_format json_object.
func WithJSONMode(enabled bool) OpenAIOption {
	return func(p *OpenAICompatible) { p.jsonMode = enabled }
}

func NewOpenAICompatible(name, baseURL, apiKey, model string, opts ...OpenAIOption) *OpenAICompatible {
	p := &OpenAICompatible{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		jsonMode:   true,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *OpenAICompatible) Name() string { return p.name }

func (p *OpenAICompatible) Analyze(ctx context.Context, req Request) (models.ProviderResult, error) {
	body := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(req)},
		},
		Temperature: 0.1,
		MaxTokens:   1000,
	}
	if p.jsonMode {
		body.ResponseFormat = map[string]string{"type": "json_object"}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return models.ProviderResult{}, NewProviderError(ErrorContractMismatch, p.name, "marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return models.ProviderResult{}, NewProviderError(ErrorContractMismatch, p.name, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return models.ProviderResult{}, NewProviderError(ErrorTimeout, p.name, "request timed out", err)
		}
		return models.ProviderResult{}, NewProviderError(ErrorProviderOutage, p.name, "request failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.ProviderResult{}, NewProviderError(ErrorProviderOutage, p.name, "read response", err)
	}
	if resp.StatusCode >= 300 {
		return models.ProviderResult{}, NewProviderError(categoryForStatus(resp.StatusCode), p.name,
			fmt.Sprintf("status %d", resp.StatusCode), errors.New(truncate(string(payload), 256)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return models.ProviderResult{}, NewProviderError(ErrorBadData, p.name, "decode completion", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return models.ProviderResult{}, NewProviderError(ErrorBadData, p.name, "empty completion", nil)
	}
	return parseResponse(p.name, parsed.Choices[0].Message.Content)
}

func categoryForStatus(code int) ErrorCategory {
	switch {
	case code == http.StatusTooManyRequests:
		return ErrorRateLimited
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrorAuthentication
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return ErrorTimeout
	case code >= 500:
		return ErrorProviderOutage
	default:
		return ErrorContractMismatch
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
