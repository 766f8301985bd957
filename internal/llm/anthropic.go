package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"docquery/internal/config"
	"docquery/internal/logging"
	"docquery/internal/query"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion        = "2023-06-01"
)

// anthropicGateway speaks the Anthropic messages API.
type anthropicGateway struct {
	model       string
	apiKey      string
	baseURL     string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
	retry       RetryPolicy
	logger      logging.Logger
}

func newAnthropicGateway(cfg config.GatewayConfig, httpClient *http.Client, retry RetryPolicy) *anthropicGateway {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	return &anthropicGateway{
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient:  httpClient,
		retry:       retry,
		logger:      logging.NewComponentLogger("llm-anthropic"),
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (g *anthropicGateway) Generate(ctx context.Context, systemPrompt string, history []query.Turn) (string, error) {
	messages := make([]anthropicMessage, 0, len(history))
	for _, turn := range history {
		messages = append(messages, anthropicMessage{Role: turn.Role, Content: turn.Content})
	}

	body, err := json.Marshal(anthropicRequest{
		Model:       g.model,
		MaxTokens:   g.maxTokens,
		System:      systemPrompt,
		Messages:    messages,
		Temperature: g.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	return g.retry.Do(ctx, g.logger, func(ctx context.Context) (string, error) {
		return g.complete(ctx, body)
	})
}

func (g *anthropicGateway) complete(ctx context.Context, body []byte) (string, error) {
	endpoint := g.baseURL + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", g.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", transient(0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transient(0, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("API error: %d - %s", resp.StatusCode, truncate(string(payload), 512))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", transient(resp.StatusCode, err)
		}
		return "", err
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("API error: %s", parsed.Error.Message)
	}
	for _, block := range parsed.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("empty response: no text content returned")
}
