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

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// openaiGateway speaks the OpenAI-compatible chat completions API. It covers
// both api.openai.com and Azure-style gateway deployments that expose the
// same wire format.
type openaiGateway struct {
	model       string
	apiKey      string
	baseURL     string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
	retry       RetryPolicy
	logger      logging.Logger
}

func newOpenAIGateway(cfg config.GatewayConfig, httpClient *http.Client, retry RetryPolicy) *openaiGateway {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &openaiGateway{
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient:  httpClient,
		retry:       retry,
		logger:      logging.NewComponentLogger("llm-openai"),
	}
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiRequest struct {
	Model               string       `json:"model"`
	Messages            []oaiMessage `json:"messages"`
	MaxCompletionTokens int          `json:"max_completion_tokens,omitempty"`
	Temperature         float64      `json:"temperature"`
}

type oaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (g *openaiGateway) Generate(ctx context.Context, systemPrompt string, history []query.Turn) (string, error) {
	messages := make([]oaiMessage, 0, len(history)+1)
	if systemPrompt != "" {
		messages = append(messages, oaiMessage{Role: "system", Content: systemPrompt})
	}
	for _, turn := range history {
		messages = append(messages, oaiMessage{Role: turn.Role, Content: turn.Content})
	}

	body, err := json.Marshal(oaiRequest{
		Model:               g.model,
		Messages:            messages,
		MaxCompletionTokens: g.maxTokens,
		Temperature:         g.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	return g.retry.Do(ctx, g.logger, func(ctx context.Context) (string, error) {
		return g.complete(ctx, body)
	})
}

func (g *openaiGateway) complete(ctx context.Context, body []byte) (string, error) {
	endpoint := g.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

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

	var parsed oaiResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty response: no choices returned")
	}
	return parsed.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
