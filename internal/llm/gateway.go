// Package llm provides the model gateway: concrete adapters that turn a
// conversation history into the next assistant turn. The resolution loop
// consumes the query.Gateway interface and never sees provider specifics;
// adapters are selected by configuration.
package llm

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"docquery/internal/config"
	"docquery/internal/query"
)

const defaultTimeout = 120 * time.Second

// New builds the configured gateway adapter wrapped with the retry policy.
func New(cfg config.GatewayConfig) (query.Gateway, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("missing gateway API key")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := &http.Client{Timeout: timeout}
	retry := DefaultRetryPolicy()

	switch strings.ToLower(cfg.Provider) {
	case "openai", "azure-openai":
		return newOpenAIGateway(cfg, httpClient, retry), nil
	case "anthropic", "":
		return newAnthropicGateway(cfg, httpClient, retry), nil
	default:
		return nil, fmt.Errorf("unknown gateway provider %q", cfg.Provider)
	}
}
