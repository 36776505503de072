package llm

import (
	"net/http"

	"cmdr/internal/config"
)

const (
	xaiBaseURL      = "https://api.x.ai/v1/chat/completions"
	xaiDefaultModel = "grok-4-latest"
)

// newXAI creates the xAI client. xAI serves an OpenAI-compatible chat
// completions API, so the client itself is the OpenAI one pointed at the
// x.ai endpoint.
func newXAI(cfg *config.Config, client *http.Client) *OpenAI {
	model := cfg.Model
	if model == "" {
		model = xaiDefaultModel
	}
	return &OpenAI{
		name:       "xAI",
		apiKey:     cfg.APIKey,
		model:      model,
		baseURL:    xaiBaseURL,
		maxTokens:  cfg.MaxTokens,
		httpClient: client,
	}
}
