// Package llm holds the generation-service clients. The rest of the tool
// only ever sees the raw reply text; authentication, model selection, and
// wire formats stay in here.
package llm

import (
	"context"
	"net/http"
	"time"

	"cmdr/internal/config"
	"cmdr/internal/errdef"
)

// Provider is one text-generation backend.
type Provider interface {
	// Name returns the provider name for display.
	Name() string
	// Generate sends one request and returns the reply text.
	Generate(ctx context.Context, system, user string) (string, error)
}

// New creates the provider selected by the configuration.
func New(cfg *config.Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, errdef.Newf(errdef.EConfig,
			"no API key for provider %q; add it to ~/.env", cfg.Provider)
	}

	client := &http.Client{Timeout: 180 * time.Second}
	switch cfg.Provider {
	case "gemini":
		return newGemini(cfg, client), nil
	case "anthropic":
		return newAnthropic(cfg, client), nil
	case "openai":
		return newOpenAI(cfg, client), nil
	case "xai":
		return newXAI(cfg, client), nil
	case "watsonx":
		if cfg.WatsonxProjectID == "" {
			return nil, errdef.New(errdef.EConfig,
				"watsonx requires a project id; set WATSONX_PROJECT_ID")
		}
		return newWatsonx(cfg, client), nil
	default:
		return nil, errdef.Newf(errdef.EConfig, "unknown provider %q", cfg.Provider)
	}
}
