package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"cmdr/internal/config"
	"cmdr/internal/errdef"
)

const (
	anthropicBaseURL      = "https://api.anthropic.com/v1/messages"
	anthropicVersion      = "2023-06-01"
	anthropicDefaultModel = "claude-sonnet-4-5"
)

// Anthropic talks to the Anthropic Messages API.
type Anthropic struct {
	apiKey     string
	model      string
	baseURL    string
	maxTokens  int
	httpClient *http.Client
}

func newAnthropic(cfg *config.Config, client *http.Client) *Anthropic {
	model := cfg.Model
	if model == "" {
		model = anthropicDefaultModel
	}
	return &Anthropic{
		apiKey:     cfg.APIKey,
		model:      model,
		baseURL:    anthropicBaseURL,
		maxTokens:  cfg.MaxTokens,
		httpClient: client,
	}
}

func (a *Anthropic) Name() string { return "Anthropic" }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (a *Anthropic) Generate(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    system,
		Messages:  []anthropicMessage{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", errdef.Wrap(errdef.EProvider, "marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", errdef.Wrap(errdef.EProvider, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", errdef.Wrap(errdef.EProvider, "anthropic request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errdef.Wrap(errdef.EProvider, "read anthropic response", err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", errdef.Wrap(errdef.EProvider, "decode anthropic response", err)
	}
	if parsed.Error != nil {
		return "", errdef.Newf(errdef.EProvider, "anthropic: %s (%s)", parsed.Error.Message, parsed.Error.Type)
	}
	if resp.StatusCode != http.StatusOK {
		return "", errdef.Newf(errdef.EProvider, "anthropic: unexpected status %d", resp.StatusCode)
	}

	var sb strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errdef.New(errdef.EProvider, "anthropic: empty response")
	}
	return sb.String(), nil
}
