package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"cmdr/internal/config"
	"cmdr/internal/errdef"
)

const (
	openaiBaseURL      = "https://api.openai.com/v1/chat/completions"
	openaiDefaultModel = "gpt-4o"
)

// OpenAI talks to the OpenAI chat completions API. The xAI client in xai.go
// reuses it, since xAI serves the same wire format at a different endpoint.
type OpenAI struct {
	name       string
	apiKey     string
	model      string
	baseURL    string
	maxTokens  int
	httpClient *http.Client
}

func newOpenAI(cfg *config.Config, client *http.Client) *OpenAI {
	model := cfg.Model
	if model == "" {
		model = openaiDefaultModel
	}
	return &OpenAI{
		name:       "OpenAI",
		apiKey:     cfg.APIKey,
		model:      model,
		baseURL:    openaiBaseURL,
		maxTokens:  cfg.MaxTokens,
		httpClient: client,
	}
}

func (o *OpenAI) Name() string { return o.name }

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiRequest struct {
	Model               string          `json:"model"`
	Messages            []openaiMessage `json:"messages"`
	MaxCompletionTokens int             `json:"max_completion_tokens,omitempty"`
}

type openaiResponse struct {
	Choices []struct {
		Message openaiMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (o *OpenAI) Generate(ctx context.Context, system, user string) (string, error) {
	messages := []openaiMessage{}
	if system != "" {
		messages = append(messages, openaiMessage{Role: "system", Content: system})
	}
	messages = append(messages, openaiMessage{Role: "user", Content: user})

	body, err := json.Marshal(openaiRequest{
		Model:               o.model,
		Messages:            messages,
		MaxCompletionTokens: o.maxTokens,
	})
	if err != nil {
		return "", errdef.Wrap(errdef.EProvider, "marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", errdef.Wrap(errdef.EProvider, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", errdef.Newf(errdef.EProvider, "%s request failed: %v", o.name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errdef.Newf(errdef.EProvider, "read %s response: %v", o.name, err)
	}

	var parsed openaiResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", errdef.Newf(errdef.EProvider, "decode %s response: %v", o.name, err)
	}
	if parsed.Error != nil {
		return "", errdef.Newf(errdef.EProvider, "%s: %s (%s)", o.name, parsed.Error.Message, parsed.Error.Type)
	}
	if resp.StatusCode != http.StatusOK {
		return "", errdef.Newf(errdef.EProvider, "%s: unexpected status %d", o.name, resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", errdef.Newf(errdef.EProvider, "%s: empty response", o.name)
	}
	return parsed.Choices[0].Message.Content, nil
}
