package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"cmdr/internal/config"
	"cmdr/internal/errdef"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta/models"
	geminiDefaultModel = "gemini-2.5-pro"
)

// Gemini talks to the Google Gemini generateContent API.
type Gemini struct {
	apiKey      string
	model       string
	baseURL     string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

func newGemini(cfg *config.Config, client *http.Client) *Gemini {
	model := cfg.Model
	if model == "" {
		model = geminiDefaultModel
	}
	return &Gemini{
		apiKey:      cfg.APIKey,
		model:       model,
		baseURL:     geminiBaseURL,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient:  client,
	}
}

func (g *Gemini) Name() string { return "Gemini" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	Contents          []geminiContent  `json:"contents"`
	GenerationConfig  *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Generate sends one generateContent request and concatenates the reply parts.
func (g *Gemini) Generate(ctx context.Context, system, user string) (string, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: user}}},
		},
		GenerationConfig: &geminiGenConfig{
			MaxOutputTokens: g.maxTokens,
			Temperature:     g.temperature,
		},
	}
	if system != "" {
		reqBody.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", errdef.Wrap(errdef.EProvider, "marshal request", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", errdef.Wrap(errdef.EProvider, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	log.Debug().Str("model", g.model).Int("prompt_bytes", len(user)).Msg("calling gemini")
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", errdef.Wrap(errdef.EProvider, "gemini request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errdef.Wrap(errdef.EProvider, "read gemini response", err)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", errdef.Wrap(errdef.EProvider, "decode gemini response", err)
	}
	if parsed.Error != nil {
		return "", errdef.Newf(errdef.EProvider, "gemini: %s (%s)", parsed.Error.Message, parsed.Error.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return "", errdef.Newf(errdef.EProvider, "gemini: unexpected status %d", resp.StatusCode)
	}
	if len(parsed.Candidates) == 0 {
		return "", errdef.New(errdef.EProvider, "gemini: empty response")
	}

	var sb strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}
