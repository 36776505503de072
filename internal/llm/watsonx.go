package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"cmdr/internal/config"
	"cmdr/internal/errdef"
)

const (
	watsonxDefaultURL   = "https://us-south.ml.cloud.ibm.com"
	watsonxDefaultModel = "ibm/granite-13b-chat-v2"
	watsonxAPIVersion   = "2023-05-29"
	watsonxTokenURL     = "https://iam.cloud.ibm.com/identity/token"
)

// Watsonx talks to the IBM watsonx.ai text generation API. The API key is
// exchanged for a short-lived IAM bearer token before each request, and the
// request must carry a project id besides the key.
type Watsonx struct {
	apiKey      string
	model       string
	projectID   string
	baseURL     string
	tokenURL    string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

func newWatsonx(cfg *config.Config, client *http.Client) *Watsonx {
	model := cfg.Model
	if model == "" {
		model = watsonxDefaultModel
	}
	base := cfg.WatsonxURL
	if base == "" {
		base = watsonxDefaultURL
	}
	return &Watsonx{
		apiKey:      cfg.APIKey,
		model:       model,
		projectID:   cfg.WatsonxProjectID,
		baseURL:     base,
		tokenURL:    watsonxTokenURL,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient:  client,
	}
}

func (w *Watsonx) Name() string { return "WatsonX" }

type watsonxParams struct {
	DecodingMethod string  `json:"decoding_method"`
	MaxNewTokens   int     `json:"max_new_tokens"`
	MinNewTokens   int     `json:"min_new_tokens"`
	Temperature    float64 `json:"temperature"`
	TopK           int     `json:"top_k"`
	TopP           float64 `json:"top_p"`
}

type watsonxRequest struct {
	ModelID    string        `json:"model_id"`
	Input      string        `json:"input"`
	ProjectID  string        `json:"project_id"`
	Parameters watsonxParams `json:"parameters"`
}

type watsonxResponse struct {
	Results []struct {
		GeneratedText string `json:"generated_text"`
	} `json:"results"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors,omitempty"`
}

// Generate sends one text generation request. The generation endpoint takes
// a single input string rather than a message list, so the system text is
// prepended to the prompt.
func (w *Watsonx) Generate(ctx context.Context, system, user string) (string, error) {
	token, err := w.fetchToken(ctx)
	if err != nil {
		return "", err
	}

	input := user
	if system != "" {
		input = system + "\n\n" + user
	}
	body, err := json.Marshal(watsonxRequest{
		ModelID:   w.model,
		Input:     input,
		ProjectID: w.projectID,
		Parameters: watsonxParams{
			DecodingMethod: "greedy",
			MaxNewTokens:   w.maxTokens,
			MinNewTokens:   1,
			Temperature:    w.temperature,
			TopK:           50,
			TopP:           1,
		},
	})
	if err != nil {
		return "", errdef.Wrap(errdef.EProvider, "marshal request", err)
	}

	endpoint := w.baseURL + "/ml/v1/text/generation?version=" + watsonxAPIVersion
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errdef.Wrap(errdef.EProvider, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", errdef.Wrap(errdef.EProvider, "watsonx request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errdef.Wrap(errdef.EProvider, "read watsonx response", err)
	}

	var parsed watsonxResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", errdef.Wrap(errdef.EProvider, "decode watsonx response", err)
	}
	if len(parsed.Errors) > 0 {
		return "", errdef.Newf(errdef.EProvider, "watsonx: %s (%s)", parsed.Errors[0].Message, parsed.Errors[0].Code)
	}
	if resp.StatusCode != http.StatusOK {
		return "", errdef.Newf(errdef.EProvider, "watsonx: unexpected status %d", resp.StatusCode)
	}
	if len(parsed.Results) == 0 {
		return "", errdef.New(errdef.EProvider, "watsonx: empty response")
	}
	return parsed.Results[0].GeneratedText, nil
}

// fetchToken trades the API key for an IAM access token.
func (w *Watsonx) fetchToken(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type": {"urn:ibm:params:oauth:grant-type:apikey"},
		"apikey":     {w.apiKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", errdef.Wrap(errdef.EProvider, "build token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", errdef.Wrap(errdef.EProvider, "watsonx token request failed", err)
	}
	defer resp.Body.Close()

	var parsed struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", errdef.Wrap(errdef.EProvider, "decode token response", err)
	}
	if resp.StatusCode != http.StatusOK || parsed.AccessToken == "" {
		return "", errdef.Newf(errdef.EProvider, "watsonx: token exchange failed with status %d", resp.StatusCode)
	}
	return parsed.AccessToken, nil
}
