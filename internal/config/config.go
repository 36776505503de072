// Package config resolves runtime configuration from the environment and
// an optional per-project cmdr.yaml file.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"cmdr/internal/errdef"
)

// ProjectFile is the optional per-project configuration file.
const ProjectFile = "cmdr.yaml"

// ReplyLogFile is where the raw reply text is saved before parsing.
const ReplyLogFile = "cmdr.log"

// Config holds everything resolved at startup.
type Config struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`

	Extensions  []string `yaml:"extensions"`
	Recursive   bool     `yaml:"recursive"`
	AutoConfirm bool     `yaml:"auto_confirm"`

	InstructionsFile string `yaml:"instructions_file"`
	SystemFile       string `yaml:"system_file"`

	// WatsonX needs a project id and a regional endpoint besides the key.
	WatsonxProjectID string `yaml:"watsonx_project_id"`
	WatsonxURL       string `yaml:"watsonx_url"`

	// APIKey is resolved from the provider-specific environment variable.
	APIKey string `yaml:"-"`
}

func defaults() *Config {
	return &Config{
		Provider:    "gemini",
		Model:       "",
		MaxTokens:   8192,
		Temperature: 0.1,
		Extensions:  []string{"py"},
	}
}

// Load resolves configuration: built-in defaults, then cmdr.yaml from the
// project root, then environment variables. ~/.env and <root>/.env are
// loaded first so API keys can live outside the shell profile.
func Load(root string) (*Config, error) {
	if home, err := os.UserHomeDir(); err == nil {
		_ = godotenv.Load(filepath.Join(home, ".env"))
	}
	if err := godotenv.Load(filepath.Join(root, ".env")); err != nil {
		log.Debug().Msg("no project .env file, using environment variables")
	}

	cfg := defaults()

	if data, err := os.ReadFile(filepath.Join(root, ProjectFile)); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errdef.WrapPath(errdef.EConfig, ProjectFile, "invalid project config", err)
		}
		log.Debug().Str("file", ProjectFile).Msg("loaded project config")
	}

	if v := os.Getenv("CMDR_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("CMDR_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("CMDR_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxTokens = n
		}
	}
	if v := os.Getenv("WATSONX_PROJECT_ID"); v != "" {
		cfg.WatsonxProjectID = v
	}
	if v := os.Getenv("WATSONX_URL"); v != "" {
		cfg.WatsonxURL = v
	}

	cfg.APIKey = apiKeyFor(cfg.Provider)
	return cfg, nil
}

// apiKeyFor looks up the conventional key variable for a provider.
func apiKeyFor(provider string) string {
	switch provider {
	case "gemini":
		for _, name := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"} {
			if v := os.Getenv(name); v != "" {
				return v
			}
		}
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "xai":
		return os.Getenv("XAI_API_KEY")
	case "watsonx":
		return os.Getenv("WATSONX_API_KEY")
	}
	return ""
}
