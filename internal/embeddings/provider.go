package embeddings

import (
	"context"
	"fmt"

	"github.com/kamusis/opsroute/internal/config"
)

// Provider embeds text into a fixed-length float vector.
//
// Implementations must be deterministic for the same input text and model.
// EmbedBatch returns one vector per input, in input order.
type Provider interface {
	ModelID() string
	Dim() int
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Config contains the resolved embeddings configuration.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// LoadConfig resolves embeddings config from environment variables first, then
// ~/.opsroute/.env, then the non-secret defaults from the config file.
func LoadConfig(defaults config.EmbeddingsConfig) (*Config, error) {
	provider, err := config.GetConfigValue("OPSROUTE_EMBEDDINGS_PROVIDER")
	if err != nil {
		return nil, err
	}
	model, err := config.GetConfigValue("OPSROUTE_EMBEDDINGS_MODEL")
	if err != nil {
		return nil, err
	}
	apiKey, err := config.GetConfigValue("OPSROUTE_EMBEDDINGS_API_KEY")
	if err != nil {
		return nil, err
	}
	baseURL, err := config.GetConfigValue("OPSROUTE_EMBEDDINGS_BASE_URL")
	if err != nil {
		return nil, err
	}
	if provider == "" {
		provider = defaults.Provider
	}
	if model == "" {
		model = defaults.Model
	}
	if baseURL == "" {
		baseURL = defaults.BaseURL
	}
	if provider == "" {
		provider = "local"
	}
	if baseURL == "" && provider == "openai" {
		baseURL = "https://api.openai.com/v1"
	}

	return &Config{
		Provider: provider,
		Model:    model,
		APIKey:   apiKey,
		BaseURL:  baseURL,
	}, nil
}

// NewFromConfig returns an embeddings provider.
func NewFromConfig(ctx context.Context, cfg *Config) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("embeddings config is nil")
	}
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg), nil
	case "ollama":
		return NewOllama(cfg), nil
	case "genai":
		return NewGenAI(ctx, cfg)
	case "local":
		return NewLocal(cfg), nil
	case "":
		return nil, fmt.Errorf("embeddings provider is not configured (set OPSROUTE_EMBEDDINGS_PROVIDER)")
	default:
		return nil, fmt.Errorf("unsupported embeddings provider: %s", cfg.Provider)
	}
}
