package embeddings

import (
	"context"
	"fmt"
	"sync/atomic"

	"google.golang.org/genai"
)

// genAIProvider generates embeddings using Google's Gemini API.
type genAIProvider struct {
	client *genai.Client
	model  string
	dim    atomic.Int64
}

// NewGenAI constructs a Gemini embeddings provider.
func NewGenAI(ctx context.Context, cfg *Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embeddings API key is not configured (set OPSROUTE_EMBEDDINGS_API_KEY)")
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-embedding-001"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &genAIProvider{client: client, model: model}, nil
}

func (p *genAIProvider) ModelID() string {
	return "genai:" + p.model
}

func (p *genAIProvider) Dim() int {
	return int(p.dim.Load())
}

func (p *genAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch uses the native batch support of EmbedContent.
func (p *genAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := p.client.Models.EmbedContent(ctx, p.model, contents, &genai.EmbedContentConfig{
		TaskType: "SEMANTIC_SIMILARITY",
	})
	if err != nil {
		return nil, fmt.Errorf("GenAI embed failed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("GenAI returned %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}

	out := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("GenAI embedding %d is empty", i)
		}
		out[i] = emb.Values
	}
	p.dim.Store(int64(len(out[0])))
	return out, nil
}
