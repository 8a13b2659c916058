package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const defaultLocalDim = 256

// localProvider is a deterministic, offline provider based on feature hashing
// of word unigrams and bigrams. It is coarse compared to a trained model but
// needs no network or credentials.
type localProvider struct {
	dim int
}

// NewLocal constructs the hashing provider. cfg.Model may be "hash-<dim>".
func NewLocal(cfg *Config) Provider {
	dim := defaultLocalDim
	if cfg != nil && cfg.Model != "" {
		var n int
		if _, err := fmt.Sscanf(cfg.Model, "hash-%d", &n); err == nil && n > 0 {
			dim = n
		}
	}
	return &localProvider{dim: dim}
}

func (p *localProvider) ModelID() string {
	return fmt.Sprintf("local:hash-%d", p.dim)
}

func (p *localProvider) Dim() int {
	return p.dim
}

func (p *localProvider) Embed(_ context.Context, text string) ([]float32, error) {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("cannot embed empty text")
	}
	v := make([]float64, p.dim)
	for i, tok := range tokens {
		p.add(v, tok, 1)
		if i > 0 {
			p.add(v, tokens[i-1]+" "+tok, 0.5)
		}
	}

	var sum float64
	for _, x := range v {
		sum += x * x
	}
	out := make([]float32, p.dim)
	if sum == 0 {
		return out, nil
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(x * inv)
	}
	return out, nil
}

func (p *localProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (p *localProvider) add(v []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	slot := int(sum % uint64(p.dim))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	v[slot] += weight
}

// Tokenize NFKC-normalizes and case-folds text, then splits it on anything
// that is not a letter or digit.
func Tokenize(text string) []string {
	s := cases.Fold().String(norm.NFKC.String(text))
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
