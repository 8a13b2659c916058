package router

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kamusis/opsroute/internal/catalog"
	"github.com/kamusis/opsroute/internal/index"
)

type stubProvider struct {
	vecs  map[string][]float32
	err   error
	block bool
	calls atomic.Int32
}

func (p *stubProvider) ModelID() string { return "stub" }
func (p *stubProvider) Dim() int        { return 2 }

func (p *stubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.calls.Add(1)
	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if p.err != nil {
		return nil, p.err
	}
	v, ok := p.vecs[text]
	if !ok {
		return nil, errors.New("unknown text " + text)
	}
	return v, nil
}

func (p *stubProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func newStub() *stubProvider {
	return &stubProvider{vecs: map[string][]float32{
		"check cpu usage":      {1, 0},
		"monitor memory usage": {0, 1},
		"how busy is the cpu":  {0.9, 0.1},
		"ram":                  {0.1, 0.8},
		"far away":             {5, 5},
		"wide":                 {1, 0, 0},
	}}
}

func buildRouter(t *testing.T, p *stubProvider, opts Options, logger *zap.Logger) *Router {
	t.Helper()
	entries := []catalog.Entry{
		{Phrase: "check cpu usage", ActionID: "get_cpu_usage"},
		{Phrase: "monitor memory usage", ActionID: "get_memory_usage"},
	}
	idx, err := index.Build(context.Background(), entries, p)
	if err != nil {
		t.Fatalf("index.Build: %v", err)
	}
	p.calls.Store(0)
	return New(idx, p, opts, logger)
}

func TestMatch_ExactPhraseHasZeroDistance(t *testing.T) {
	r := buildRouter(t, newStub(), Options{}, zaptest.NewLogger(t))

	m, err := r.Match(context.Background(), "check cpu usage")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if !m.Found || m.ActionID != "get_cpu_usage" || m.Distance != 0 || m.Position != 0 {
		t.Fatalf("unexpected match %+v", m)
	}
}

func TestMatch_NearestWins(t *testing.T) {
	r := buildRouter(t, newStub(), Options{}, zaptest.NewLogger(t))

	tests := []struct {
		query  string
		action string
	}{
		{"how busy is the cpu", "get_cpu_usage"},
		{"  ram  ", "get_memory_usage"},
	}
	for _, tt := range tests {
		m, err := r.Match(context.Background(), tt.query)
		if err != nil {
			t.Fatalf("Match(%q): %v", tt.query, err)
		}
		if m.ActionID != tt.action {
			t.Fatalf("Match(%q) = %q, want %q", tt.query, m.ActionID, tt.action)
		}
	}
}

func TestMatch_Idempotent(t *testing.T) {
	r := buildRouter(t, newStub(), Options{}, zaptest.NewLogger(t))

	a, err := r.Match(context.Background(), "ram")
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Match(context.Background(), "ram")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("results differ: %+v vs %+v", a, b)
	}
}

func TestMatch_EmptyQuerySkipsProvider(t *testing.T) {
	p := newStub()
	r := buildRouter(t, p, Options{}, zaptest.NewLogger(t))

	m, err := r.Match(context.Background(), "   \t")
	if err != nil {
		t.Fatal(err)
	}
	if m.Found || m.Reason != ReasonEmptyQuery {
		t.Fatalf("unexpected match %+v", m)
	}
	if n := p.calls.Load(); n != 0 {
		t.Fatalf("provider called %d times", n)
	}
}

func TestMatch_EmptyCatalog(t *testing.T) {
	p := newStub()
	idx, err := index.Build(context.Background(), nil, p)
	if err != nil {
		t.Fatal(err)
	}
	r := New(idx, p, Options{}, nil)

	m, err := r.Match(context.Background(), "check cpu usage")
	if err != nil {
		t.Fatal(err)
	}
	if m.Found || m.ActionID != "" || m.Reason != ReasonEmptyCatalog {
		t.Fatalf("unexpected match %+v", m)
	}
}

func TestMatch_ProviderErrorDegrades(t *testing.T) {
	p := newStub()
	core, logs := observer.New(zapcore.WarnLevel)
	r := buildRouter(t, p, Options{}, zap.New(core))
	p.err = errors.New("connection refused")

	m, err := r.Match(context.Background(), "check cpu usage")
	if err != nil {
		t.Fatalf("provider errors must not surface: %v", err)
	}
	if m.Found || m.Reason != ReasonEmbedUnavailable {
		t.Fatalf("unexpected match %+v", m)
	}
	if logs.FilterMessage("embedding failed, no action selected").Len() != 1 {
		t.Fatalf("expected a warning, got %v", logs.All())
	}
}

func TestMatch_EmbedTimeout(t *testing.T) {
	p := newStub()
	r := buildRouter(t, p, Options{EmbedTimeout: 20 * time.Millisecond}, zaptest.NewLogger(t))
	p.block = true

	m, err := r.Match(context.Background(), "check cpu usage")
	if err != nil {
		t.Fatal(err)
	}
	if m.Found || m.Reason != ReasonEmbedUnavailable {
		t.Fatalf("unexpected match %+v", m)
	}
}

func TestMatch_MaxDistance(t *testing.T) {
	r := buildRouter(t, newStub(), Options{MaxDistance: 1}, zaptest.NewLogger(t))

	m, err := r.Match(context.Background(), "far away")
	if err != nil {
		t.Fatal(err)
	}
	if m.Found || m.ActionID != "" || m.Reason != ReasonAboveMax {
		t.Fatalf("unexpected match %+v", m)
	}
	if m.Phrase == "" || m.Distance <= 1 {
		t.Fatalf("rejected match should still report phrase and distance: %+v", m)
	}

	m, err = r.Match(context.Background(), "ram")
	if err != nil {
		t.Fatal(err)
	}
	if !m.Found {
		t.Fatalf("close match rejected: %+v", m)
	}
}

func TestMatch_DimensionMismatchIsFatal(t *testing.T) {
	r := buildRouter(t, newStub(), Options{}, zaptest.NewLogger(t))

	_, err := r.Match(context.Background(), "wide")
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}
