package index

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kamusis/opsroute/internal/catalog"
)

// mapProvider returns fixed vectors per text.
type mapProvider struct {
	vecs  map[string][]float32
	err   error
	short bool
}

func (p *mapProvider) ModelID() string { return "stub" }
func (p *mapProvider) Dim() int        { return 2 }

func (p *mapProvider) Embed(_ context.Context, text string) ([]float32, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.vecs[text], nil
}

func (p *mapProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if p.err != nil {
		return nil, p.err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, _ := p.Embed(ctx, t)
		out = append(out, v)
	}
	if p.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

func entries(phrases ...string) []catalog.Entry {
	var out []catalog.Entry
	for _, p := range phrases {
		out = append(out, catalog.Entry{Phrase: p, ActionID: "act_" + p})
	}
	return out
}

func TestSquaredL2(t *testing.T) {
	d, err := SquaredL2([]float32{1, 2}, []float32{4, 6})
	if err != nil {
		t.Fatal(err)
	}
	if d != 25 {
		t.Fatalf("got %v want 25", d)
	}
	if _, err := SquaredL2([]float32{1}, []float32{1, 2}); !errors.Is(err, ErrVectorLengthMismatch) {
		t.Fatalf("expected ErrVectorLengthMismatch, got %v", err)
	}
}

func TestBuildAndNearest(t *testing.T) {
	p := &mapProvider{vecs: map[string][]float32{
		"a": {0, 0},
		"b": {10, 0},
		"c": {0, 10},
	}}
	idx, err := Build(context.Background(), entries("a", "b", "c"), p)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if idx.Len() != 3 || idx.Dim() != 2 || idx.ModelID() != "stub" {
		t.Fatalf("len=%d dim=%d model=%q", idx.Len(), idx.Dim(), idx.ModelID())
	}

	tests := []struct {
		q    []float32
		pos  int
		dist float64
	}{
		{[]float32{0, 0}, 0, 0},
		{[]float32{9, 1}, 1, 2},
		{[]float32{1, 8}, 2, 5},
	}
	for _, tt := range tests {
		pos, dist, err := idx.Nearest(tt.q)
		if err != nil {
			t.Fatalf("Nearest(%v): %v", tt.q, err)
		}
		if pos != tt.pos || dist != tt.dist {
			t.Fatalf("Nearest(%v) = (%d, %v), want (%d, %v)", tt.q, pos, dist, tt.pos, tt.dist)
		}
		if got := idx.Entry(pos).ActionID; got != "act_"+[]string{"a", "b", "c"}[tt.pos] {
			t.Fatalf("Entry(%d) = %q", pos, got)
		}
	}
}

func TestNearest_TieGoesToLowestPosition(t *testing.T) {
	p := &mapProvider{vecs: map[string][]float32{
		"left":  {-1, 0},
		"right": {1, 0},
		"dup":   {-1, 0},
	}}
	idx, err := Build(context.Background(), entries("right", "left", "dup"), p)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	pos, dist, err := idx.Nearest([]float32{0, 0})
	if err != nil {
		t.Fatal(err)
	}
	if pos != 0 || dist != 1 {
		t.Fatalf("got (%d, %v), want (0, 1)", pos, dist)
	}
	pos, _, _ = idx.Nearest([]float32{-1, 0})
	if pos != 1 {
		t.Fatalf("duplicate vector: got %d, want 1", pos)
	}
}

func TestNilIndex(t *testing.T) {
	var idx *Index
	if idx.Len() != 0 || idx.Dim() != 0 || idx.ModelID() != "" {
		t.Fatalf("nil index: len=%d dim=%d model=%q", idx.Len(), idx.Dim(), idx.ModelID())
	}
	var s Searcher = idx
	if _, _, err := s.Nearest([]float32{1}); !errors.Is(err, ErrEmptyIndex) {
		t.Fatalf("expected ErrEmptyIndex, got %v", err)
	}
}

func TestNearest_Errors(t *testing.T) {
	empty, err := Build(context.Background(), nil, &mapProvider{})
	if err != nil {
		t.Fatalf("Build(empty): %v", err)
	}
	if _, _, err := empty.Nearest([]float32{1, 2}); !errors.Is(err, ErrEmptyIndex) {
		t.Fatalf("expected ErrEmptyIndex, got %v", err)
	}

	idx, err := Build(context.Background(), entries("a"), &mapProvider{vecs: map[string][]float32{"a": {1, 2}}})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := idx.Nearest([]float32{1, 2, 3}); !errors.Is(err, ErrVectorLengthMismatch) {
		t.Fatalf("expected ErrVectorLengthMismatch, got %v", err)
	}
}

func TestBuild_Failures(t *testing.T) {
	ctx := context.Background()

	if _, err := Build(ctx, entries("a"), &mapProvider{err: errors.New("offline")}); err == nil || !strings.Contains(err.Error(), "offline") {
		t.Fatalf("expected provider error, got %v", err)
	}

	short := &mapProvider{vecs: map[string][]float32{"a": {1}, "b": {2}}, short: true}
	if _, err := Build(ctx, entries("a", "b"), short); err == nil || !strings.Contains(err.Error(), "1 vectors for 2 phrases") {
		t.Fatalf("expected count error, got %v", err)
	}

	ragged := &mapProvider{vecs: map[string][]float32{"a": {1, 2}, "b": {3}}}
	if _, err := Build(ctx, entries("a", "b"), ragged); !errors.Is(err, ErrVectorLengthMismatch) {
		t.Fatalf("expected ErrVectorLengthMismatch, got %v", err)
	}

	emptyVec := &mapProvider{vecs: map[string][]float32{}}
	if _, err := Build(ctx, entries("a"), emptyVec); err == nil {
		t.Fatalf("expected empty vector error")
	}
}

func TestBuild_CopiesEntries(t *testing.T) {
	in := entries("a")
	idx, err := Build(context.Background(), in, &mapProvider{vecs: map[string][]float32{"a": {1}}})
	if err != nil {
		t.Fatal(err)
	}
	in[0].ActionID = "mutated"
	if idx.Entry(0).ActionID != "act_a" {
		t.Fatalf("index shares caller slice")
	}
}
