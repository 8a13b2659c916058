package index

import (
	"context"
	"fmt"

	"github.com/kamusis/opsroute/internal/catalog"
	"github.com/kamusis/opsroute/internal/embeddings"
)

// Searcher is the lookup contract the router depends on. A larger catalog can
// swap the linear scan for a real nearest-neighbour structure behind it.
type Searcher interface {
	Nearest(v []float32) (pos int, dist float64, err error)
	Entry(pos int) catalog.Entry
	Len() int
	Dim() int
}

// Index is an immutable set of embedded intents. Row i of vectors is the
// embedding of entries[i].
type Index struct {
	entries []catalog.Entry
	vectors []float32
	dim     int
	model   string
}

var _ Searcher = (*Index)(nil)

// Build embeds every phrase in entries with a single batch call. It either
// returns a complete index or an error.
func Build(ctx context.Context, entries []catalog.Entry, prov embeddings.Provider) (*Index, error) {
	idx := &Index{
		entries: append([]catalog.Entry(nil), entries...),
		model:   prov.ModelID(),
	}
	if len(entries) == 0 {
		return idx, nil
	}

	phrases := make([]string, len(entries))
	for i, e := range entries {
		phrases[i] = e.Phrase
	}
	vecs, err := prov.EmbedBatch(ctx, phrases)
	if err != nil {
		return nil, fmt.Errorf("cannot embed catalog: %w", err)
	}
	if len(vecs) != len(entries) {
		return nil, fmt.Errorf("provider returned %d vectors for %d phrases", len(vecs), len(entries))
	}

	dim := len(vecs[0])
	if dim == 0 {
		return nil, fmt.Errorf("provider returned an empty vector for %q", phrases[0])
	}
	flat := make([]float32, 0, len(vecs)*dim)
	for i, v := range vecs {
		if len(v) != dim {
			return nil, fmt.Errorf("embedding dim changed mid-run at %q: got %d want %d: %w", phrases[i], len(v), dim, ErrVectorLengthMismatch)
		}
		flat = append(flat, v...)
	}
	idx.vectors = flat
	idx.dim = dim
	// ModelID may only be known after the first call for remote providers.
	idx.model = prov.ModelID()
	return idx, nil
}

// Nearest returns the position of the stored vector closest to v by squared
// Euclidean distance. Ties go to the lowest position.
func (x *Index) Nearest(v []float32) (int, float64, error) {
	if x.Len() == 0 {
		return -1, 0, ErrEmptyIndex
	}
	if len(v) != x.dim {
		return -1, 0, fmt.Errorf("query has %d dims, index has %d: %w", len(v), x.dim, ErrVectorLengthMismatch)
	}
	best, bestDist := -1, 0.0
	for i := range x.entries {
		d, err := SquaredL2(v, x.row(i))
		if err != nil {
			return -1, 0, err
		}
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist, nil
}

func (x *Index) row(i int) []float32 {
	return x.vectors[i*x.dim : (i+1)*x.dim]
}

// Entry returns the catalog entry stored at pos.
func (x *Index) Entry(pos int) catalog.Entry { return x.entries[pos] }

// Len returns the number of stored intents.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.entries)
}

// Dim returns the vector dimension, or 0 for an empty index.
func (x *Index) Dim() int {
	if x == nil {
		return 0
	}
	return x.dim
}

// ModelID identifies the provider model the vectors came from.
func (x *Index) ModelID() string {
	if x == nil {
		return ""
	}
	return x.model
}
