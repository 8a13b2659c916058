package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kamusis/opsroute/internal/embeddings"
	"github.com/kamusis/opsroute/internal/index"
)

// ErrDimensionMismatch means the provider and the index disagree on vector
// size. It is a configuration error, not a per-query failure.
var ErrDimensionMismatch = errors.New("query embedding dimension does not match index")

// No-match reasons.
const (
	ReasonEmptyQuery       = "empty query"
	ReasonEmptyCatalog     = "empty catalog"
	ReasonEmbedUnavailable = "embedding unavailable"
	ReasonAboveMax         = "above max distance"
)

// Match is the result of routing one query.
//
// When Found is false, ActionID is empty and Reason says why. Phrase and
// Distance are still set when a nearest intent was computed but rejected by
// the distance cutoff.
type Match struct {
	ActionID string
	Phrase   string
	Distance float64
	Position int
	Found    bool
	Reason   string
}

type Options struct {
	// MaxDistance rejects matches farther than this. 0 disables the cutoff.
	MaxDistance float64
	// EmbedTimeout bounds the provider call. 0 means no extra bound.
	EmbedTimeout time.Duration
}

// Router maps free-form queries to action ids.
type Router struct {
	idx  index.Searcher
	prov embeddings.Provider
	opts Options
	log  *zap.Logger
}

func New(idx index.Searcher, prov embeddings.Provider, opts Options, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{idx: idx, prov: prov, opts: opts, log: logger.Named("router")}
}

// Match returns the nearest intent for query. The only error it returns wraps
// ErrDimensionMismatch; every other failure degrades to a no-match.
func (r *Router) Match(ctx context.Context, query string) (Match, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return Match{Position: -1, Reason: ReasonEmptyQuery}, nil
	}
	if r.idx.Len() == 0 {
		return Match{Position: -1, Reason: ReasonEmptyCatalog}, nil
	}

	ectx := ctx
	if r.opts.EmbedTimeout > 0 {
		var cancel context.CancelFunc
		ectx, cancel = context.WithTimeout(ctx, r.opts.EmbedTimeout)
		defer cancel()
	}
	vec, err := r.prov.Embed(ectx, q)
	if err != nil {
		r.log.Warn("embedding failed, no action selected",
			zap.String("model", r.prov.ModelID()),
			zap.Error(err))
		return Match{Position: -1, Reason: ReasonEmbedUnavailable}, nil
	}
	if len(vec) != r.idx.Dim() {
		return Match{Position: -1}, fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(vec), r.idx.Dim())
	}

	pos, dist, err := r.idx.Nearest(vec)
	if err != nil {
		if errors.Is(err, index.ErrVectorLengthMismatch) {
			return Match{Position: -1}, fmt.Errorf("%w: %v", ErrDimensionMismatch, err)
		}
		if errors.Is(err, index.ErrEmptyIndex) {
			return Match{Position: -1, Reason: ReasonEmptyCatalog}, nil
		}
		return Match{Position: -1}, err
	}

	e := r.idx.Entry(pos)
	m := Match{
		ActionID: e.ActionID,
		Phrase:   e.Phrase,
		Distance: dist,
		Position: pos,
		Found:    true,
	}
	if r.opts.MaxDistance > 0 && dist > r.opts.MaxDistance {
		m.ActionID = ""
		m.Found = false
		m.Reason = ReasonAboveMax
	}

	r.log.Info("routed query",
		zap.String("query", q),
		zap.String("phrase", m.Phrase),
		zap.Float64("distance", dist),
		zap.String("action", e.ActionID),
		zap.Bool("found", m.Found))
	return m, nil
}
