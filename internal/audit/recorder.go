package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const sinkTimeout = 5 * time.Second

// Recorder delivers records to sinks on a single background goroutine.
// Record never blocks the caller. A nil *Recorder discards everything.
type Recorder struct {
	ch      chan Record
	sinks   []Sink
	log     *zap.Logger
	done    chan struct{}
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// NewRecorder starts the delivery goroutine. buffer is the queue length;
// records arriving while it is full are dropped.
func NewRecorder(buffer int, logger *zap.Logger, sinks ...Sink) *Recorder {
	if buffer <= 0 {
		buffer = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		ch:    make(chan Record, buffer),
		sinks: sinks,
		log:   logger.Named("audit"),
		done:  make(chan struct{}),
	}
	go r.loop()
	return r
}

// Record queues rec. Missing ID and Time are filled in.
func (r *Recorder) Record(rec Record) {
	if r == nil {
		return
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Time.IsZero() {
		rec.Time = time.Now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.ch <- rec:
	default:
		n := r.dropped.Add(1)
		r.log.Warn("audit queue full, record dropped", zap.String("id", rec.ID), zap.Int64("dropped", n))
	}
}

// Dropped reports how many records were discarded.
func (r *Recorder) Dropped() int64 {
	if r == nil {
		return 0
	}
	return r.dropped.Load()
}

func (r *Recorder) loop() {
	defer close(r.done)
	for rec := range r.ch {
		for _, s := range r.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
			if err := s.Write(ctx, rec); err != nil {
				r.log.Warn("audit sink write failed", zap.String("id", rec.ID), zap.Error(err))
			}
			cancel()
		}
	}
}

// Close flushes queued records and closes every sink. It is safe to call more
// than once.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return nil
	}
	r.closed = true
	close(r.ch)
	r.mu.Unlock()

	<-r.done
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
