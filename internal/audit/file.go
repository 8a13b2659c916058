package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// FileSink appends records as JSON lines. Every write holds an advisory lock
// on <path>.lock so several opsroute processes can share one log.
type FileSink struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

var _ Sink = (*FileSink)(nil)

func NewFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cannot create log dir: %w", err)
	}
	return &FileSink{path: path, lock: flock.New(path + ".lock")}, nil
}

func (s *FileSink) Path() string { return s.path }

func (s *FileSink) Write(ctx context.Context, r Record) error {
	line, err := json.Marshal(r)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	locked, err := s.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("cannot lock %s: %w", s.lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("cannot lock %s", s.lock.Path())
	}
	defer func() { _ = s.lock.Unlock() }()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", s.path, err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("cannot append to %s: %w", s.path, err)
	}
	return f.Close()
}

func (s *FileSink) Close() error {
	return s.lock.Close()
}
