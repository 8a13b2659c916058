package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestHashQuery(t *testing.T) {
	h1 := HashQuery("check cpu on web01")
	h2 := HashQuery("check cpu on web01")
	if h1 != h2 {
		t.Fatalf("HashQuery produced inconsistent results")
	}
	if len(h1) != 64 {
		t.Fatalf("expected hash length 64, got %d", len(h1))
	}
	if h1 == HashQuery("check cpu on web02") {
		t.Fatalf("different queries share a hash")
	}
}

func TestSQLiteStore_WriteAndRecent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "history.db")

	s, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, status := range []string{"success", "timeout", "no_match"} {
		r := Record{
			ID:         string(rune('a' + i)),
			Time:       base.Add(time.Duration(i) * time.Minute),
			QueryHash:  HashQuery(status),
			ActionID:   "get_cpu_usage",
			Phrase:     "check cpu usage",
			Distance:   0.25,
			Status:     status,
			ExitCode:   i,
			DurationMS: 12,
			Server:     "web01",
		}
		if err := s.Write(ctx, r); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// reopening must not re-run migrations
	s, err = OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].Status != "no_match" || got[1].Status != "timeout" {
		t.Fatalf("wrong order: %q, %q", got[0].Status, got[1].Status)
	}
	want := Record{
		ID: "c", Time: base.Add(2 * time.Minute), QueryHash: HashQuery("no_match"),
		ActionID: "get_cpu_usage", Phrase: "check cpu usage", Distance: 0.25,
		Status: "no_match", ExitCode: 2, DurationMS: 12, Server: "web01",
	}
	if diff := cmp.Diff(want, got[0]); diff != "" {
		t.Fatalf("record (-want +got):\n%s", diff)
	}
}

func TestFileSink_AppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "executions.jsonl")
	s, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	for _, id := range []string{"one", "two"} {
		if err := s.Write(context.Background(), Record{ID: id, Status: "success"}); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		ids = append(ids, r.ID)
	}
	if diff := cmp.Diff([]string{"one", "two"}, ids); diff != "" {
		t.Fatalf("ids (-want +got):\n%s", diff)
	}
}

type memSink struct {
	mu      sync.Mutex
	records []Record
	closed  bool
	err     error
	gate    chan struct{}
}

func (m *memSink) Write(_ context.Context, r Record) error {
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return m.err
}

func (m *memSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func TestRecorder_DeliversToEverySink(t *testing.T) {
	a, b := &memSink{}, &memSink{err: errors.New("disk full")}
	r := NewRecorder(16, zaptest.NewLogger(t), a, b)

	for i := 0; i < 5; i++ {
		r.Record(Record{Status: "success"})
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	for _, s := range []*memSink{a, b} {
		if len(s.records) != 5 || !s.closed {
			t.Fatalf("sink got %d records, closed=%v", len(s.records), s.closed)
		}
	}
	if a.records[0].ID == "" || a.records[0].Time.IsZero() {
		t.Fatalf("id and time should be filled in: %+v", a.records[0])
	}
	// after Close records are dropped, not panicking
	r.Record(Record{Status: "late"})
	if r.Dropped() != 1 {
		t.Fatalf("dropped = %d", r.Dropped())
	}
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	s := &memSink{gate: make(chan struct{})}
	r := NewRecorder(1, zaptest.NewLogger(t), s)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			r.Record(Record{Status: "success"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Record blocked")
	}
	if r.Dropped() < 8 {
		t.Fatalf("expected at least 8 drops, got %d", r.Dropped())
	}

	close(s.gate)
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if int64(len(s.records))+r.Dropped() != 10 {
		t.Fatalf("delivered %d + dropped %d != 10", len(s.records), r.Dropped())
	}
}

func TestRecorder_Nil(t *testing.T) {
	var r *Recorder
	r.Record(Record{})
	if r.Dropped() != 0 {
		t.Fatalf("nil recorder dropped")
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
}
