package processor

import (
	"context"
	"math/rand"
	"os"
	"sync"
	"testing"
	"time"

	"matchflow/config"
	"matchflow/internal/models"
	"matchflow/internal/queue"
	"matchflow/writer"
)

// fakeSink records appended rows.
type fakeSink struct {
	mu   sync.Mutex
	rows [][]any
}

func (s *fakeSink) AppendRow(ctx context.Context, row []any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return nil
}

func (s *fakeSink) all() [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]any, len(s.rows))
	copy(out, s.rows)
	return out
}

func testProcessor(flags *config.FeatureFlags, q queue.Queue, sink *fakeSink) *Processor {
	cfg := config.ProcessorConfig{MaxWorkers: 1}
	sinkCfg := config.SinkConfig{DelayMin: time.Millisecond, DelayMax: 2 * time.Millisecond}
	enricher := NewEnricher(fullCatalog(), &fakeGenerator{}, nil, flags)
	return NewProcessor(cfg, sinkCfg, flags, q, enricher, sink, nil, nil)
}

func TestProcessorStartStop(t *testing.T) {
	q := queue.NewMemoryQueue(1)
	p := testProcessor(&config.FeatureFlags{}, q, &fakeSink{})

	ctx, cancel := context.WithCancel(context.Background())
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.Start(ctx); err == nil {
		t.Fatal("expected error on second start")
	}
	cancel()
	p.Stop()
}

func TestProcessorDrainsQueue(t *testing.T) {
	q := queue.NewMemoryQueue(4)
	sink := &fakeSink{}
	p := testProcessor(&config.FeatureFlags{SaveToSheet: true}, q, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	batch := models.MatchBatch{
		FixtureID: "fx-1",
		FeedName:  models.FeedMatchEvent,
		Events: []models.RawEvent{
			{ID: 1, TypeID: 1, ContestantID: "t1", PlayerID: "p1"},
			{ID: 2, TypeID: 1, ContestantID: "t1", PlayerID: "p1"},
		},
	}
	if err := q.Enqueue(ctx, batch); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for len(sink.all()) < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected 2 sink rows, got %d", len(sink.all()))
		case <-time.After(10 * time.Millisecond):
		}
	}

	rows := sink.all()
	if rows[0][1] != "Player B" || rows[0][2] != "Team A" {
		t.Fatalf("unexpected row: %v", rows[0])
	}

	cancel()
	p.Stop()
}

// primeContexts prepares a processor for direct processBatch calls without
// running workers.
func primeContexts(t *testing.T, p *Processor) {
	t.Helper()
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.drainCtx, p.drainCancel = context.WithCancel(context.Background())
	t.Cleanup(p.cancel)
	t.Cleanup(p.drainCancel)
}

func TestProcessBatchSkipsMalformed(t *testing.T) {
	q := queue.NewMemoryQueue(1)
	sink := &fakeSink{}
	p := testProcessor(&config.FeatureFlags{SaveToSheet: true}, q, sink)
	primeContexts(t, p)

	batch := models.MatchBatch{
		FixtureID: "fx-1",
		FeedName:  models.FeedMatchEvent,
		Events: []models.RawEvent{
			{ID: 0, TypeID: 1},
			{ID: 1, TypeID: 0},
			{ID: 2, TypeID: 1, ContestantID: "t1", PlayerID: "p1"},
		},
	}

	rng := rand.New(rand.NewSource(1))
	processed := p.processBatch(rng, batch)
	if processed != 1 {
		t.Fatalf("expected 1 processed event, got %d", processed)
	}
	if len(sink.all()) != 1 {
		t.Fatalf("expected 1 sink row, got %d", len(sink.all()))
	}
}

func TestProcessBatchSheetDisabled(t *testing.T) {
	q := queue.NewMemoryQueue(1)
	sink := &fakeSink{}
	p := testProcessor(&config.FeatureFlags{}, q, sink)
	primeContexts(t, p)

	batch := models.MatchBatch{
		FixtureID: "fx-1",
		FeedName:  models.FeedMatchEvent,
		Events:    []models.RawEvent{{ID: 1, TypeID: 1}},
	}

	rng := rand.New(rand.NewSource(1))
	if processed := p.processBatch(rng, batch); processed != 1 {
		t.Fatalf("expected 1 processed event, got %d", processed)
	}
	if len(sink.all()) != 0 {
		t.Fatalf("sink disabled but %d rows written", len(sink.all()))
	}
}

// ctxSink fails like a real HTTP sink would once its context is cancelled,
// and signals after the first accepted row.
type ctxSink struct {
	mu    sync.Mutex
	rows  [][]any
	first chan struct{}
	once  sync.Once
}

func (s *ctxSink) AppendRow(ctx context.Context, row []any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.rows = append(s.rows, row)
	s.mu.Unlock()
	s.once.Do(func() { close(s.first) })
	return nil
}

func (s *ctxSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func TestStopFinishesInFlightBatch(t *testing.T) {
	q := queue.NewMemoryQueue(1)
	sink := &ctxSink{first: make(chan struct{})}
	flags := &config.FeatureFlags{SaveToSheet: true}
	cfg := config.ProcessorConfig{MaxWorkers: 1}
	sinkCfg := config.SinkConfig{DelayMin: time.Millisecond, DelayMax: 2 * time.Millisecond}
	enricher := NewEnricher(fullCatalog(), &fakeGenerator{}, nil, flags)
	p := NewProcessor(cfg, sinkCfg, flags, q, enricher, sink, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	batch := models.MatchBatch{
		FixtureID: "fx-1",
		FeedName:  models.FeedMatchEvent,
		Events: []models.RawEvent{
			{ID: 1, TypeID: 1, ContestantID: "t1", PlayerID: "p1"},
			{ID: 2, TypeID: 1, ContestantID: "t1", PlayerID: "p1"},
			{ID: 3, TypeID: 1, ContestantID: "t1", PlayerID: "p1"},
		},
	}
	if err := q.Enqueue(ctx, batch); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case <-sink.first:
	case <-time.After(2 * time.Second):
		t.Fatal("no row appended")
	}

	// Stop while the batch is mid-flight; the remaining events must still
	// reach the sink.
	p.Stop()
	if got := sink.count(); got != 3 {
		t.Fatalf("expected all 3 rows after stop, got %d", got)
	}
}

func TestProcessBatchLivescoreGate(t *testing.T) {
	cases := []struct {
		name     string
		feed     string
		flag     bool
		expected int
	}{
		{"livescore feed with flag", models.FeedLiveScore, true, 1},
		{"livescore feed without flag", models.FeedLiveScore, false, 0},
		{"authoritative feed with flag", models.FeedMatchEvent, true, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			q := queue.NewMemoryQueue(1)
			flags := &config.FeatureFlags{SaveLivescoreEvents: tc.flag}
			cfg := config.ProcessorConfig{MaxWorkers: 1}
			sinkCfg := config.SinkConfig{DelayMin: time.Millisecond, DelayMax: 2 * time.Millisecond}
			enricher := NewEnricher(fullCatalog(), &fakeGenerator{}, nil, flags)
			store := writer.NewLivescoreStore(dir)
			p := NewProcessor(cfg, sinkCfg, flags, q, enricher, nil, store, nil)
			primeContexts(t, p)

			batch := models.MatchBatch{
				FixtureID: "fx-1",
				FeedName:  tc.feed,
				Events:    []models.RawEvent{{ID: 1, TypeID: 1}},
				Raw:       []byte(`{"seq":1}`),
			}
			p.processBatch(rand.New(rand.NewSource(1)), batch)

			entries, err := os.ReadDir(dir)
			if err != nil {
				t.Fatalf("read dir: %v", err)
			}
			if len(entries) != tc.expected {
				t.Fatalf("expected %d archive files, got %d", tc.expected, len(entries))
			}
		})
	}
}

func TestProcessorStopsOnClosedQueue(t *testing.T) {
	q := queue.NewMemoryQueue(1)
	p := testProcessor(&config.FeatureFlags{}, q, &fakeSink{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	q.Close()

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("processor did not stop after queue close")
	}
}

func TestPaceHonorsShutdown(t *testing.T) {
	q := queue.NewMemoryQueue(1)
	p := testProcessor(&config.FeatureFlags{}, q, &fakeSink{})
	p.sinkCfg.DelayMin = time.Hour
	p.sinkCfg.DelayMax = 2 * time.Hour

	primeContexts(t, p)
	p.drainCancel()

	done := make(chan struct{})
	go func() {
		p.pace(rand.New(rand.NewSource(1)))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pace did not honor cancelled context")
	}
}
