package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"matchflow/internal/models"
)

func TestMemoryQueueFIFO(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		batch := models.MatchBatch{FixtureID: fmt.Sprintf("fx-%d", i)}
		if err := q.Enqueue(ctx, batch); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	for i := 0; i < 3; i++ {
		batch, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("dequeue %d: %v", i, err)
		}
		if want := fmt.Sprintf("fx-%d", i); batch.FixtureID != want {
			t.Fatalf("expected %s, got %s", want, batch.FixtureID)
		}
	}

	stats := q.GetStats()
	if stats.Enqueued != 3 || stats.Dequeued != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestMemoryQueueEnqueueBlocksUntilCancel(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx := context.Background()

	if err := q.Enqueue(ctx, models.MatchBatch{FixtureID: "fx-0"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	blocked, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := q.Enqueue(blocked, models.MatchBatch{FixtureID: "fx-1"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded on full queue, got %v", err)
	}
}

func TestMemoryQueueDequeueCancel(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := q.Dequeue(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded on empty queue, got %v", err)
	}
}

func TestMemoryQueueClose(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx := context.Background()

	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Closing twice must not panic.
	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if _, err := q.Dequeue(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}

func TestMemoryQueueAckNoop(t *testing.T) {
	q := NewMemoryQueue(1)
	if err := q.Ack(context.Background(), "any"); err != nil {
		t.Fatalf("ack: %v", err)
	}
}
