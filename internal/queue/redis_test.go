package queue

import (
	"fmt"
	"sync"
	"testing"

	"matchflow/internal/models"
)

func TestRedisQueueBacklogConcurrentPop(t *testing.T) {
	q := &RedisQueue{}

	const total = 200
	for i := 0; i < total; i++ {
		q.pushBacklog(models.MatchBatch{MessageID: fmt.Sprintf("m-%d", i)})
	}

	const workers = 8
	results := make(chan string, total)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				batch, ok := q.popBacklog()
				if !ok {
					return
				}
				results <- batch.MessageID
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]int, total)
	for id := range results {
		seen[id]++
	}
	if len(seen) != total {
		t.Fatalf("expected %d distinct batches, got %d", total, len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("batch %s handed out %d times", id, n)
		}
	}
}

func TestRedisQueueBacklogConcurrentPushPop(t *testing.T) {
	q := &RedisQueue{}

	const total = 100
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			q.pushBacklog(models.MatchBatch{MessageID: fmt.Sprintf("m-%d", i)})
		}
	}()

	got := 0
	for got < total {
		if _, ok := q.popBacklog(); ok {
			got++
		}
	}
	wg.Wait()

	if _, ok := q.popBacklog(); ok {
		t.Fatal("backlog should be empty after draining")
	}
}
