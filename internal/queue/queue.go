package queue

import (
	"context"
	"sync"

	"matchflow/internal/models"
	"matchflow/logger"
)

// Queue decouples the feed client from the processor. Enqueue order is
// preserved as dequeue order; implementations that support delivery
// acknowledgement redeliver unacked batches after a restart.
type Queue interface {
	Enqueue(ctx context.Context, batch models.MatchBatch) error
	Dequeue(ctx context.Context) (models.MatchBatch, error)
	Ack(ctx context.Context, messageID string) error
	Close() error
}

type Stats struct {
	Enqueued int64
	Dequeued int64
}

// MemoryQueue is a buffered in-process FIFO. It offers no durability across
// restarts; deployments that need redelivery use the redis backend.
type MemoryQueue struct {
	ch chan models.MatchBatch

	stats      Stats
	statsMutex sync.RWMutex
	closeOnce  sync.Once
	log        *logger.Log
}

func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 1
	}
	log := logger.GetLogger()
	q := &MemoryQueue{
		ch:  make(chan models.MatchBatch, buffer),
		log: log,
	}

	log.WithComponent("match_queue").WithFields(logger.Fields{
		"buffer": buffer,
	}).Info("memory queue initialized")

	return q
}

// Enqueue blocks until the batch is accepted or the context is cancelled.
// Batches are never dropped silently.
func (q *MemoryQueue) Enqueue(ctx context.Context, batch models.MatchBatch) error {
	select {
	case q.ch <- batch:
		q.statsMutex.Lock()
		q.stats.Enqueued++
		q.statsMutex.Unlock()
		logger.RecordChannelMessage("match_queue", len(batch.Raw))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (models.MatchBatch, error) {
	select {
	case batch, ok := <-q.ch:
		if !ok {
			return models.MatchBatch{}, ErrClosed
		}
		q.statsMutex.Lock()
		q.stats.Dequeued++
		q.statsMutex.Unlock()
		return batch, nil
	case <-ctx.Done():
		return models.MatchBatch{}, ctx.Err()
	}
}

// Ack is a no-op; an in-memory batch is gone once dequeued.
func (q *MemoryQueue) Ack(ctx context.Context, messageID string) error {
	return nil
}

func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() {
		close(q.ch)
		q.log.WithComponent("match_queue").Info("memory queue closed")
	})
	return nil
}

func (q *MemoryQueue) GetStats() Stats {
	q.statsMutex.RLock()
	defer q.statsMutex.RUnlock()
	return q.stats
}
