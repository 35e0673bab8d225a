package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"matchflow/internal/models"
	"matchflow/logger"
)

// RedisQueue is a durable match-batch queue on a Redis Stream with a consumer
// group. Dequeued batches stay pending until acked, so batches that were in
// flight when the process died are redelivered on the next start.
type RedisQueue struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
	block    time.Duration
	log      *logger.Log

	// backlog holds messages already read from the stream but not yet
	// handed out, so Dequeue returns exactly one batch per call. Multiple
	// workers dequeue from the same queue; mu guards the slice.
	mu      sync.Mutex
	backlog []models.MatchBatch
}

func NewRedisQueue(client *redis.Client, stream, group, consumer string, block time.Duration) (*RedisQueue, error) {
	log := logger.GetLogger()

	q := &RedisQueue{
		client:   client,
		stream:   stream,
		group:    group,
		consumer: consumer,
		block:    block,
		log:      log,
	}

	err := client.XGroupCreateMkStream(context.Background(), stream, group, "0").Err()
	if err != nil && !isBusyGroupError(err) {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	log.WithComponent("match_queue").WithFields(logger.Fields{
		"stream":   stream,
		"group":    group,
		"consumer": consumer,
	}).Info("redis queue initialized")

	return q, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, batch models.MatchBatch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal match batch: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]interface{}{"payload": payload},
	}
	if err := q.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to XADD match batch: %w", err)
	}
	logger.RecordChannelMessage("match_queue", len(payload))
	return nil
}

// Dequeue returns one batch, reclaiming this consumer's pending entries
// before reading new ones. It blocks up to the configured interval and
// returns ErrEmpty when the stream stays idle.
func (q *RedisQueue) Dequeue(ctx context.Context) (models.MatchBatch, error) {
	if batch, ok := q.popBacklog(); ok {
		return batch, nil
	}

	if err := q.reclaimPending(ctx); err != nil {
		q.log.WithComponent("match_queue").WithError(err).Warn("failed to reclaim pending entries")
	}
	if batch, ok := q.popBacklog(); ok {
		return batch, nil
	}

	args := &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    q.block,
	}

	streams, err := q.client.XReadGroup(ctx, args).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.MatchBatch{}, ErrEmpty
		}
		return models.MatchBatch{}, fmt.Errorf("failed to XREADGROUP: %w", err)
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			batch, ok := q.decode(msg)
			if !ok {
				continue
			}
			q.pushBacklog(batch)
		}
	}

	if batch, ok := q.popBacklog(); ok {
		return batch, nil
	}
	return models.MatchBatch{}, ErrEmpty
}

func (q *RedisQueue) pushBacklog(batch models.MatchBatch) {
	q.mu.Lock()
	q.backlog = append(q.backlog, batch)
	q.mu.Unlock()
}

func (q *RedisQueue) popBacklog() (models.MatchBatch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.backlog) == 0 {
		return models.MatchBatch{}, false
	}
	batch := q.backlog[0]
	q.backlog = q.backlog[1:]
	return batch, true
}

func (q *RedisQueue) reclaimPending(ctx context.Context) error {
	msgs, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: q.consumer,
		MinIdle:  time.Minute,
		Start:    "0-0",
		Count:    16,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}
	for _, msg := range msgs {
		batch, ok := q.decode(msg)
		if !ok {
			continue
		}
		q.pushBacklog(batch)
	}
	return nil
}

func (q *RedisQueue) decode(msg redis.XMessage) (models.MatchBatch, bool) {
	payload, ok := msg.Values["payload"].(string)
	if !ok {
		q.log.WithComponent("match_queue").WithFields(logger.Fields{
			"message_id": msg.ID,
		}).Warn("invalid message format in stream, skipping")
		return models.MatchBatch{}, false
	}

	var batch models.MatchBatch
	if err := json.Unmarshal([]byte(payload), &batch); err != nil {
		q.log.WithComponent("match_queue").WithError(err).WithFields(logger.Fields{
			"message_id": msg.ID,
		}).Warn("failed to unmarshal match batch from stream, skipping")
		return models.MatchBatch{}, false
	}
	batch.MessageID = msg.ID
	return batch, true
}

func (q *RedisQueue) Ack(ctx context.Context, messageID string) error {
	if messageID == "" {
		return nil
	}
	if err := q.client.XAck(ctx, q.stream, q.group, messageID).Err(); err != nil {
		return fmt.Errorf("failed to XACK message: %w", err)
	}
	return nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func isBusyGroupError(err error) bool {
	return err != nil && err.Error() == "BUSYGROUP Consumer Group name already exists"
}
