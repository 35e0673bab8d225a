package media

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"matchflow/logger"
)

// RedisGenerator publishes rendering jobs onto a Redis Stream consumed by the
// rendering workers.
type RedisGenerator struct {
	client *redis.Client
	stream string
	log    *logger.Log
}

func NewRedisGenerator(client *redis.Client, stream string) *RedisGenerator {
	log := logger.GetLogger()
	log.WithComponent("media").WithFields(logger.Fields{
		"transport": "redis",
		"stream":    stream,
	}).Info("media generator initialized")

	return &RedisGenerator{client: client, stream: stream, log: log}
}

func (g *RedisGenerator) Generate(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal media job: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: g.stream,
		Values: map[string]interface{}{"payload": payload},
	}
	if err := g.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to XADD media job: %w", err)
	}

	logger.IncrementMediaJob()
	g.log.WithComponent("media").WithFields(logger.Fields{
		"job_id": job.ID,
		"kind":   job.Kind,
	}).Info("media job published")
	return nil
}

func (g *RedisGenerator) Close() error {
	return g.client.Close()
}
