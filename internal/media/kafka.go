package media

import (
	"context"
	"encoding/json"
	"fmt"

	kafka "github.com/segmentio/kafka-go"

	"matchflow/logger"
)

// KafkaGenerator publishes rendering jobs to a Kafka topic for deployments
// that already run a broker for downstream consumers.
type KafkaGenerator struct {
	writer *kafka.Writer
	log    *logger.Log
}

func NewKafkaGenerator(brokers []string, topic string) (*KafkaGenerator, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}

	g := &KafkaGenerator{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
		log: logger.GetLogger(),
	}

	g.log.WithComponent("media").WithFields(logger.Fields{
		"transport": "kafka",
		"brokers":   brokers,
		"topic":     topic,
	}).Info("media generator initialized")

	return g, nil
}

func (g *KafkaGenerator) Generate(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal media job: %w", err)
	}

	err = g.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(job.FixtureID),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("failed to write media job to kafka: %w", err)
	}

	logger.IncrementMediaJob()
	g.log.WithComponent("media").WithFields(logger.Fields{
		"job_id": job.ID,
		"kind":   job.Kind,
	}).Info("media job published")
	return nil
}

func (g *KafkaGenerator) Close() error {
	return g.writer.Close()
}
