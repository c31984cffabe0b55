package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type Config struct {
	Brokers []string
	Stream  string
	// Partitions and ReplicationFactor apply when the stream has to be
	// provisioned lazily.
	Partitions        int
	ReplicationFactor int
	// CreateAttempts bounds how long EnsureStream waits for the created
	// stream to become active.
	CreateAttempts int
}

// StreamInfo is the subset of stream metadata the store layer looks at when
// a write is throttled.
type StreamInfo struct {
	Stream     string
	Partitions int
}

// Publisher writes keyed records to one stream. The Hash balancer pins a
// record's partition to its key, so equal partition keys always land on the
// same shard.
type Publisher struct {
	writer         *kafka.Writer
	client         *kafka.Client
	stream         string
	partitions     int
	replication    int
	createAttempts int
}

func NewPublisher(cfg Config) *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Stream,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  5,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		Async:        false,
		// Provisioning is handled explicitly by EnsureStream so a missing
		// stream surfaces as a retryable error instead of an implicit create.
		AllowAutoTopicCreation: false,
	}

	c := &kafka.Client{
		Addr:    kafka.TCP(cfg.Brokers...),
		Timeout: 10 * time.Second,
	}

	partitions := cfg.Partitions
	if partitions <= 0 {
		partitions = 1
	}
	replication := cfg.ReplicationFactor
	if replication <= 0 {
		replication = 1
	}
	attempts := cfg.CreateAttempts
	if attempts <= 0 {
		attempts = 10
	}

	return &Publisher{
		writer:         w,
		client:         c,
		stream:         cfg.Stream,
		partitions:     partitions,
		replication:    replication,
		createAttempts: attempts,
	}
}

func (p *Publisher) Stream() string {
	return p.stream
}

func (p *Publisher) Publish(ctx context.Context, msgs ...kafka.Message) error {
	return p.writer.WriteMessages(ctx, msgs...)
}

// Send publishes a single keyed record. Convenience for callers that do not
// build kafka messages themselves.
func (p *Publisher) Send(ctx context.Context, key, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// EnsureStream creates the stream and waits until it has an elected leader
// for at least one partition, bounded by the configured attempt count.
// An already existing stream is not an error.
func (p *Publisher) EnsureStream(ctx context.Context) error {
	res, err := p.client.CreateTopics(ctx, &kafka.CreateTopicsRequest{
		Topics: []kafka.TopicConfig{{
			Topic:             p.stream,
			NumPartitions:     p.partitions,
			ReplicationFactor: p.replication,
		}},
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", p.stream, err)
	}

	if topicErr := res.Errors[p.stream]; topicErr != nil && !errors.Is(topicErr, kafka.TopicAlreadyExists) {
		return fmt.Errorf("create stream %s: %w", p.stream, topicErr)
	}

	for attempt := 0; attempt < p.createAttempts; attempt++ {
		info, err := p.Describe(ctx)
		if err == nil && info.Partitions > 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}

	return fmt.Errorf("stream %s did not become active after %d attempts", p.stream, p.createAttempts)
}

func (p *Publisher) Describe(ctx context.Context) (StreamInfo, error) {
	meta, err := p.client.Metadata(ctx, &kafka.MetadataRequest{
		Topics: []string{p.stream},
	})
	if err != nil {
		return StreamInfo{}, fmt.Errorf("describe stream %s: %w", p.stream, err)
	}

	for _, t := range meta.Topics {
		if t.Name != p.stream {
			continue
		}
		if t.Error != nil {
			return StreamInfo{}, fmt.Errorf("describe stream %s: %w", p.stream, t.Error)
		}
		return StreamInfo{Stream: p.stream, Partitions: len(t.Partitions)}, nil
	}

	return StreamInfo{}, fmt.Errorf("stream %s not found", p.stream)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
