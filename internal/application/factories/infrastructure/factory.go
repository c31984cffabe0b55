package infrastructure

import (
	"context"
	"fmt"
	"time"

	"project/internal/config"
	"project/internal/infrastructure/kafka"
	"project/internal/infrastructure/postgres"
	"project/internal/infrastructure/redis"
	infras3 "project/internal/infrastructure/s3"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	pgxpool "github.com/jackc/pgx/v5/pgxpool"
	go_redis "github.com/redis/go-redis/v9"
)

type Factory struct {
	cfg       *config.Config
	pgPool    *pgxpool.Pool
	redisCli  *go_redis.Client
	publisher *kafka.Publisher
	bulkProd  *kafka.Publisher
	s3Client  *awss3.Client
}

func NewFactory(cfg *config.Config) *Factory {
	return &Factory{
		cfg: cfg,
	}
}

func (f *Factory) Postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if f.pgPool != nil {
		return f.pgPool, nil
	}

	var pool *pgxpool.Pool
	var err error

	// Retry connection up to 5 times
	for i := 0; i < 5; i++ {
		pool, err = postgres.NewClient(ctx, postgres.Config{
			Host:     f.cfg.Postgres.Host,
			Port:     f.cfg.Postgres.Port,
			User:     f.cfg.Postgres.User,
			Password: f.cfg.Postgres.Password,
			DBName:   f.cfg.Postgres.DBName,
		})
		if err == nil {
			break
		}
		fmt.Printf("Failed to connect to postgres (attempt %d/5): %v. Retrying in 2s...\n", i+1, err)
		time.Sleep(2 * time.Second)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to init postgres after retries: %w", err)
	}

	f.pgPool = pool
	return pool, nil
}

func (f *Factory) Redis(ctx context.Context) (*go_redis.Client, error) {
	if f.redisCli != nil {
		return f.redisCli, nil
	}

	client, err := redis.NewClient(ctx, redis.Config{
		Addr: f.cfg.Redis.Addr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init redis: %w", err)
	}

	f.redisCli = client
	return client, nil
}

// StreamPublisher returns the publisher for the collected-events stream.
func (f *Factory) StreamPublisher() *kafka.Publisher {
	if f.publisher == nil {
		f.publisher = kafka.NewPublisher(kafka.Config{
			Brokers:           f.cfg.Kafka.Brokers,
			Stream:            f.cfg.Kafka.Stream,
			Partitions:        f.cfg.Kafka.StreamPartitions,
			ReplicationFactor: f.cfg.Kafka.ReplicationFactor,
		})
	}
	return f.publisher
}

// BulkPublisher returns the publisher for bulk-load notifications.
func (f *Factory) BulkPublisher() *kafka.Publisher {
	if f.bulkProd == nil {
		f.bulkProd = kafka.NewPublisher(kafka.Config{
			Brokers:           f.cfg.Kafka.Brokers,
			Stream:            f.cfg.Kafka.BulkTopic,
			ReplicationFactor: f.cfg.Kafka.ReplicationFactor,
		})
	}
	return f.bulkProd
}

func (f *Factory) S3(ctx context.Context) (*awss3.Client, error) {
	if f.s3Client != nil {
		return f.s3Client, nil
	}

	client, err := infras3.NewClient(ctx, infras3.Config{
		Region:   f.cfg.S3.Region,
		Endpoint: f.cfg.S3.Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init s3: %w", err)
	}

	f.s3Client = client
	return client, nil
}

func (f *Factory) Close() {
	if f.pgPool != nil {
		f.pgPool.Close()
	}
	if f.redisCli != nil {
		f.redisCli.Close()
	}
	if f.publisher != nil {
		f.publisher.Close()
	}
	if f.bulkProd != nil {
		f.bulkProd.Close()
	}
}
