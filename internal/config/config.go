package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	App      App      `yaml:"app"`
	HTTP     HTTP     `yaml:"http"`
	Log      Log      `yaml:"log"`
	Postgres Postgres `yaml:"postgres"`
	Redis    Redis    `yaml:"redis"`
	Kafka    Kafka    `yaml:"kafka"`
	S3       S3       `yaml:"s3"`
	Loader   Loader   `yaml:"loader"`
}

type App struct {
	Name    string `yaml:"name" env:"APP_NAME" env-default:"event-gateway"`
	Version string `yaml:"version" env:"APP_VERSION" env-default:"1.0.0"`
}

type HTTP struct {
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"9990"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type Postgres struct {
	Host     string `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"POSTGRES_USER" env-default:"user"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD" env-default:"password"`
	DBName   string `yaml:"dbname" env:"POSTGRES_DB" env-default:"gateway_db"`
}

type Redis struct {
	Addr string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	// PermissionTTL bounds how long a write-key decision may be served from
	// cache before the metastore is consulted again.
	PermissionTTL time.Duration `yaml:"permission_ttl" env:"REDIS_PERMISSION_TTL" env-default:"1m"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	// Stream is the topic all collected events are written to.
	Stream string `yaml:"stream" env:"KAFKA_STREAM" env-default:"collected-events"`
	// BulkTopic receives load notifications for batches that went through
	// the S3 overflow path instead of the stream.
	BulkTopic         string `yaml:"bulk_topic" env:"KAFKA_BULK_TOPIC" env-default:"bulk-uploads"`
	BatchSize         int    `yaml:"batch_size" env:"KAFKA_BATCH_SIZE" env-default:"500"`
	BulkThreshold     int    `yaml:"bulk_threshold" env:"KAFKA_BULK_THRESHOLD" env-default:"50000"`
	StreamPartitions  int    `yaml:"stream_partitions" env:"KAFKA_STREAM_PARTITIONS" env-default:"4"`
	ReplicationFactor int    `yaml:"replication_factor" env:"KAFKA_REPLICATION_FACTOR" env-default:"1"`
}

type S3 struct {
	Region string `yaml:"region" env:"S3_REGION" env-default:"us-east-1"`
	Bucket string `yaml:"bucket" env:"S3_BUCKET" env-default:"event-gateway-bulk"`
	// Endpoint overrides the AWS endpoint, e.g. for MinIO or localstack.
	Endpoint string `yaml:"endpoint" env:"S3_ENDPOINT" env-default:""`
}

type Loader struct {
	Interval  time.Duration `yaml:"interval" env:"LOADER_INTERVAL" env-default:"2s"`
	BatchSize int           `yaml:"batch_size" env:"LOADER_BATCH_SIZE" env-default:"10"`
}

func New() (*Config, error) {
	cfg := &Config{}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		// fallback to env vars if file not found
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	} else {
		// Allow env vars to override config file
		cleanenv.ReadEnv(cfg)
	}

	return cfg, nil
}
