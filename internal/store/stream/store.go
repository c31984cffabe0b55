// Package stream implements the principal event store on top of a managed
// Kafka stream. Events are keyed by project|collection, batches are chunked
// into bounded multi-record submissions, and oversized batches are handed
// to the bulk overflow store instead.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"project/internal/domain/event"
	infrakafka "project/internal/infrastructure/kafka"
	"project/internal/store"

	"github.com/segmentio/kafka-go"
)

const (
	// DefaultBatchSize caps how many records go into one submission.
	DefaultBatchSize = 500
	// DefaultBulkThreshold is the batch size at which the whole batch is
	// delegated to the bulk store.
	DefaultBulkThreshold = 50000
)

// StreamClient is the transport seam to the streaming service, implemented
// by infrastructure/kafka.Publisher.
type StreamClient interface {
	Stream() string
	Publish(ctx context.Context, msgs ...kafka.Message) error
	EnsureStream(ctx context.Context) error
	Describe(ctx context.Context) (infrakafka.StreamInfo, error)
}

type Options struct {
	BatchSize     int
	BulkThreshold int
	BufferSize    int
	Logger        *slog.Logger
}

type Store struct {
	client        StreamClient
	bulk          store.BulkStore
	batchSize     int
	bulkThreshold int
	buffers       *bufferPool
	logger        *slog.Logger
}

func New(client StreamClient, bulk store.BulkStore, opts Options) *Store {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	bulkThreshold := opts.BulkThreshold
	if bulkThreshold <= 0 {
		bulkThreshold = DefaultBulkThreshold
	}
	bufferSize := opts.BufferSize
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		client:        client,
		bulk:          bulk,
		batchSize:     batchSize,
		bulkThreshold: bulkThreshold,
		buffers:       newBufferPool(bufferSize),
		logger:        logger,
	}
}

func (s *Store) Store(ctx context.Context, e *event.Event) error {
	b := s.buffers.get()
	defer s.buffers.put(b)

	data, err := encode(b, e)
	if err != nil {
		return &store.StorageError{Op: "serialize event", Err: err}
	}

	err = s.client.Publish(ctx, kafka.Message{
		Key:   []byte(e.PartitionKey()),
		Value: data,
	})
	if b.remaining() < lowWaterMark {
		b.rewind()
	}
	if err == nil {
		return nil
	}
	if isMissingStream(err) {
		return s.provision(ctx, err)
	}
	return &store.StorageError{Op: "put record", Err: err}
}

func (s *Store) StoreBatch(ctx context.Context, events []*event.Event) error {
	if len(events) == 0 {
		return nil
	}

	if len(events) >= s.bulkThreshold {
		// Overflow path: the batch is keyed by its project and never
		// touches the stream.
		if err := s.bulk.Upload(ctx, events[0].Project, events); err != nil {
			return &store.StorageError{Op: "bulk upload", Err: err}
		}
		return nil
	}

	b := s.buffers.get()
	defer s.buffers.put(b)

	for cursor := 0; cursor < len(events); {
		n := len(events) - cursor
		if n > s.batchSize {
			n = s.batchSize
		}
		if err := s.submitChunk(ctx, b, events[cursor:cursor+n]); err != nil {
			return err
		}
		cursor += n
	}

	return nil
}

// submitChunk serializes every event of the chunk into the scratch buffer
// and publishes them as one multi-record request. The buffer may rewind
// only after the submission, when all segments have been transmitted.
func (s *Store) submitChunk(ctx context.Context, b *scratch, chunk []*event.Event) error {
	msgs := make([]kafka.Message, len(chunk))
	for i, e := range chunk {
		data, err := encode(b, e)
		if err != nil {
			return &store.StorageError{Op: "serialize event", Err: err}
		}
		msgs[i] = kafka.Message{
			Key:   []byte(e.PartitionKey()),
			Value: data,
		}
	}

	err := s.client.Publish(ctx, msgs...)
	if b.remaining() < lowWaterMark {
		b.rewind()
	}
	if err == nil {
		return nil
	}

	if isMissingStream(err) {
		return s.provision(ctx, err)
	}

	var writeErrs kafka.WriteErrors
	if errors.As(err, &writeErrs) {
		if hasThrottling(writeErrs) {
			// Hook point for shard scaling: inspect the stream before
			// giving up so operators see its current layout.
			if info, derr := s.client.Describe(ctx); derr == nil {
				s.logger.Warn("stream write throttled",
					"stream", s.client.Stream(),
					"partitions", info.Partitions)
			}
		}
		return &store.StorageError{
			Op:  "put records",
			Err: fmt.Errorf("failed to put records to %s: %s", s.client.Stream(), summarize(writeErrs)),
		}
	}

	return &store.StorageError{Op: "put records", Err: err}
}

// provision lazily creates the missing stream and surfaces a retryable
// error rather than silently redoing the write.
func (s *Store) provision(ctx context.Context, cause error) error {
	if err := s.client.EnsureStream(ctx); err != nil {
		return &store.StorageError{
			Op:  "provision stream",
			Err: fmt.Errorf("couldn't send event to stream: %w", err),
		}
	}
	return &store.StorageError{
		Op:        "put records",
		Retryable: true,
		Err:       fmt.Errorf("stream %s was missing and has been created, retry the write: %w", s.client.Stream(), cause),
	}
}

// encode serializes the event into the scratch buffer and returns the
// written segment without copying it out.
func encode(b *scratch, e *event.Event) ([]byte, error) {
	start := b.position()
	if err := json.NewEncoder(b).Encode(e); err != nil {
		return nil, fmt.Errorf("couldn't serialize event: %w", err)
	}
	end := b.position()
	// json.Encoder terminates every value with a newline; keep it out of
	// the record.
	if end > start && b.buf[end-1] == '\n' {
		end--
	}
	return b.segment(start, end), nil
}

func isMissingStream(err error) bool {
	var writeErrs kafka.WriteErrors
	if errors.As(err, &writeErrs) {
		for _, we := range writeErrs {
			if we == nil {
				continue
			}
			var ke kafka.Error
			if errors.As(we, &ke) && ke == kafka.UnknownTopicOrPartition {
				return true
			}
		}
		return false
	}

	var ke kafka.Error
	return errors.As(err, &ke) && ke == kafka.UnknownTopicOrPartition
}

func hasThrottling(errs kafka.WriteErrors) bool {
	for _, we := range errs {
		var ke kafka.Error
		if errors.As(we, &ke) && ke == kafka.ThrottlingQuotaExceeded {
			return true
		}
	}
	return false
}

// summarize aggregates per-record failures into a human readable
// "N items for CODE" listing, preserving first-seen order.
func summarize(errs kafka.WriteErrors) string {
	counts := make(map[string]int)
	var order []string
	for _, we := range errs {
		if we == nil {
			continue
		}
		code := errorCode(we)
		if _, seen := counts[code]; !seen {
			order = append(order, code)
		}
		counts[code]++
	}

	parts := make([]string, 0, len(order))
	for _, code := range order {
		parts = append(parts, fmt.Sprintf("%d items for %s", counts[code], code))
	}
	return strings.Join(parts, ", ")
}

func errorCode(err error) string {
	var ke kafka.Error
	if errors.As(err, &ke) {
		return ke.Title()
	}
	return err.Error()
}
