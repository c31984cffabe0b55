// Package store defines the event persistence contracts consumed by the
// gateway and implemented by the streaming and overflow backends.
package store

import (
	"context"
	"fmt"

	"project/internal/domain/event"
)

// EventStore persists events durably. Both operations are fail-fast: there
// is no partial-success signal below batch granularity, and retry policy
// belongs to the caller.
type EventStore interface {
	Store(ctx context.Context, e *event.Event) error
	StoreBatch(ctx context.Context, events []*event.Event) error
}

// BulkStore is the out-of-band path for batches too large for the stream.
// The implementation owns the object-storage lifecycle once invoked.
type BulkStore interface {
	Upload(ctx context.Context, project string, events []*event.Event) error
}

// StorageError wraps any failure escaping a store. Retryable marks the
// missing-stream case where the stream was provisioned and the caller may
// redo the write.
type StorageError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
