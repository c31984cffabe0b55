package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"project/internal/domain/event"
	infrakafka "project/internal/infrastructure/kafka"
	"project/internal/store"

	"github.com/segmentio/kafka-go"
)

// fakeStreamClient records every submission. Message values are copied at
// publish time, the way a real transport drains them onto the wire.
type fakeStreamClient struct {
	publishCalls  int
	chunkSizes    []int
	keys          []string
	values        [][]byte
	publishErrs   []error
	ensureCalls   int
	ensureErr     error
	describeCalls int
}

func (f *fakeStreamClient) Stream() string { return "collected-events" }

func (f *fakeStreamClient) Publish(_ context.Context, msgs ...kafka.Message) error {
	f.publishCalls++
	f.chunkSizes = append(f.chunkSizes, len(msgs))
	for _, m := range msgs {
		f.keys = append(f.keys, string(m.Key))
		f.values = append(f.values, append([]byte(nil), m.Value...))
	}
	if len(f.publishErrs) > 0 {
		err := f.publishErrs[0]
		f.publishErrs = f.publishErrs[1:]
		return err
	}
	return nil
}

func (f *fakeStreamClient) EnsureStream(context.Context) error {
	f.ensureCalls++
	return f.ensureErr
}

func (f *fakeStreamClient) Describe(context.Context) (infrakafka.StreamInfo, error) {
	f.describeCalls++
	return infrakafka.StreamInfo{Stream: "collected-events", Partitions: 4}, nil
}

type fakeBulkStore struct {
	calls   int
	project string
	count   int
	err     error
}

func (f *fakeBulkStore) Upload(_ context.Context, project string, events []*event.Event) error {
	f.calls++
	f.project = project
	f.count = len(events)
	return f.err
}

func makeEvents(n int) []*event.Event {
	events := make([]*event.Event, n)
	for i := range events {
		events[i] = &event.Event{
			Project:    "crm",
			Collection: "pageview",
			Properties: map[string]any{"seq": i},
		}
	}
	return events
}

func TestStorePublishesOneKeyedRecord(t *testing.T) {
	client := &fakeStreamClient{}
	s := New(client, &fakeBulkStore{}, Options{})

	e := &event.Event{Project: "crm", Collection: "pageview"}
	if err := s.Store(context.Background(), e); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	if client.publishCalls != 1 {
		t.Fatalf("publish calls = %d, want 1", client.publishCalls)
	}
	if client.keys[0] != "crm|pageview" {
		t.Errorf("partition key = %q, want crm|pageview", client.keys[0])
	}

	var decoded event.Event
	if err := json.Unmarshal(client.values[0], &decoded); err != nil {
		t.Fatalf("record value is not valid JSON: %v", err)
	}
	if decoded.Project != "crm" || decoded.Collection != "pageview" {
		t.Errorf("decoded event = %+v", decoded)
	}
}

func TestStoreBatchChunking(t *testing.T) {
	tests := []struct {
		name        string
		events      int
		wantChunks  []int
		wantPublish int
	}{
		{name: "empty is a no-op", events: 0, wantPublish: 0},
		{name: "single chunk", events: 3, wantChunks: []int{3}, wantPublish: 1},
		{name: "exactly one full chunk", events: 500, wantChunks: []int{500}, wantPublish: 1},
		{name: "ceil division", events: 1200, wantChunks: []int{500, 500, 200}, wantPublish: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeStreamClient{}
			s := New(client, &fakeBulkStore{}, Options{})

			if err := s.StoreBatch(context.Background(), makeEvents(tt.events)); err != nil {
				t.Fatalf("StoreBatch() error = %v", err)
			}

			if client.publishCalls != tt.wantPublish {
				t.Fatalf("publish calls = %d, want %d", client.publishCalls, tt.wantPublish)
			}
			for i, want := range tt.wantChunks {
				if client.chunkSizes[i] != want {
					t.Errorf("chunk %d size = %d, want %d", i, client.chunkSizes[i], want)
				}
			}
		})
	}
}

func TestStoreBatchDelegatesOversizeToBulkStore(t *testing.T) {
	client := &fakeStreamClient{}
	bulk := &fakeBulkStore{}
	s := New(client, bulk, Options{BulkThreshold: 10})

	if err := s.StoreBatch(context.Background(), makeEvents(10)); err != nil {
		t.Fatalf("StoreBatch() error = %v", err)
	}

	if client.publishCalls != 0 {
		t.Errorf("publish calls = %d, want 0 on overflow path", client.publishCalls)
	}
	if bulk.calls != 1 {
		t.Fatalf("bulk upload calls = %d, want 1", bulk.calls)
	}
	if bulk.project != "crm" {
		t.Errorf("bulk project = %q, want first event's project", bulk.project)
	}
	if bulk.count != 10 {
		t.Errorf("bulk event count = %d, want 10", bulk.count)
	}
}

func TestStoreBatchBulkFailureIsStorageError(t *testing.T) {
	bulk := &fakeBulkStore{err: errors.New("bucket unreachable")}
	s := New(&fakeStreamClient{}, bulk, Options{BulkThreshold: 2})

	err := s.StoreBatch(context.Background(), makeEvents(3))

	var storageErr *store.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("error = %v, want *store.StorageError", err)
	}
	if storageErr.Retryable {
		t.Error("bulk failure marked retryable")
	}
}

func TestMissingStreamIsProvisionedAndRetryable(t *testing.T) {
	client := &fakeStreamClient{publishErrs: []error{kafka.UnknownTopicOrPartition}}
	s := New(client, &fakeBulkStore{}, Options{})

	err := s.StoreBatch(context.Background(), makeEvents(3))

	if client.ensureCalls != 1 {
		t.Errorf("ensure calls = %d, want lazy provisioning", client.ensureCalls)
	}

	var storageErr *store.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("error = %v, want *store.StorageError", err)
	}
	if !storageErr.Retryable {
		t.Error("missing-stream error not marked retryable")
	}
}

func TestProvisioningFailureIsFatal(t *testing.T) {
	client := &fakeStreamClient{
		publishErrs: []error{kafka.UnknownTopicOrPartition},
		ensureErr:   errors.New("create denied"),
	}
	s := New(client, &fakeBulkStore{}, Options{})

	err := s.Store(context.Background(), makeEvents(1)[0])

	var storageErr *store.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("error = %v, want *store.StorageError", err)
	}
	if storageErr.Retryable {
		t.Error("failed provisioning marked retryable")
	}
}

func TestPartialFailuresAreAggregatedByErrorCode(t *testing.T) {
	writeErrs := kafka.WriteErrors{
		kafka.RequestTimedOut,
		kafka.RequestTimedOut,
		kafka.MessageSizeTooLarge,
	}
	client := &fakeStreamClient{publishErrs: []error{writeErrs}}
	s := New(client, &fakeBulkStore{}, Options{})

	err := s.StoreBatch(context.Background(), makeEvents(3))
	if err == nil {
		t.Fatal("StoreBatch() error = nil, want aggregated failure")
	}

	msg := err.Error()
	if !strings.Contains(msg, fmt.Sprintf("2 items for %s", kafka.RequestTimedOut.Title())) {
		t.Errorf("summary missing timed-out aggregate: %v", msg)
	}
	if !strings.Contains(msg, fmt.Sprintf("1 items for %s", kafka.MessageSizeTooLarge.Title())) {
		t.Errorf("summary missing size aggregate: %v", msg)
	}
	if client.describeCalls != 0 {
		t.Errorf("describe calls = %d, want 0 without throttling", client.describeCalls)
	}
}

func TestThrottlingTriggersStreamDescription(t *testing.T) {
	writeErrs := kafka.WriteErrors{kafka.ThrottlingQuotaExceeded}
	client := &fakeStreamClient{publishErrs: []error{writeErrs}}
	s := New(client, &fakeBulkStore{}, Options{})

	err := s.StoreBatch(context.Background(), makeEvents(1))
	if err == nil {
		t.Fatal("StoreBatch() error = nil, want throttling failure")
	}
	if client.describeCalls != 1 {
		t.Errorf("describe calls = %d, want 1 on throttling", client.describeCalls)
	}
}

// Reusing one scratch buffer across chunks must never corrupt records that
// were already handed to the transport.
func TestBufferReuseDoesNotCorruptTransmittedRecords(t *testing.T) {
	client := &fakeStreamClient{}
	s := New(client, &fakeBulkStore{}, Options{BatchSize: 2, BufferSize: 64})

	events := makeEvents(6)
	if err := s.StoreBatch(context.Background(), events); err != nil {
		t.Fatalf("StoreBatch() error = %v", err)
	}

	if len(client.values) != 6 {
		t.Fatalf("transmitted %d records, want 6", len(client.values))
	}
	for i, value := range client.values {
		var decoded event.Event
		if err := json.Unmarshal(value, &decoded); err != nil {
			t.Fatalf("record %d corrupted: %v", i, err)
		}
		if seq := decoded.Properties["seq"]; seq != float64(i) {
			t.Errorf("record %d has seq %v, order or content corrupted", i, seq)
		}
	}
}
