// Package bulk implements the overflow store: oversized batches are written
// to object storage as a single JSON object and recorded for the batch-load
// pipeline, bypassing the stream entirely.
package bulk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"project/internal/domain/bulkupload"
	"project/internal/domain/event"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ObjectPutter is the slice of the S3 API the store uses; *s3.Client
// satisfies it.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// UploadRecorder persists the upload row the loader later claims.
type UploadRecorder interface {
	Create(ctx context.Context, u *bulkupload.Upload) error
}

type Store struct {
	objects ObjectPutter
	bucket  string
	uploads UploadRecorder
	logger  *slog.Logger
}

func New(objects ObjectPutter, bucket string, uploads UploadRecorder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		objects: objects,
		bucket:  bucket,
		uploads: uploads,
		logger:  logger,
	}
}

// Upload durably writes the whole batch for one project out of band.
// The object must exist before the row does, so a crashed upload leaves at
// worst an orphan object, never a dangling load notification.
func (s *Store) Upload(ctx context.Context, project string, events []*event.Event) error {
	if len(events) == 0 {
		return nil
	}

	id := uuid.New().String()
	key := fmt.Sprintf("bulk/%s/%s.json", project, id)

	body, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("marshal bulk events: %w", err)
	}

	_, err = s.objects.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return fmt.Errorf("put bulk object %s: %w", key, err)
	}

	u := &bulkupload.Upload{
		ID:         id,
		Project:    project,
		ObjectKey:  key,
		EventCount: len(events),
		Status:     bulkupload.StatusNew,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.uploads.Create(ctx, u); err != nil {
		return fmt.Errorf("record bulk upload %s: %w", id, err)
	}

	s.logger.Info("bulk batch uploaded",
		"project", project,
		"object_key", key,
		"events", len(events))

	return nil
}
