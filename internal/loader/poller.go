// Package loader announces overflow uploads to the batch-load pipeline.
// It polls bulk_uploads rows written by the bulk store and publishes one
// load notification per object to the bulk topic.
package loader

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"project/internal/domain/bulkupload"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsNotified = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loader_bulk_uploads_notified_total",
		Help: "The total number of bulk uploads announced to the load pipeline",
	})
	notifyErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loader_bulk_notify_errors_total",
		Help: "The total number of failed load notifications",
	})
)

// Notification is the envelope published per upload, keyed by project so
// one project's loads stay ordered.
type Notification struct {
	ID         string    `json:"id"`
	Project    string    `json:"project"`
	ObjectKey  string    `json:"object_key"`
	EventCount int       `json:"event_count"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// UploadSource claims pending uploads and records the outcome.
type UploadSource interface {
	FetchBatch(ctx context.Context, limit int) ([]*bulkupload.Upload, error)
	MarkProcessed(ctx context.Context, ids []string) error
	MarkFailed(ctx context.Context, ids []string) error
}

// Producer publishes one keyed record to the bulk topic.
type Producer interface {
	Send(ctx context.Context, key, value []byte) error
}

type Poller struct {
	uploads   UploadSource
	producer  Producer
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

func NewPoller(uploads UploadSource, producer Producer, interval time.Duration, batchSize int, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		uploads:   uploads,
		producer:  producer,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("bulk load poller started", "interval", p.interval.String())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.processBatch(ctx); err != nil {
				p.logger.Error("failed to process bulk uploads", "error", err)
			}
		}
	}
}

func (p *Poller) processBatch(ctx context.Context) error {
	uploads, err := p.uploads.FetchBatch(ctx, p.batchSize)
	if err != nil {
		return err
	}
	if len(uploads) == 0 {
		return nil
	}

	var processedIDs []string
	var failedIDs []string

	for _, u := range uploads {
		value, err := json.Marshal(Notification{
			ID:         u.ID,
			Project:    u.Project,
			ObjectKey:  u.ObjectKey,
			EventCount: u.EventCount,
			UploadedAt: u.CreatedAt,
		})
		if err != nil {
			p.logger.Error("failed to marshal notification", "upload_id", u.ID, "error", err)
			notifyErrors.Inc()
			failedIDs = append(failedIDs, u.ID)
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = p.producer.Send(sendCtx, []byte(u.Project), value)
		cancel()

		if err != nil {
			p.logger.Error("failed to publish load notification", "upload_id", u.ID, "error", err)
			notifyErrors.Inc()
			failedIDs = append(failedIDs, u.ID)
			continue
		}

		uploadsNotified.Inc()
		processedIDs = append(processedIDs, u.ID)
	}

	if len(processedIDs) > 0 {
		if err := p.uploads.MarkProcessed(ctx, processedIDs); err != nil {
			return err
		}
		p.logger.Info("bulk uploads announced", "count", len(processedIDs))
	}

	if len(failedIDs) > 0 {
		if err := p.uploads.MarkFailed(ctx, failedIDs); err != nil {
			p.logger.Error("failed to requeue uploads", "error", err)
		}
	}

	return nil
}
