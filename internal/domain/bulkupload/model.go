package bulkupload

import "time"

const (
	// StatusNew marks an upload waiting to be handed to the batch loader.
	StatusNew = "new"
	// StatusProcessing marks an upload claimed by a loader instance.
	StatusProcessing = "processing"
	// StatusProcessed marks an upload whose load notification was published.
	StatusProcessed = "processed"
)

// Upload records one overflow batch written to object storage. The loader
// polls these rows and announces each object to the batch-load pipeline.
type Upload struct {
	ID         string
	Project    string
	ObjectKey  string
	EventCount int
	Status     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
