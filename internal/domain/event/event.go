// Package event defines the collected event record shared by the gateway,
// the mapper pipeline and the stores.
package event

import "errors"

var (
	ErrMissingProject    = errors.New("project is required")
	ErrMissingCollection = errors.New("collection is required")
)

// Event is a single analytics event submitted by a client. Every event
// belongs to exactly one project and one collection; the properties payload
// is opaque to the gateway and only has to survive serialization.
type Event struct {
	Project    string         `json:"project"`
	Collection string         `json:"collection"`
	Properties map[string]any `json:"properties"`
}

func (e *Event) Validate() error {
	if e.Project == "" {
		return ErrMissingProject
	}
	if e.Collection == "" {
		return ErrMissingCollection
	}
	return nil
}

// PartitionKey routes the event to a shard of the streaming backend.
// Events with equal (project, collection) always map to the same key, which
// the downstream ordering guarantees per collection depend on.
func (e *Event) PartitionKey() string {
	return e.Project + "|" + e.Collection
}

// SetProperty attaches an enrichment value unless the client already sent
// one under the same name.
func (e *Event) SetProperty(name string, value any) {
	if e.Properties == nil {
		e.Properties = make(map[string]any)
	}
	if _, ok := e.Properties[name]; ok {
		return
	}
	e.Properties[name] = value
}

// OverwriteProperty attaches a server-authoritative enrichment value,
// replacing whatever the client sent.
func (e *Event) OverwriteProperty(name string, value any) {
	if e.Properties == nil {
		e.Properties = make(map[string]any)
	}
	e.Properties[name] = value
}
