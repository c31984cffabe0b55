// Package mapper holds the pluggable per-event enrichment pipeline.
// Mappers are independent plugins resolved once at startup and shared
// read-only across all requests.
package mapper

import (
	"fmt"
	"net"
	"net/http"

	"project/internal/domain/event"
)

// Entry is a key/value pair a mapper attaches to the processing outcome.
// Entries are merged into the HTTP response headers in execution order;
// a later mapper's entry overwrites an earlier one with the same key.
type Entry struct {
	Key   string
	Value string
}

// EventMapper may mutate the event in place and/or return response entries.
type EventMapper interface {
	Map(e *event.Event, headers http.Header, source net.IP) ([]Entry, error)
}

// Pipeline runs mappers sequentially in registration order.
type Pipeline struct {
	mappers []EventMapper
}

func NewPipeline(mappers ...EventMapper) *Pipeline {
	return &Pipeline{mappers: mappers}
}

// Run invokes every mapper against the event and concatenates their entries.
// The first failing mapper aborts the rest; its error is wrapped with the
// mapper's identity.
func (p *Pipeline) Run(e *event.Event, headers http.Header, source net.IP) ([]Entry, error) {
	var entries []Entry
	for _, m := range p.mappers {
		out, err := m.Map(e, headers, source)
		if err != nil {
			return nil, fmt.Errorf("event mapper %T: %w", m, err)
		}
		entries = append(entries, out...)
	}
	return entries, nil
}
