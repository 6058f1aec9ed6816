package novels

import (
	"sort"
	"strings"
	"sync"
)

// Entry pairs a store key with its decoded record, in store-reported order.
type Entry struct {
	Key    string
	Record Record
}

// Projector maintains the live, normalized, sorted view of the collection.
// The projected set is replaced wholesale on every snapshot; readers never
// observe a partially updated set.
type Projector struct {
	mu      sync.RWMutex
	viewer  Viewer
	records []ViewRecord
}

// NewProjector constructs an empty Projector.
func NewProjector() *Projector {
	return &Projector{}
}

// Apply re-runs the Normalizer over a full-collection snapshot with the
// given viewer identity, sorts by creation time descending, and atomically
// replaces the projected set. Ties keep store-reported order.
func (p *Projector) Apply(entries []Entry, viewer Viewer) {
	views := make([]ViewRecord, 0, len(entries))
	for _, entry := range entries {
		views = append(views, Normalize(entry.Key, entry.Record, viewer))
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].CreatedAt > views[j].CreatedAt
	})

	p.mu.Lock()
	p.viewer = viewer
	p.records = views
	p.mu.Unlock()
}

// Records returns a copy of the current projected set.
func (p *Projector) Records() []ViewRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ViewRecord, len(p.records))
	copy(out, p.records)
	return out
}

// Lookup returns the projected view record for a key, if present.
func (p *Projector) Lookup(key string) (ViewRecord, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, record := range p.records {
		if record.Key == key {
			return record, true
		}
	}
	return ViewRecord{}, false
}

// Viewer returns the identity the current projection was computed with.
func (p *Projector) Viewer() Viewer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.viewer
}

// Filter returns the projected records whose title or author name contains
// the query, case-insensitively. A blank query returns the full set. The
// projected set itself is never mutated.
func (p *Projector) Filter(query string) []ViewRecord {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return p.Records()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	matches := make([]ViewRecord, 0, len(p.records))
	for _, record := range p.records {
		if strings.Contains(strings.ToLower(record.Title), needle) ||
			strings.Contains(strings.ToLower(record.AuthorName), needle) {
			matches = append(matches, record)
		}
	}
	return matches
}
