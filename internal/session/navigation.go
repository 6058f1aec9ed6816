package session

import (
	"sync"

	"github.com/dorolabs/novelverse/backend/internal/novels"
)

// Screen enumerates the view states of a session.
type Screen string

const (
	// ScreenListing shows the projected collection.
	ScreenListing Screen = "listing"
	// ScreenComposing shows the create/edit form with its draft buffers.
	ScreenComposing Screen = "composing"
	// ScreenReading shows one novel at a chapter index.
	ScreenReading Screen = "reading"
)

// Navigation tracks which screen is active and, within the reader, which
// chapter is visible. Transitions are user driven; snapshot arrival only
// evicts selections whose backing record disappeared.
type Navigation struct {
	mu     sync.Mutex
	screen Screen

	readingRecord  novels.ViewRecord
	readingChapter int

	draft   novels.Draft
	editKey string
}

// NewNavigation starts in the listing state.
func NewNavigation() *Navigation {
	return &Navigation{screen: ScreenListing}
}

// Screen returns the active screen.
func (n *Navigation) Screen() Screen {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.screen
}

// Read enters the reader for the record, starting at chapter 0.
func (n *Navigation) Read(record novels.ViewRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.screen = ScreenReading
	n.readingRecord = record
	n.readingChapter = 0
}

// Reading returns the selected record and chapter index while reading.
func (n *Navigation) Reading() (novels.ViewRecord, int, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.screen != ScreenReading {
		return novels.ViewRecord{}, 0, false
	}
	return n.readingRecord, n.readingChapter, true
}

// NextChapter advances the reader one chapter. A request at the last index
// is a no-op.
func (n *Navigation) NextChapter() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.screen != ScreenReading {
		return
	}
	if n.readingChapter < len(n.readingRecord.Chapters)-1 {
		n.readingChapter++
	}
}

// PreviousChapter moves the reader back one chapter. A request at index 0
// is a no-op.
func (n *Navigation) PreviousChapter() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.screen != ScreenReading {
		return
	}
	if n.readingChapter > 0 {
		n.readingChapter--
	}
}

// Compose enters the editor with empty draft buffers.
func (n *Navigation) Compose() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.screen = ScreenComposing
	n.draft = novels.Draft{Chapters: []string{""}}
	n.editKey = ""
}

// Edit enters the editor seeded from an existing record.
func (n *Navigation) Edit(record novels.ViewRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.screen = ScreenComposing
	n.editKey = record.Key

	chapters := make([]string, 0, len(record.Chapters))
	for _, chapter := range record.Chapters {
		chapters = append(chapters, chapter.Content)
	}
	if len(chapters) == 0 {
		chapters = []string{""}
	}
	n.draft = novels.Draft{
		Title:      record.Title,
		Chapters:   chapters,
		CoverImage: record.CoverImage,
	}
}

// SetDraft replaces the composition buffers.
func (n *Navigation) SetDraft(draft novels.Draft) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.screen == ScreenComposing {
		n.draft = draft
	}
}

// Draft returns the composition buffers and the key being edited, if any.
func (n *Navigation) Draft() (novels.Draft, string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.screen != ScreenComposing {
		return novels.Draft{}, "", false
	}
	return n.draft, n.editKey, true
}

// FinishComposing clears the draft buffers and returns to the listing.
// Called after a successful publish or an explicit cancel.
func (n *Navigation) FinishComposing() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.draft = novels.Draft{}
	n.editKey = ""
	n.screen = ScreenListing
}

// Back returns to the listing from any screen.
func (n *Navigation) Back() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.readingRecord = novels.ViewRecord{}
	n.readingChapter = 0
	n.screen = ScreenListing
}

// EvictMissing returns to the listing when the record backing the current
// reading or edit selection is no longer present. Reports the evicted key.
func (n *Navigation) EvictMissing(present map[string]struct{}) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.screen {
	case ScreenReading:
		if _, ok := present[n.readingRecord.Key]; !ok {
			evicted := n.readingRecord.Key
			n.readingRecord = novels.ViewRecord{}
			n.readingChapter = 0
			n.screen = ScreenListing
			return evicted, true
		}
	case ScreenComposing:
		if n.editKey == "" {
			return "", false
		}
		if _, ok := present[n.editKey]; !ok {
			evicted := n.editKey
			n.draft = novels.Draft{}
			n.editKey = ""
			n.screen = ScreenListing
			return evicted, true
		}
	}
	return "", false
}
