package novels

import (
	"errors"
	"fmt"
	"strings"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidNovelKey indicates that a novel key is empty or exceeds storage bounds.
	ErrInvalidNovelKey = errors.New("novels: invalid novel key")
	// ErrInvalidViewerID indicates that a viewer identifier is empty or exceeds storage bounds.
	ErrInvalidViewerID = errors.New("novels: invalid viewer id")
)

// NovelKey represents a validated store-assigned record key.
type NovelKey string

// NewNovelKey validates raw input and returns a NovelKey.
func NewNovelKey(rawInput string) (NovelKey, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNovelKey)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidNovelKey, maxIdentifierLength)
	}
	return NovelKey(trimmed), nil
}

// String returns the underlying string key.
func (k NovelKey) String() string {
	return string(k)
}

// ViewerID represents a validated viewer identifier.
type ViewerID string

// NewViewerID validates raw input and returns a ViewerID.
func NewViewerID(rawInput string) (ViewerID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidViewerID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidViewerID, maxIdentifierLength)
	}
	return ViewerID(trimmed), nil
}

// String returns the underlying string identifier.
func (id ViewerID) String() string {
	return string(id)
}

// Viewer carries the identity whose view of the collection is being derived.
// A zero Viewer means the session is anonymous.
type Viewer struct {
	ID       string
	Name     string
	PhotoURL string
}

// Anonymous reports whether no viewer identity is known.
func (v Viewer) Anonymous() bool {
	return strings.TrimSpace(v.ID) == ""
}

// Chapter is one ordered unit of a novel's body.
type Chapter struct {
	Content string `json:"content"`
}

// Record models the stored novel payload. Author fields are a snapshot of
// the publisher identity at write time, not a live join.
type Record struct {
	AuthorID    string    `json:"authorId"`
	AuthorName  string    `json:"authorName"`
	AuthorPhoto string    `json:"authorPhoto,omitempty"`
	Title       string    `json:"title"`
	Chapters    []Chapter `json:"chapters,omitempty"`
	CoverImage  string    `json:"coverImage,omitempty"`
	CreatedAt   int64     `json:"createdAt"`
	UpdatedAt   int64     `json:"updatedAt,omitempty"`
	// Likes maps viewer id to a presence marker. Only key membership is
	// meaningful; the mapped value carries no information.
	Likes map[string]bool `json:"likes,omitempty"`
	// LegacyContent is the pre-chapter single body field. Read during
	// normalization as a one-chapter fallback, never written back.
	LegacyContent string `json:"content,omitempty"`
}

// ViewRecord is a Record augmented with its key and viewer-relative fields.
// Derived at normalization time, never persisted.
type ViewRecord struct {
	Record
	Key           string
	LikeCount     int
	LikedByViewer bool
}
