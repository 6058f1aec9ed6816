package novels

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation indicates a draft is missing required input. Drafts failing
// validation never reach the store.
var ErrValidation = errors.New("novels: validation failed")

// Draft carries the composition buffers for a publish or edit.
type Draft struct {
	Title      string
	Chapters   []string
	CoverImage string
}

// Clean trims the draft and verifies it is postable: the title must be
// non-empty and at least one chapter must be non-blank. Blank chapters among
// non-blank ones survive, preserving chapter numbering.
func (d Draft) Clean() (Draft, error) {
	cleaned := Draft{
		Title:      strings.TrimSpace(d.Title),
		CoverImage: strings.TrimSpace(d.CoverImage),
	}
	if cleaned.Title == "" {
		return Draft{}, fmt.Errorf("%w: title required", ErrValidation)
	}
	if len(d.Chapters) == 0 {
		return Draft{}, fmt.Errorf("%w: at least one chapter required", ErrValidation)
	}

	hasContent := false
	cleaned.Chapters = make([]string, len(d.Chapters))
	for i, chapter := range d.Chapters {
		trimmed := strings.TrimSpace(chapter)
		cleaned.Chapters[i] = trimmed
		if trimmed != "" {
			hasContent = true
		}
	}
	if !hasContent {
		return Draft{}, fmt.Errorf("%w: all chapters blank", ErrValidation)
	}

	return cleaned, nil
}

// RecordChapters converts the cleaned chapter buffers to stored form.
func (d Draft) RecordChapters() []Chapter {
	chapters := make([]Chapter, len(d.Chapters))
	for i, content := range d.Chapters {
		chapters[i] = Chapter{Content: content}
	}
	return chapters
}
