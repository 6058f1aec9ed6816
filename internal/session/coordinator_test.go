package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dorolabs/novelverse/backend/internal/novels"
)

func TestPublishCreateStampsAuthorAndTimestamps(t *testing.T) {
	s := newTestStore(t)
	projector := novels.NewProjector()
	notifier := &recordingNotifier{}
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	coordinator, err := NewCoordinator(CoordinatorConfig{
		Store:    s,
		Views:    projector,
		Clock:    func() time.Time { return now },
		Notifier: notifier,
	})
	if err != nil {
		t.Fatalf("failed to construct coordinator: %v", err)
	}

	author := novels.Viewer{ID: "u1", Name: "Ada", PhotoURL: "https://img.example.com/ada.png"}
	draft := novels.Draft{Title: "First Light", Chapters: []string{"It begins."}}

	key, err := coordinator.Publish(context.Background(), draft, author, "")
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if key == "" {
		t.Fatal("expected a generated record key")
	}

	stored := readStoredRecord(t, s, key)
	if stored.AuthorID != "u1" || stored.AuthorName != "Ada" {
		t.Fatalf("author fields not stamped: %+v", stored)
	}
	if stored.CreatedAt != now.UnixMilli() || stored.UpdatedAt != now.UnixMilli() {
		t.Fatalf("unexpected timestamps: created=%d updated=%d", stored.CreatedAt, stored.UpdatedAt)
	}
	if len(stored.Likes) != 0 {
		t.Fatalf("fresh record should carry no likes, got %v", stored.Likes)
	}
	if successes, failures := notifier.counts(); successes != 1 || failures != 0 {
		t.Fatalf("expected one success notification, got %d/%d", successes, failures)
	}
}

func TestPublishRejectsInvalidDraftWithoutWriting(t *testing.T) {
	s := newTestStore(t)
	projector := novels.NewProjector()
	notifier := &recordingNotifier{}
	coordinator, err := NewCoordinator(CoordinatorConfig{Store: s, Views: projector, Notifier: notifier})
	if err != nil {
		t.Fatalf("failed to construct coordinator: %v", err)
	}

	author := novels.Viewer{ID: "u1", Name: "Ada"}
	_, err = coordinator.Publish(context.Background(), novels.Draft{Title: "   "}, author, "")
	if !errors.Is(err, novels.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	raw, err := s.ReadOnce(context.Background(), DefaultCollection)
	if err != nil {
		t.Fatalf("collection read failed: %v", err)
	}
	if raw != nil {
		t.Fatalf("no record should have been written, got %s", raw)
	}
	if successes, failures := notifier.counts(); successes != 0 || failures != 1 {
		t.Fatalf("expected one failure notification, got %d/%d", successes, failures)
	}
}

func TestPublishRequiresIdentity(t *testing.T) {
	s := newTestStore(t)
	coordinator, err := NewCoordinator(CoordinatorConfig{Store: s, Views: novels.NewProjector()})
	if err != nil {
		t.Fatalf("failed to construct coordinator: %v", err)
	}

	draft := novels.Draft{Title: "Ghost Writer", Chapters: []string{"..."}}
	_, err = coordinator.Publish(context.Background(), draft, novels.Viewer{}, "")
	if !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
}

func TestEditPreservesLikesAndCreationTime(t *testing.T) {
	s := newTestStore(t)
	projector := novels.NewProjector()
	current := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	coordinator, err := NewCoordinator(CoordinatorConfig{
		Store: s,
		Views: projector,
		Clock: func() time.Time { return current },
	})
	if err != nil {
		t.Fatalf("failed to construct coordinator: %v", err)
	}

	author := novels.Viewer{ID: "u1", Name: "Ada"}
	key, err := coordinator.Publish(context.Background(), novels.Draft{Title: "Original", Chapters: []string{"One"}}, author, "")
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	// Two other viewers like the record between publish and edit.
	for _, liker := range []string{"u2", "u3"} {
		if err := s.WriteKey(context.Background(), DefaultCollection+"/"+key+"/likes/"+liker, true); err != nil {
			t.Fatalf("failed to seed like: %v", err)
		}
	}
	createdAt := readStoredRecord(t, s, key).CreatedAt

	current = current.Add(45 * time.Minute)
	_, err = coordinator.Publish(context.Background(), novels.Draft{Title: "Revised", Chapters: []string{"One", "Two"}}, author, key)
	if err != nil {
		t.Fatalf("edit failed: %v", err)
	}

	after := readStoredRecord(t, s, key)
	if after.Title != "Revised" || len(after.Chapters) != 2 {
		t.Fatalf("edit content not applied: %+v", after)
	}
	if len(after.Likes) != 2 || !after.Likes["u2"] || !after.Likes["u3"] {
		t.Fatalf("likes not preserved across edit: %v", after.Likes)
	}
	if after.CreatedAt != createdAt {
		t.Fatalf("creation time changed on edit: %d != %d", after.CreatedAt, createdAt)
	}
	if after.UpdatedAt != current.UnixMilli() {
		t.Fatalf("update time not refreshed: %d", after.UpdatedAt)
	}
}

func TestEditByNonAuthorIsRefused(t *testing.T) {
	s := newTestStore(t)
	projector := novels.NewProjector()
	coordinator, err := NewCoordinator(CoordinatorConfig{Store: s, Views: projector})
	if err != nil {
		t.Fatalf("failed to construct coordinator: %v", err)
	}

	author := novels.Viewer{ID: "u1", Name: "Ada"}
	key, err := coordinator.Publish(context.Background(), novels.Draft{Title: "Mine", Chapters: []string{"One"}}, author, "")
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	intruder := novels.Viewer{ID: "u2", Name: "Eve"}
	_, err = coordinator.Publish(context.Background(), novels.Draft{Title: "Stolen", Chapters: []string{"One"}}, intruder, key)
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if after := readStoredRecord(t, s, key); after.Title != "Mine" {
		t.Fatalf("record mutated by non-author: %+v", after)
	}
}

func TestEditOfMissingRecordReportsNotFound(t *testing.T) {
	s := newTestStore(t)
	coordinator, err := NewCoordinator(CoordinatorConfig{Store: s, Views: novels.NewProjector()})
	if err != nil {
		t.Fatalf("failed to construct coordinator: %v", err)
	}

	author := novels.Viewer{ID: "u1", Name: "Ada"}
	_, err = coordinator.Publish(context.Background(), novels.Draft{Title: "Late", Chapters: []string{"One"}}, author, "vanished")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestToggleLikeAddsAndRemovesMarker(t *testing.T) {
	s := newTestStore(t)
	projector := novels.NewProjector()
	coordinator, err := NewCoordinator(CoordinatorConfig{Store: s, Views: projector})
	if err != nil {
		t.Fatalf("failed to construct coordinator: %v", err)
	}

	author := novels.Viewer{ID: "u1", Name: "Ada"}
	key, err := coordinator.Publish(context.Background(), novels.Draft{Title: "Liked", Chapters: []string{"One"}}, author, "")
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	reader := novels.Viewer{ID: "u2", Name: "Bo"}
	refreshProjector(t, s, projector, reader)

	if err := coordinator.ToggleLike(context.Background(), key, reader); err != nil {
		t.Fatalf("like failed: %v", err)
	}
	liked := readStoredRecord(t, s, key)
	if len(liked.Likes) != 1 || !liked.Likes["u2"] {
		t.Fatalf("like marker missing: %v", liked.Likes)
	}

	refreshProjector(t, s, projector, reader)
	view, ok := projector.Lookup(key)
	if !ok {
		t.Fatal("record missing from projection")
	}
	if view.LikeCount != 1 || !view.LikedByViewer {
		t.Fatalf("projection not reflecting like: count=%d liked=%v", view.LikeCount, view.LikedByViewer)
	}

	if err := coordinator.ToggleLike(context.Background(), key, reader); err != nil {
		t.Fatalf("unlike failed: %v", err)
	}
	unliked := readStoredRecord(t, s, key)
	if len(unliked.Likes) != 0 {
		t.Fatalf("like marker should be gone: %v", unliked.Likes)
	}
}

func TestToggleLikeLeavesOtherMarkersAlone(t *testing.T) {
	s := newTestStore(t)
	projector := novels.NewProjector()
	coordinator, err := NewCoordinator(CoordinatorConfig{Store: s, Views: projector})
	if err != nil {
		t.Fatalf("failed to construct coordinator: %v", err)
	}

	author := novels.Viewer{ID: "u1", Name: "Ada"}
	key, err := coordinator.Publish(context.Background(), novels.Draft{Title: "Shared", Chapters: []string{"One"}}, author, "")
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if err := s.WriteKey(context.Background(), DefaultCollection+"/"+key+"/likes/u3", true); err != nil {
		t.Fatalf("failed to seed like: %v", err)
	}

	reader := novels.Viewer{ID: "u2", Name: "Bo"}
	refreshProjector(t, s, projector, reader)
	if err := coordinator.ToggleLike(context.Background(), key, reader); err != nil {
		t.Fatalf("like failed: %v", err)
	}

	stored := readStoredRecord(t, s, key)
	if !stored.Likes["u2"] || !stored.Likes["u3"] {
		t.Fatalf("expected both markers, got %v", stored.Likes)
	}
}

func TestToggleLikeRequiresIdentity(t *testing.T) {
	s := newTestStore(t)
	notifier := &recordingNotifier{}
	coordinator, err := NewCoordinator(CoordinatorConfig{Store: s, Views: novels.NewProjector(), Notifier: notifier})
	if err != nil {
		t.Fatalf("failed to construct coordinator: %v", err)
	}

	if err := coordinator.ToggleLike(context.Background(), "any", novels.Viewer{}); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
	if _, failures := notifier.counts(); failures != 1 {
		t.Fatalf("expected one failure notification, got %d", failures)
	}
}

func TestToggleLikeOnUnknownRecordReportsNotFound(t *testing.T) {
	s := newTestStore(t)
	coordinator, err := NewCoordinator(CoordinatorConfig{Store: s, Views: novels.NewProjector()})
	if err != nil {
		t.Fatalf("failed to construct coordinator: %v", err)
	}

	reader := novels.Viewer{ID: "u2", Name: "Bo"}
	if err := coordinator.ToggleLike(context.Background(), "vanished", reader); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteEnforcesOwnership(t *testing.T) {
	s := newTestStore(t)
	projector := novels.NewProjector()
	coordinator, err := NewCoordinator(CoordinatorConfig{Store: s, Views: projector})
	if err != nil {
		t.Fatalf("failed to construct coordinator: %v", err)
	}

	author := novels.Viewer{ID: "u1", Name: "Ada"}
	key, err := coordinator.Publish(context.Background(), novels.Draft{Title: "Doomed", Chapters: []string{"One"}}, author, "")
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	intruder := novels.Viewer{ID: "u2", Name: "Eve"}
	if err := coordinator.Delete(context.Background(), key, intruder); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	if err := coordinator.Delete(context.Background(), key, author); err != nil {
		t.Fatalf("delete by author failed: %v", err)
	}
	raw, err := s.ReadOnce(context.Background(), DefaultCollection+"/"+key)
	if err != nil {
		t.Fatalf("record read failed: %v", err)
	}
	if raw != nil {
		t.Fatalf("record still present after delete: %s", raw)
	}
}

func TestShareLinkEmbedsRecordKey(t *testing.T) {
	s := newTestStore(t)
	coordinator, err := NewCoordinator(CoordinatorConfig{
		Store:        s,
		Views:        novels.NewProjector(),
		ShareBaseURL: "https://novels.example.com/?utm=mail",
	})
	if err != nil {
		t.Fatalf("failed to construct coordinator: %v", err)
	}

	link, err := coordinator.ShareLink("abc123")
	if err != nil {
		t.Fatalf("share link derivation failed: %v", err)
	}
	want := "https://novels.example.com/?novel=abc123&utm=mail"
	if link != want {
		t.Fatalf("unexpected share link %q, want %q", link, want)
	}
}

func TestCopyShareLinkUsesClipboard(t *testing.T) {
	s := newTestStore(t)
	clipboard := &recordingClipboard{}
	notifier := &recordingNotifier{}
	coordinator, err := NewCoordinator(CoordinatorConfig{
		Store:        s,
		Views:        novels.NewProjector(),
		ShareBaseURL: "https://novels.example.com/",
		Clipboard:    clipboard,
		Notifier:     notifier,
	})
	if err != nil {
		t.Fatalf("failed to construct coordinator: %v", err)
	}

	if err := coordinator.CopyShareLink("abc123"); err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if len(clipboard.copied) != 1 || clipboard.copied[0] != "https://novels.example.com/?novel=abc123" {
		t.Fatalf("unexpected clipboard content: %v", clipboard.copied)
	}
	if successes, _ := notifier.counts(); successes != 1 {
		t.Fatalf("expected one success notification, got %d", successes)
	}
}
