package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/dorolabs/novelverse/backend/internal/novels"
	"github.com/dorolabs/novelverse/backend/internal/store"
	"go.uber.org/zap"
)

const (
	// DefaultCollection is the store collection holding novel records.
	DefaultCollection = "novels"
	// ShareQueryParam is the query token carrying a record key in share links.
	ShareQueryParam = "novel"
)

var (
	errMissingStore     = errors.New("store client is required")
	errMissingViews     = errors.New("view source is required")
	errMissingShareBase = errors.New("share base url is required")
	noOpLogger          = zap.NewNop()
)

// ViewSource exposes the last projected view, used for optimistic
// like-toggle decisions.
type ViewSource interface {
	Lookup(key string) (novels.ViewRecord, bool)
}

// Clipboard receives derived share links. An external collaborator.
type Clipboard interface {
	Copy(text string) error
}

// CoordinatorConfig describes the dependencies of the Mutation Coordinator.
type CoordinatorConfig struct {
	Store        store.Client
	Views        ViewSource
	Collection   string
	ShareBaseURL string
	Clock        func() time.Time
	Logger       *zap.Logger
	Notifier     Notifier
	Clipboard    Clipboard
}

// Coordinator executes create, update, delete, and like-toggle operations
// against the remote store with field-preservation rules, and raises one
// user-visible outcome per attempted operation.
type Coordinator struct {
	store      store.Client
	views      ViewSource
	collection string
	shareBase  string
	clock      func() time.Time
	logger     *zap.Logger
	notifier   Notifier
	clipboard  Clipboard
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Views == nil {
		return nil, errMissingViews
	}
	collection := cfg.Collection
	if collection == "" {
		collection = DefaultCollection
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = NopNotifier()
	}

	return &Coordinator{
		store:      cfg.Store,
		views:      cfg.Views,
		collection: collection,
		shareBase:  cfg.ShareBaseURL,
		clock:      clock,
		logger:     logger,
		notifier:   notifier,
		clipboard:  cfg.Clipboard,
	}, nil
}

// Publish validates the draft and writes it to the store. With an existing
// key it rewrites the whole record, copying the stored likes mapping and
// creation time forward; otherwise it creates a fresh record with empty
// likes. Author fields are stamped from the given viewer.
func (c *Coordinator) Publish(ctx context.Context, draft novels.Draft, author novels.Viewer, existingKey string) (string, error) {
	cleaned, err := draft.Clean()
	if err != nil {
		c.notifier.Failure("Please fill in all fields")
		return "", err
	}
	if author.Anonymous() {
		c.notifier.Failure("Please login to post novels")
		return "", ErrAuthRequired
	}

	now := c.clock().UTC().UnixMilli()
	record := novels.Record{
		AuthorID:    author.ID,
		AuthorName:  author.Name,
		AuthorPhoto: author.PhotoURL,
		Title:       cleaned.Title,
		Chapters:    cleaned.RecordChapters(),
		CoverImage:  cleaned.CoverImage,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if existingKey == "" {
		key, err := c.store.Push(ctx, c.collection, record)
		if err != nil {
			c.logError("publish", "push_failed", err)
			c.notifier.Failure("Failed to post novel")
			return "", err
		}
		c.notifier.Success("Novel posted successfully!")
		return key, nil
	}

	existing, err := c.readRecord(ctx, existingKey)
	if err != nil {
		c.logError("publish", "likes_capture_failed", err, zap.String("key", existingKey))
		c.notifier.Failure("Failed to update novel")
		return "", err
	}
	if existing == nil {
		c.notifier.Failure("Novel no longer exists")
		return "", fmt.Errorf("%w: %s", ErrNotFound, existingKey)
	}
	if existing.AuthorID != author.ID {
		c.notifier.Failure("Only the author can edit this novel")
		return "", fmt.Errorf("%w: %s", ErrNotOwner, existingKey)
	}

	record.Likes = existing.Likes
	record.CreatedAt = existing.CreatedAt
	if record.CreatedAt == 0 {
		record.CreatedAt = now
	}

	path := c.collection + "/" + existingKey
	if err := c.store.WriteWhole(ctx, path, record); err != nil {
		c.logError("publish", "write_failed", err, zap.String("key", existingKey))
		c.notifier.Failure("Failed to update novel")
		return "", err
	}
	c.notifier.Success("Novel updated successfully!")
	return existingKey, nil
}

// ToggleLike flips the viewer's like marker for the record, deciding the
// direction from the last projected view rather than a fresh read. Exactly
// one single-key write is issued; rapid toggles race and the view corrects
// itself on the next full-collection emission.
func (c *Coordinator) ToggleLike(ctx context.Context, key string, viewer novels.Viewer) error {
	if viewer.Anonymous() {
		c.notifier.Failure("Please login to like novels")
		return ErrAuthRequired
	}
	view, ok := c.views.Lookup(key)
	if !ok {
		c.notifier.Failure("Novel no longer exists")
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	// Liked-ness comes from the viewer's marker in the last projected
	// record, not a fresh read.
	_, liked := view.Likes[viewer.ID]

	path := c.collection + "/" + key + "/likes/" + viewer.ID
	var err error
	if liked {
		err = c.store.RemoveKey(ctx, path)
	} else {
		err = c.store.WriteKey(ctx, path, true)
	}
	if err != nil {
		c.logError("toggle_like", "write_failed", err, zap.String("key", key))
		c.notifier.Failure("Failed to update like")
		return err
	}
	return nil
}

// Delete removes the whole record. The interactive confirmation happens
// before this call; the requester must match the stored author.
func (c *Coordinator) Delete(ctx context.Context, key string, requester novels.Viewer) error {
	if requester.Anonymous() {
		c.notifier.Failure("Please login to delete novels")
		return ErrAuthRequired
	}

	existing, err := c.readRecord(ctx, key)
	if err != nil {
		c.logError("delete", "ownership_read_failed", err, zap.String("key", key))
		c.notifier.Failure("Failed to delete novel")
		return err
	}
	if existing == nil {
		c.notifier.Failure("Novel no longer exists")
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if existing.AuthorID != requester.ID {
		c.notifier.Failure("Only the author can delete this novel")
		return fmt.Errorf("%w: %s", ErrNotOwner, key)
	}

	if err := c.store.RemoveKey(ctx, c.collection+"/"+key); err != nil {
		c.logError("delete", "remove_failed", err, zap.String("key", key))
		c.notifier.Failure("Failed to delete novel")
		return err
	}
	c.notifier.Success("Novel deleted")
	return nil
}

// ShareLink derives the shareable URL embedding the record key. No store
// interaction.
func (c *Coordinator) ShareLink(key string) (string, error) {
	if c.shareBase == "" {
		return "", errMissingShareBase
	}
	base, err := url.Parse(c.shareBase)
	if err != nil {
		return "", err
	}
	query := base.Query()
	query.Set(ShareQueryParam, key)
	base.RawQuery = query.Encode()
	return base.String(), nil
}

// CopyShareLink derives the share URL and hands it to the clipboard.
func (c *Coordinator) CopyShareLink(key string) error {
	link, err := c.ShareLink(key)
	if err != nil {
		c.logError("share", "derive_failed", err, zap.String("key", key))
		c.notifier.Failure("Failed to copy link")
		return err
	}
	if c.clipboard != nil {
		if err := c.clipboard.Copy(link); err != nil {
			c.logError("share", "clipboard_failed", err, zap.String("key", key))
			c.notifier.Failure("Failed to copy link")
			return err
		}
	}
	c.notifier.Success("Link copied to clipboard")
	return nil
}

func (c *Coordinator) readRecord(ctx context.Context, key string) (*novels.Record, error) {
	raw, err := c.store.ReadOnce(ctx, c.collection+"/"+key)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var record novels.Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrRead, err)
	}
	return &record, nil
}

func (c *Coordinator) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	c.logger.Error("mutation coordinator error", attrs...)
}
