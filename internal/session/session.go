package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"

	"github.com/dorolabs/novelverse/backend/internal/novels"
	"github.com/dorolabs/novelverse/backend/internal/store"
	"go.uber.org/zap"
)

var errNotComposing = errors.New("session: no composition in progress")

// Config describes the dependencies of a Session.
type Config struct {
	Store      store.Client
	Identity   IdentityProvider
	Collection string
	Projector  *novels.Projector
	Navigation *Navigation
	Logger     *zap.Logger
	Notifier   Notifier
}

// Session owns the live subscription for one connected viewer. It holds
// exactly one store subscription at a time, tearing it down and
// re-establishing it whenever the viewer identity changes so the projected
// view is never computed with a stale identity.
type Session struct {
	store      store.Client
	identity   IdentityProvider
	collection string
	projector  *novels.Projector
	navigation *Navigation
	logger     *zap.Logger
	notifier   Notifier
}

// New constructs a Session.
func New(cfg Config) (*Session, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Identity == nil {
		return nil, errors.New("session: identity provider is required")
	}
	collection := cfg.Collection
	if collection == "" {
		collection = DefaultCollection
	}
	projector := cfg.Projector
	if projector == nil {
		projector = novels.NewProjector()
	}
	navigation := cfg.Navigation
	if navigation == nil {
		navigation = NewNavigation()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = NopNotifier()
	}

	return &Session{
		store:      cfg.Store,
		identity:   cfg.Identity,
		collection: collection,
		projector:  projector,
		navigation: navigation,
		logger:     logger,
		notifier:   notifier,
	}, nil
}

// Projector exposes the session's projected view.
func (s *Session) Projector() *novels.Projector {
	return s.projector
}

// Navigation exposes the session's view state machine.
func (s *Session) Navigation() *Navigation {
	return s.navigation
}

// Run drives the event loop until the context is done: identity changes
// re-establish the store subscription, snapshot emissions re-project the
// collection and reconcile stale selections.
func (s *Session) Run(ctx context.Context) error {
	identityStream, identityCancel := s.identity.Subscribe(ctx)
	defer identityCancel()

	var viewer novels.Viewer
	var snapshots <-chan store.Snapshot
	var snapshotCancel func()
	defer func() {
		if snapshotCancel != nil {
			snapshotCancel()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case state, ok := <-identityStream:
			if !ok {
				identityStream = nil
				continue
			}
			viewer = state.Viewer
			if snapshotCancel != nil {
				snapshotCancel()
				snapshotCancel = nil
				snapshots = nil
			}
			stream, cancel, err := s.store.Subscribe(ctx, s.collection)
			if err != nil {
				s.logger.Error("collection subscription failed",
					zap.String("collection", s.collection), zap.Error(err))
				s.notifier.Failure("Failed to load novels")
				continue
			}
			snapshots = stream
			snapshotCancel = cancel

		case snapshot, ok := <-snapshots:
			if !ok {
				snapshots = nil
				continue
			}
			s.apply(snapshot, viewer)
		}
	}
}

// Submit publishes the current composition buffers through the coordinator
// and, on success, clears them and returns to the listing.
func (s *Session) Submit(ctx context.Context, coordinator *Coordinator, author novels.Viewer) (string, error) {
	draft, editKey, ok := s.navigation.Draft()
	if !ok {
		return "", errNotComposing
	}
	key, err := coordinator.Publish(ctx, draft, author, editKey)
	if err != nil {
		return "", err
	}
	s.navigation.FinishComposing()
	return key, nil
}

// ResolveShare inspects an inbound address for a record-key token and, if
// the record exists, seeds the reading state before the live subscription's
// first emission. A token for a nonexistent key is silently ignored. Meant
// for the initial load only.
func (s *Session) ResolveShare(ctx context.Context, rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		s.logger.Debug("share token parse failed", zap.String("url", rawURL), zap.Error(err))
		return nil
	}
	key := parsed.Query().Get(ShareQueryParam)
	if key == "" {
		return nil
	}

	raw, err := s.store.ReadOnce(ctx, s.collection+"/"+key)
	if err != nil {
		s.logger.Error("share resolution read failed", zap.String("key", key), zap.Error(err))
		s.notifier.Failure("Failed to open shared novel")
		return err
	}
	if raw == nil {
		return nil
	}

	var record novels.Record
	if err := json.Unmarshal(raw, &record); err != nil {
		s.logger.Warn("share resolution decode failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	s.navigation.Read(novels.Normalize(key, record, s.projector.Viewer()))
	return nil
}

func (s *Session) apply(snapshot store.Snapshot, viewer novels.Viewer) {
	entries := make([]novels.Entry, 0, len(snapshot.Entries))
	present := make(map[string]struct{}, len(snapshot.Entries))
	for _, raw := range snapshot.Entries {
		var record novels.Record
		if err := json.Unmarshal(raw.Value, &record); err != nil {
			s.logger.Warn("skipping malformed record",
				zap.String("key", raw.Key), zap.Error(err))
			continue
		}
		entries = append(entries, novels.Entry{Key: raw.Key, Record: record})
		present[raw.Key] = struct{}{}
	}

	s.projector.Apply(entries, viewer)

	if evicted, ok := s.navigation.EvictMissing(present); ok {
		s.logger.Info("selected novel disappeared, returning to listing",
			zap.String("key", evicted))
		s.notifier.Failure("This novel is no longer available")
	}
}
