package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errMissingDatabase = errors.New("store: database handle is required")

// Row persists one keyed record of a collection as a JSON document.
type Row struct {
	Collection string `gorm:"column:collection;primaryKey;size:190;not null;index:idx_rows_collection_seq,priority:1"`
	Key        string `gorm:"column:record_key;primaryKey;size:190;not null"`
	ValueJSON  string `gorm:"column:value_json;type:text;not null"`
	Seq        int64  `gorm:"column:seq;not null;index:idx_rows_collection_seq,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Row) TableName() string {
	return "store_rows"
}

// Config describes the dependencies for the SQLite-backed store.
type Config struct {
	Database *gorm.DB
	Clock    func() time.Time
	Keys     KeyProvider
	Logger   *zap.Logger
}

// Store is the SQLite-backed reference implementation of Client. Every
// committed write re-broadcasts the full collection to subscribers.
type Store struct {
	db         *gorm.DB
	clock      func() time.Time
	keys       KeyProvider
	logger     *zap.Logger
	dispatcher *snapshotDispatcher

	writeMu sync.Mutex
	seq     int64
}

var _ Client = (*Store)(nil)

// New constructs a Store over an opened database handle.
func New(cfg Config) (*Store, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	keys := cfg.Keys
	if keys == nil {
		keys = NewUUIDKeyProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var maxSeq int64
	if err := cfg.Database.Model(&Row{}).Select("COALESCE(MAX(seq), 0)").Scan(&maxSeq).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}

	return &Store{
		db:         cfg.Database,
		clock:      clock,
		keys:       keys,
		logger:     logger,
		dispatcher: newSnapshotDispatcher(),
		seq:        maxSeq,
	}, nil
}

// Subscribe registers for full-collection snapshots of the collection. The
// current state is delivered immediately, then again after every write.
func (s *Store) Subscribe(ctx context.Context, collection string) (<-chan Snapshot, func(), error) {
	segments, err := splitPath(collection)
	if err != nil {
		return nil, nil, err
	}
	if len(segments) != 1 {
		return nil, nil, fmt.Errorf("%w: subscribe expects a collection, got %q", ErrInvalidPath, collection)
	}

	snapshot, err := s.loadSnapshot(ctx, segments[0])
	if err != nil {
		return nil, nil, err
	}

	subscriber, cleanup := s.dispatcher.subscribe(ctx, segments[0])
	subscriber.stream <- snapshot
	return subscriber.stream, cleanup, nil
}

// ReadOnce performs one point read. Missing paths yield a nil value.
func (s *Store) ReadOnce(ctx context.Context, path string) (json.RawMessage, error) {
	segments, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	if len(segments) == 1 {
		return s.readCollection(ctx, segments[0])
	}

	row, found, err := s.loadRow(ctx, segments[0], segments[1])
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	if len(segments) == 2 {
		return json.RawMessage(row.ValueJSON), nil
	}

	document, err := decodeDocument(row.ValueJSON)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	nested, ok := getNested(document, segments[2:])
	if !ok {
		return nil, nil
	}
	encoded, err := json.Marshal(nested)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	return encoded, nil
}

// WriteWhole replaces everything at a path: a whole record for record
// paths, the entire collection for a bare collection path.
func (s *Store) WriteWhole(ctx context.Context, path string, value any) error {
	segments, err := splitPath(path)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	switch len(segments) {
	case 1:
		if err := s.replaceCollection(ctx, segments[0], value); err != nil {
			return err
		}
	case 2:
		if err := s.upsertRow(ctx, segments[0], segments[1], value); err != nil {
			return err
		}
	default:
		if err := s.mutateNested(ctx, segments, value, false); err != nil {
			return err
		}
	}

	return s.broadcast(ctx, segments[0])
}

// WriteKey sets a single nested key, leaving sibling keys untouched.
func (s *Store) WriteKey(ctx context.Context, path string, value any) error {
	segments, err := splitPath(path)
	if err != nil {
		return err
	}
	if len(segments) < 2 {
		return fmt.Errorf("%w: key writes need a record path, got %q", ErrInvalidPath, path)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if len(segments) == 2 {
		if err := s.upsertRow(ctx, segments[0], segments[1], value); err != nil {
			return err
		}
	} else {
		if err := s.mutateNested(ctx, segments, value, false); err != nil {
			return err
		}
	}
	return s.broadcast(ctx, segments[0])
}

// RemoveKey deletes the value at a record or nested path. Removing a record
// path is irreversible; there is no tombstone.
func (s *Store) RemoveKey(ctx context.Context, path string) error {
	segments, err := splitPath(path)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	switch len(segments) {
	case 1:
		if err := s.db.WithContext(ctx).Where("collection = ?", segments[0]).Delete(&Row{}).Error; err != nil {
			return fmt.Errorf("%w: %v", ErrWrite, err)
		}
	case 2:
		if err := s.db.WithContext(ctx).
			Where("collection = ? AND record_key = ?", segments[0], segments[1]).
			Delete(&Row{}).Error; err != nil {
			return fmt.Errorf("%w: %v", ErrWrite, err)
		}
	default:
		if err := s.mutateNested(ctx, segments, nil, true); err != nil {
			return err
		}
	}

	return s.broadcast(ctx, segments[0])
}

// Push creates a record under the collection with a store-assigned key.
func (s *Store) Push(ctx context.Context, collection string, value any) (string, error) {
	segments, err := splitPath(collection)
	if err != nil {
		return "", err
	}
	if len(segments) != 1 {
		return "", fmt.Errorf("%w: push expects a collection, got %q", ErrInvalidPath, collection)
	}

	key, err := s.keys.NewKey()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrWrite, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.upsertRow(ctx, segments[0], key, value); err != nil {
		return "", err
	}
	if err := s.broadcast(ctx, segments[0]); err != nil {
		return "", err
	}
	return key, nil
}

func (s *Store) readCollection(ctx context.Context, collection string) (json.RawMessage, error) {
	entries, err := s.loadEntries(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	document := make(map[string]json.RawMessage, len(entries))
	for _, entry := range entries {
		document[entry.Key] = entry.Value
	}
	encoded, err := json.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	return encoded, nil
}

func (s *Store) replaceCollection(ctx context.Context, collection string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	var document map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &document); err != nil {
		return fmt.Errorf("%w: collection value must be an object: %v", ErrWrite, err)
	}

	keys := make([]string, 0, len(document))
	for key := range document {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("collection = ?", collection).Delete(&Row{}).Error; err != nil {
			return err
		}
		for _, key := range keys {
			s.seq++
			row := Row{
				Collection: collection,
				Key:        key,
				ValueJSON:  string(document[key]),
				Seq:        s.seq,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		return fmt.Errorf("%w: %v", ErrWrite, txErr)
	}
	return nil
}

func (s *Store) upsertRow(ctx context.Context, collection, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}

	existing, found, err := s.loadRow(ctx, collection, key)
	if err != nil {
		return err
	}

	if found {
		existing.ValueJSON = string(encoded)
		if err := s.db.WithContext(ctx).Save(&existing).Error; err != nil {
			return fmt.Errorf("%w: %v", ErrWrite, err)
		}
		return nil
	}

	s.seq++
	row := Row{
		Collection: collection,
		Key:        key,
		ValueJSON:  string(encoded),
		Seq:        s.seq,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

// mutateNested performs the read-modify-write for a single nested key. A
// missing record is created on write, matching the intermediate-node
// semantics of hierarchical stores.
func (s *Store) mutateNested(ctx context.Context, segments []string, value any, remove bool) error {
	collection, key := segments[0], segments[1]
	row, found, err := s.loadRow(ctx, collection, key)
	if err != nil {
		return err
	}
	if !found {
		if remove {
			return nil
		}
		row = Row{Collection: collection, Key: key, ValueJSON: "{}"}
	}

	document, err := decodeDocument(row.ValueJSON)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}

	if remove {
		removeNested(document, segments[2:])
	} else {
		setNested(document, segments[2:], value)
	}

	encoded, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	row.ValueJSON = string(encoded)

	if found {
		if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
			return fmt.Errorf("%w: %v", ErrWrite, err)
		}
		return nil
	}
	s.seq++
	row.Seq = s.seq
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

func (s *Store) loadRow(ctx context.Context, collection, key string) (Row, bool, error) {
	var row Row
	err := s.db.WithContext(ctx).
		Where("collection = ? AND record_key = ?", collection, key).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Row{}, false, nil
	}
	if err != nil {
		return Row{}, false, fmt.Errorf("%w: %v", ErrRead, err)
	}
	return row, true, nil
}

func (s *Store) loadEntries(ctx context.Context, collection string) ([]Entry, error) {
	var rows []Row
	if err := s.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("seq ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, Entry{Key: row.Key, Value: json.RawMessage(row.ValueJSON)})
	}
	return entries, nil
}

func (s *Store) loadSnapshot(ctx context.Context, collection string) (Snapshot, error) {
	entries, err := s.loadEntries(ctx, collection)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Entries: entries}, nil
}

func (s *Store) broadcast(ctx context.Context, collection string) error {
	snapshot, err := s.loadSnapshot(ctx, collection)
	if err != nil {
		s.logger.Error("store snapshot broadcast failed",
			zap.String("collection", collection), zap.Error(err))
		return err
	}
	s.dispatcher.publish(collection, snapshot)
	return nil
}

func splitPath(path string) ([]string, error) {
	trimmed := strings.Trim(strings.TrimSpace(path), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	segments := strings.Split(trimmed, "/")
	for _, segment := range segments {
		if segment == "" {
			return nil, fmt.Errorf("%w: blank segment in %q", ErrInvalidPath, path)
		}
	}
	return segments, nil
}

func decodeDocument(valueJSON string) (map[string]any, error) {
	document := make(map[string]any)
	if strings.TrimSpace(valueJSON) == "" {
		return document, nil
	}
	if err := json.Unmarshal([]byte(valueJSON), &document); err != nil {
		return nil, err
	}
	return document, nil
}

func getNested(document map[string]any, segments []string) (any, bool) {
	current := any(document)
	for _, segment := range segments {
		object, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = object[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func setNested(document map[string]any, segments []string, value any) {
	current := document
	for _, segment := range segments[:len(segments)-1] {
		child, ok := current[segment].(map[string]any)
		if !ok {
			child = make(map[string]any)
			current[segment] = child
		}
		current = child
	}
	current[segments[len(segments)-1]] = value
}

func removeNested(document map[string]any, segments []string) {
	current := document
	for _, segment := range segments[:len(segments)-1] {
		child, ok := current[segment].(map[string]any)
		if !ok {
			return
		}
		current = child
	}
	delete(current, segments[len(segments)-1])
}
