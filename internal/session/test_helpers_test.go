package session

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dorolabs/novelverse/backend/internal/novels"
	"github.com/dorolabs/novelverse/backend/internal/store"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	databasePath := filepath.Join(t.TempDir(), "session.db")

	db, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&store.Row{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	s, err := store.New(store.Config{Database: db})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	return s
}

// refreshProjector re-projects the current collection state, standing in
// for a subscription emission.
func refreshProjector(t *testing.T, s store.Client, projector *novels.Projector, viewer novels.Viewer) {
	t.Helper()
	raw, err := s.ReadOnce(context.Background(), DefaultCollection)
	if err != nil {
		t.Fatalf("collection read failed: %v", err)
	}
	entries := make([]novels.Entry, 0)
	if raw != nil {
		var collection map[string]json.RawMessage
		if err := json.Unmarshal(raw, &collection); err != nil {
			t.Fatalf("collection decode failed: %v", err)
		}
		for key, value := range collection {
			var record novels.Record
			if err := json.Unmarshal(value, &record); err != nil {
				t.Fatalf("record decode failed: %v", err)
			}
			entries = append(entries, novels.Entry{Key: key, Record: record})
		}
	}
	projector.Apply(entries, viewer)
}

func readStoredRecord(t *testing.T, s store.Client, key string) novels.Record {
	t.Helper()
	raw, err := s.ReadOnce(context.Background(), DefaultCollection+"/"+key)
	if err != nil {
		t.Fatalf("record read failed: %v", err)
	}
	if raw == nil {
		t.Fatalf("record %q not found", key)
	}
	var record novels.Record
	if err := json.Unmarshal(raw, &record); err != nil {
		t.Fatalf("record decode failed: %v", err)
	}
	return record
}

type recordingNotifier struct {
	mu        sync.Mutex
	successes []string
	failures  []string
}

func (n *recordingNotifier) Success(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, message)
}

func (n *recordingNotifier) Failure(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, message)
}

func (n *recordingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.successes), len(n.failures)
}

type recordingClipboard struct {
	copied []string
}

func (c *recordingClipboard) Copy(text string) error {
	c.copied = append(c.copied, text)
	return nil
}

func waitFor(t *testing.T, deadline time.Duration, condition func() bool) {
	t.Helper()
	expire := time.Now().Add(deadline)
	for time.Now().Before(expire) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
