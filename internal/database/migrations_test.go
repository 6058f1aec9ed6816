package database

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/dorolabs/novelverse/backend/internal/store"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openBare(t *testing.T, path string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&store.Row{}, &migrationRecord{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	if _, err := OpenSQLite("", nil); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpenSQLiteInitializesSchemaAndMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.db")
	db, err := OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	var records []migrationRecord
	if err := db.Find(&records).Error; err != nil {
		t.Fatalf("failed to read migration records: %v", err)
	}
	if len(records) == 0 {
		t.Fatal("expected applied migrations to be recorded")
	}
	found := false
	for _, record := range records {
		if record.Name == migrationRepairLikeMarkers {
			found = true
			if record.AppliedAtSeconds == 0 {
				t.Fatal("migration record missing applied-at time")
			}
		}
	}
	if !found {
		t.Fatalf("like-marker repair migration not recorded: %v", records)
	}
}

func TestRepairLikeMarkerValuesCoercesStoredValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")
	db := openBare(t, path)

	legacy := store.Row{
		Collection: "novels",
		Key:        "n1",
		ValueJSON:  `{"title":"Old","likes":{"u1":1,"u2":"yes","u3":true}}`,
		Seq:        1,
	}
	if err := db.Create(&legacy).Error; err != nil {
		t.Fatalf("failed to seed legacy row: %v", err)
	}
	untouched := store.Row{
		Collection: "profiles",
		Key:        "u1",
		ValueJSON:  `{"likes":{"u9":0}}`,
		Seq:        2,
	}
	if err := db.Create(&untouched).Error; err != nil {
		t.Fatalf("failed to seed auxiliary row: %v", err)
	}

	if err := applyMigrations(db, nil); err != nil {
		t.Fatalf("migration run failed: %v", err)
	}

	var repaired store.Row
	if err := db.Where("collection = ? AND record_key = ?", "novels", "n1").Take(&repaired).Error; err != nil {
		t.Fatalf("failed to read repaired row: %v", err)
	}
	var document struct {
		Title string          `json:"title"`
		Likes map[string]bool `json:"likes"`
	}
	if err := json.Unmarshal([]byte(repaired.ValueJSON), &document); err != nil {
		t.Fatalf("repaired document undecodable: %v", err)
	}
	if document.Title != "Old" {
		t.Fatalf("unrelated fields must survive repair: %+v", document)
	}
	if len(document.Likes) != 3 || !document.Likes["u1"] || !document.Likes["u2"] || !document.Likes["u3"] {
		t.Fatalf("like markers not coerced to true: %v", document.Likes)
	}

	var aux store.Row
	if err := db.Where("collection = ?", "profiles").Take(&aux).Error; err != nil {
		t.Fatalf("failed to read auxiliary row: %v", err)
	}
	if aux.ValueJSON != untouched.ValueJSON {
		t.Fatalf("rows outside the novels collection must not change: %s", aux.ValueJSON)
	}
}

func TestMigrationsRunOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rerun.db")
	db := openBare(t, path)

	if err := applyMigrations(db, nil); err != nil {
		t.Fatalf("first migration run failed: %v", err)
	}
	var first migrationRecord
	if err := db.Where("name = ?", migrationRepairLikeMarkers).Take(&first).Error; err != nil {
		t.Fatalf("migration record missing: %v", err)
	}

	if err := applyMigrations(db, nil); err != nil {
		t.Fatalf("second migration run failed: %v", err)
	}
	var count int64
	if err := db.Model(&migrationRecord{}).Where("name = ?", migrationRepairLikeMarkers).Count(&count).Error; err != nil {
		t.Fatalf("failed to count migration records: %v", err)
	}
	if count != 1 {
		t.Fatalf("migration must be recorded exactly once, got %d", count)
	}
}
