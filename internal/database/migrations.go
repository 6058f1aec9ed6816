package database

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/dorolabs/novelverse/backend/internal/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationRepairLikeMarkers = "2026-08-12_repair_like_marker_values"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationRepairLikeMarkers, apply: repairLikeMarkerValues},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// repairLikeMarkerValues coerces every value in a record's likes mapping to
// true. Older writers stored arbitrary values; only key presence counts.
func repairLikeMarkerValues(db *gorm.DB) error {
	var rows []store.Row
	if err := db.Where("collection = ?", "novels").Find(&rows).Error; err != nil {
		return err
	}

	for _, row := range rows {
		var document map[string]json.RawMessage
		if err := json.Unmarshal([]byte(row.ValueJSON), &document); err != nil {
			continue
		}
		rawLikes, ok := document["likes"]
		if !ok {
			continue
		}

		var likes map[string]json.RawMessage
		if err := json.Unmarshal(rawLikes, &likes); err != nil {
			continue
		}
		repaired := make(map[string]bool, len(likes))
		dirty := false
		for viewerID, value := range likes {
			repaired[viewerID] = true
			if string(value) != "true" {
				dirty = true
			}
		}
		if !dirty {
			continue
		}

		encodedLikes, err := json.Marshal(repaired)
		if err != nil {
			return err
		}
		document["likes"] = encodedLikes
		encoded, err := json.Marshal(document)
		if err != nil {
			return err
		}
		row.ValueJSON = string(encoded)
		if err := db.Save(&row).Error; err != nil {
			return err
		}
	}
	return nil
}
