package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dorolabs/novelverse/backend/internal/store"
	"go.uber.org/zap"
)

// FormatVersion tags exported documents so incompatible future layouts are
// rejected on import.
const FormatVersion = 1

var (
	// ErrImportFormat indicates a document is missing required top-level
	// sections or carries an unknown format version.
	ErrImportFormat = errors.New("transfer: invalid document format")
	// ErrOverwriteNotConfirmed indicates the destructive-overwrite gate was
	// not passed.
	ErrOverwriteNotConfirmed = errors.New("transfer: overwrite not confirmed")
)

// Document is the portable snapshot of the whole store: the novels
// collection plus any auxiliary collections, verbatim.
type Document struct {
	FormatVersion int                                   `json:"formatVersion"`
	ExportedAt    int64                                 `json:"exportedAt"`
	Novels        map[string]json.RawMessage            `json:"novels"`
	Auxiliary     map[string]map[string]json.RawMessage `json:"auxiliary,omitempty"`
}

// ServiceConfig describes the dependencies of the export/import surface.
type ServiceConfig struct {
	Store      store.Client
	Collection string
	Auxiliary  []string
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service serializes the entire store to a portable document and restores
// it. This is an administrative bypass of the normal mutation path: likes
// mappings are restored exactly as exported, with no field preservation.
type Service struct {
	store      store.Client
	collection string
	auxiliary  []string
	clock      func() time.Time
	logger     *zap.Logger
}

// NewService constructs the transfer service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("transfer: store client is required")
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "novels"
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:      cfg.Store,
		collection: collection,
		auxiliary:  append([]string(nil), cfg.Auxiliary...),
		clock:      clock,
		logger:     logger,
	}, nil
}

// Export serializes every collection into one versioned document.
func (s *Service) Export(ctx context.Context) (Document, error) {
	novelsSection, err := s.readCollection(ctx, s.collection)
	if err != nil {
		return Document{}, err
	}

	document := Document{
		FormatVersion: FormatVersion,
		ExportedAt:    s.clock().UTC().UnixMilli(),
		Novels:        novelsSection,
	}

	for _, name := range s.auxiliary {
		section, err := s.readCollection(ctx, name)
		if err != nil {
			return Document{}, err
		}
		if document.Auxiliary == nil {
			document.Auxiliary = make(map[string]map[string]json.RawMessage)
		}
		document.Auxiliary[name] = section
	}

	s.logger.Info("collection exported",
		zap.String("collection", s.collection),
		zap.Int("records", len(document.Novels)))
	return document, nil
}

// Import overwrites the whole store from a document. The confirmOverwrite
// gate must be passed explicitly; the operation is destructive.
func (s *Service) Import(ctx context.Context, document Document, confirmOverwrite bool) error {
	if document.FormatVersion != FormatVersion {
		return fmt.Errorf("%w: unsupported format version %d", ErrImportFormat, document.FormatVersion)
	}
	if document.Novels == nil {
		return fmt.Errorf("%w: missing novels section", ErrImportFormat)
	}
	if !confirmOverwrite {
		return ErrOverwriteNotConfirmed
	}

	if err := s.store.WriteWhole(ctx, s.collection, document.Novels); err != nil {
		return err
	}
	for name, section := range document.Auxiliary {
		if err := s.store.WriteWhole(ctx, name, section); err != nil {
			return err
		}
	}

	s.logger.Info("collection restored",
		zap.String("collection", s.collection),
		zap.Int("records", len(document.Novels)))
	return nil
}

func (s *Service) readCollection(ctx context.Context, name string) (map[string]json.RawMessage, error) {
	raw, err := s.store.ReadOnce(ctx, name)
	if err != nil {
		return nil, err
	}
	section := make(map[string]json.RawMessage)
	if raw == nil {
		return section, nil
	}
	if err := json.Unmarshal(raw, &section); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrRead, err)
	}
	return section, nil
}
