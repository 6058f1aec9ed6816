package images

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxUploadBytes is the fixed ceiling for accepted image blobs.
const MaxUploadBytes = 32 << 20

var (
	// ErrTooLarge indicates a blob exceeds the upload ceiling.
	ErrTooLarge = errors.New("images: blob exceeds size ceiling")
	// ErrEmptyBlob indicates an upload carried no bytes.
	ErrEmptyBlob = errors.New("images: empty blob")
)

// Host accepts binary blobs and returns retrievable reference URLs.
type Host interface {
	Save(ctx context.Context, blob []byte, contentType string) (string, error)
}

// DirHostConfig describes the filesystem-backed image host.
type DirHostConfig struct {
	Dir     string
	BaseURL string
	Logger  *zap.Logger
}

// DirHost stores image blobs under a directory and serves them by UUID name.
type DirHost struct {
	dir     string
	baseURL string
	logger  *zap.Logger
}

var _ Host = (*DirHost)(nil)

// NewDirHost constructs the host and ensures the directory exists.
func NewDirHost(cfg DirHostConfig) (*DirHost, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errors.New("images: directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirHost{
		dir:     cfg.Dir,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  logger,
	}, nil
}

// Dir returns the backing directory, for static serving.
func (h *DirHost) Dir() string {
	return h.dir
}

// Save writes the blob and returns its reference URL.
func (h *DirHost) Save(_ context.Context, blob []byte, contentType string) (string, error) {
	if len(blob) == 0 {
		return "", ErrEmptyBlob
	}
	if len(blob) > MaxUploadBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLarge, len(blob))
	}

	name, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	fileName := name.String() + extensionFor(contentType)
	if err := os.WriteFile(filepath.Join(h.dir, fileName), blob, 0o644); err != nil {
		return "", err
	}

	h.logger.Debug("image stored",
		zap.String("file", fileName), zap.Int("bytes", len(blob)))
	return h.baseURL + "/images/" + fileName, nil
}

func extensionFor(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
