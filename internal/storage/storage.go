// Package storage is the object store for logos, avatars and vendor
// documents. Paths are slash-separated keys such as
// "vendor-documents/42/3f9c2a1b.pdf".
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/diewo77/go-quotations/internal/config"
	"github.com/google/uuid"
)

// Namespaces for stored objects.
const (
	NamespaceDocuments = "vendor-documents"
	NamespaceLogos     = "company-logos"
	NamespaceAvatars   = "avatars"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// Store is implemented by LocalStore and GCSStore.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	URL(key string) string
}

// ObjectKey builds "<namespace>/<owner>/<8 hex chars><ext>", keeping the
// original extension in lower case.
func ObjectKey(namespace string, owner uint, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return path.Join(namespace, fmt.Sprint(owner), uuid.New().String()[:8]+ext)
}

// cleanKey normalizes key so it always resolves below the store root.
func cleanKey(key string) (string, error) {
	k := path.Clean("/" + strings.TrimSpace(key))
	k = strings.TrimPrefix(k, "/")
	if k == "" || k == "." {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return k, nil
}

// FromConfig builds the store selected by cfg.Driver.
func FromConfig(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocalStore(cfg.Dir, cfg.PublicURL)
	case "gcs":
		return NewGCSStore(ctx, cfg.Bucket)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
