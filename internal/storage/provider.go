// Package storage keeps attachment bytes outside the record store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jjenkins/docregistry/internal/config"
)

// ErrNotFound is returned when a ref names no stored object
var ErrNotFound = errors.New("attachment not found")

// Provider persists attachment bytes and hands back an opaque ref
type Provider interface {
	// Upload stores size bytes read from r under a fresh ref derived from name
	Upload(ctx context.Context, r io.Reader, size int64, name string) (string, error)
	Download(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}

// Open builds the provider selected by cfg
func Open(ctx context.Context, cfg config.StorageConfig) (Provider, error) {
	switch cfg.Driver {
	case config.StorageLocal:
		return NewLocalProvider(cfg.Dir, cfg.Prefix)
	case config.StorageS3:
		return NewS3Provider(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// seams for tests
var (
	now     = time.Now
	newUUID = uuid.NewString
)

var unsafeChars = regexp.MustCompile(`[^\p{L}\p{N}._-]+`)

// SanitizeName reduces a client supplied file name to a safe base name
func SanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "file"
	}
	return name
}

// NewKey returns a unique key of the form prefix/yyyy/mm/uuid/name
func NewKey(prefix, name string) string {
	t := now().UTC()
	key := fmt.Sprintf("%04d/%02d/%s/%s", t.Year(), int(t.Month()), newUUID(), SanitizeName(name))
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		key = prefix + "/" + key
	}
	return key
}
