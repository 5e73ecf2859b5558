package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// LocalProvider stores attachments as files under a root directory
type LocalProvider struct {
	root   string
	prefix string
}

// NewLocalProvider creates root if needed
func NewLocalProvider(root, prefix string) (*LocalProvider, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &LocalProvider{root: root, prefix: prefix}, nil
}

// resolve maps ref onto a path inside root, rejecting escapes
func (p *LocalProvider) resolve(ref string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(ref, "\\", "/"))
	if clean == "/" || clean != "/"+strings.TrimPrefix(ref, "/") {
		return "", fmt.Errorf("invalid attachment ref %q", ref)
	}
	return filepath.Join(p.root, filepath.FromSlash(clean)), nil
}

// Upload writes r to a new file and returns its key
func (p *LocalProvider) Upload(ctx context.Context, r io.Reader, size int64, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := NewKey(p.prefix, name)
	dst, err := p.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("failed to create attachment dir: %w", err)
	}

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create attachment: %w", err)
	}

	n, err := io.Copy(f, r)
	if err == nil && size >= 0 && n != size {
		err = fmt.Errorf("short write: got %d of %d bytes", n, size)
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("failed to write attachment: %w", err)
	}

	return key, nil
}

// Download reads the file behind ref
func (p *LocalProvider) Download(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := p.resolve(ref)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(src)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment: %w", err)
	}
	return data, nil
}

// Delete removes the file behind ref
func (p *LocalProvider) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := p.resolve(ref)
	if err != nil {
		return err
	}

	err = os.Remove(target)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	return nil
}
