package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/jjenkins/docregistry/internal/model"
	"go.uber.org/zap"
)

// CSVStore keeps documents in a single flat CSV file. Deletes rewrite the
// whole file into a temporary sibling and rename it over the original.
type CSVStore struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewCSVStore creates a store backed by the file at path. The file is
// created on the first Append.
func NewCSVStore(path string, logger *zap.Logger) *CSVStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVStore{path: path, logger: logger.With(zap.String("store", "csv"), zap.String("path", path))}
}

// snapshot is the raw table plus its digest, used to detect writers that
// replaced the file while a rewrite was being prepared
type snapshot struct {
	data   []byte
	digest [sha256.Size]byte
	exists bool
}

func (s *CSVStore) readSnapshot() (snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return snapshot{digest: sha256.Sum256(nil)}, nil
	}
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{data: data, digest: sha256.Sum256(data), exists: true}, nil
}

// Append adds one row. A missing file is created with the canonical header;
// a file with a legacy header is first migrated to the canonical layout.
func (s *CSVStore) Append(ctx context.Context, doc *model.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.readSnapshot()
	if err != nil {
		return storeErr("read table", err)
	}

	row := *doc
	row.Attachment = normalizeAttachment(row.Attachment)

	if !snap.exists || len(bytes.TrimSpace(bytes.TrimPrefix(snap.data, []byte(bom)))) == 0 {
		return storeErr("create table", s.replace(snap, docRows([]model.Document{row})))
	}

	layout, err := readLayout(snap.data)
	if err != nil {
		return storeErr("read table", err)
	}
	if layout.canonical() {
		return storeErr("append row", s.appendRow(snap.data, &row))
	}

	t, err := parseTable(snap.data)
	if err != nil {
		return storeErr("read table", err)
	}
	s.logger.Info("migrating legacy table to canonical columns",
		zap.Int("rows", len(t.rows)),
		zap.Int("undated", t.undated),
	)
	return storeErr("migrate table", s.replace(snap, append(t.rows, tableRow{doc: row})))
}

func (s *CSVStore) appendRow(existing []byte, doc *model.Document) error {
	var buf bytes.Buffer
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		buf.WriteByte('\n')
	}
	w := csv.NewWriter(&buf)
	if err := w.Write(encodeRow(doc)); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadAll reads the whole table. A missing file is an empty table.
func (s *CSVStore) LoadAll(ctx context.Context) (*LoadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap, err := s.readSnapshot()
	if err != nil {
		return nil, storeErr("read table", err)
	}
	if !snap.exists {
		return &LoadResult{}, nil
	}

	res, err := ReadTable(bytes.NewReader(snap.data))
	if err != nil {
		return nil, storeErr("decode table", err)
	}
	if res.Skipped > 0 {
		s.logger.Warn("skipped malformed rows", zap.Int("skipped", res.Skipped))
	}
	if res.Undated > 0 {
		s.logger.Warn("legacy rows with unreadable issue dates", zap.Int("undated", res.Undated))
	}
	return res, nil
}

// DeleteByKey removes every row whose attachment ref matches key
func (s *CSVStore) DeleteByKey(ctx context.Context, key string) (int, error) {
	key = NormalizeRef(key)
	if key == "" {
		return 0, nil
	}
	return s.deleteWhere(ctx, func(d *model.Document) bool {
		return d.Attachment.Valid && d.Attachment.String == key
	})
}

// DeleteByID removes every row with the given id
func (s *CSVStore) DeleteByID(ctx context.Context, id string) (int, error) {
	if id == "" {
		return 0, nil
	}
	return s.deleteWhere(ctx, func(d *model.Document) bool {
		return d.ID == id
	})
}

func (s *CSVStore) deleteWhere(ctx context.Context, match func(*model.Document) bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.readSnapshot()
	if err != nil {
		return 0, storeErr("read table", err)
	}
	if !snap.exists {
		return 0, nil
	}

	t, err := parseTable(snap.data)
	if err != nil {
		return 0, storeErr("decode table", err)
	}

	// undecodable rows are never matched and are written back as they were
	kept := t.rows[:0]
	removed := 0
	for i := range t.rows {
		if t.rows[i].raw == nil && match(&t.rows[i].doc) {
			removed++
			continue
		}
		kept = append(kept, t.rows[i])
	}

	if removed == 0 {
		return 0, nil
	}

	if err := s.replace(snap, kept); err != nil {
		return 0, storeErr("rewrite table", err)
	}
	return removed, nil
}

// replace writes rows to a temporary file next to the table and renames it
// into place, provided the table still matches snap
func (s *CSVStore) replace(snap snapshot, rows []tableRow) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}

	if err := writeRows(tmp, rows); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	current, err := s.readSnapshot()
	if err != nil {
		return err
	}
	if current.exists != snap.exists || current.digest != snap.digest {
		return ErrConcurrentModification
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}

// Close is a no-op; the file is opened per operation
func (s *CSVStore) Close() error {
	return nil
}
