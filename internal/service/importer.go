package service

import (
	"context"
	"fmt"
	"io"

	"github.com/jjenkins/docregistry/internal/store"
	"go.uber.org/zap"
)

// ImportStats tracks import statistics
type ImportStats struct {
	Total     int
	Imported  int
	Unchanged int
	Skipped   int
	Failed    int
	// Undated counts rows kept without their unreadable issue date
	Undated int
}

// Importer copies rows from a legacy table export into a store
type Importer struct {
	store  store.Store
	logger *zap.Logger
	// DryRun decodes and counts rows without appending them
	DryRun bool
}

// NewImporter creates a new Importer
func NewImporter(st store.Store, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{store: st, logger: logger}
}

// Import reads a table in any known column layout from r and appends every
// row whose id the store does not hold yet. Legacy ids are derived from row
// content, so importing the same file twice adds nothing the second time.
func (i *Importer) Import(ctx context.Context, r io.Reader) (*ImportStats, error) {
	table, err := store.ReadTable(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read import table: %w", err)
	}

	existing, err := i.store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing documents: %w", err)
	}
	seen := make(map[string]bool, len(existing.Documents))
	for _, d := range existing.Documents {
		seen[d.ID] = true
	}

	stats := &ImportStats{
		Total:   len(table.Documents) + table.Skipped,
		Skipped: table.Skipped,
		Undated: table.Undated,
	}
	i.logger.Info("importing documents",
		zap.Int("rows", stats.Total),
		zap.Int("malformed", table.Skipped),
		zap.Int("undated", table.Undated),
		zap.Bool("dry_run", i.DryRun),
	)

	for idx := range table.Documents {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		doc := &table.Documents[idx]

		if seen[doc.ID] {
			stats.Unchanged++
			continue
		}

		if !i.DryRun {
			if err := i.store.Append(ctx, doc); err != nil {
				i.logger.Error("failed to import document",
					zap.String("number", doc.Number),
					zap.Error(err),
				)
				stats.Failed++
				continue
			}
		}

		seen[doc.ID] = true
		stats.Imported++
		i.logger.Debug("imported document",
			zap.Int("progress", idx+1),
			zap.String("id", doc.ID),
			zap.String("number", doc.Number),
		)
	}

	return stats, nil
}

// PrintSummary writes the import statistics to w
func (s *ImportStats) PrintSummary(w io.Writer) {
	fmt.Fprintln(w, "=== Import Summary ===")
	fmt.Fprintf(w, "Total rows:      %d\n", s.Total)
	fmt.Fprintf(w, "Imported:        %d\n", s.Imported)
	fmt.Fprintf(w, "Unchanged:       %d (already present)\n", s.Unchanged)
	fmt.Fprintf(w, "Skipped:         %d (malformed)\n", s.Skipped)
	fmt.Fprintf(w, "Failed:          %d\n", s.Failed)
	if s.Undated > 0 {
		fmt.Fprintf(w, "Undated:         %d (issue date unreadable)\n", s.Undated)
	}

	if attempted := s.Total - s.Skipped - s.Unchanged; attempted > 0 {
		successRate := float64(s.Imported) / float64(attempted) * 100
		fmt.Fprintf(w, "Success rate:    %.1f%%\n", successRate)
	}
}
