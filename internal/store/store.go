package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jjenkins/docregistry/internal/config"
	"github.com/jjenkins/docregistry/internal/model"
	"go.uber.org/zap"
)

var (
	// ErrUnrecognizedSchema is returned when a table header cannot be mapped
	// onto the document columns
	ErrUnrecognizedSchema = errors.New("unrecognized table schema")

	// ErrConcurrentModification is returned when the backing table changed
	// between reading it and replacing it
	ErrConcurrentModification = errors.New("backing store modified concurrently")
)

// Error wraps a failure of the backing table
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store: failed to %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// LoadResult is the decoded content of the backing table
type LoadResult struct {
	Documents []model.Document
	// Skipped counts rows that could not be decoded
	Skipped int
	// Undated counts legacy rows kept without their unreadable issue date
	Undated int
}

// Store is the durable, append-mostly table of documents
type Store interface {
	// Append persists doc as a new row, creating the table when needed
	Append(ctx context.Context, doc *model.Document) error

	// LoadAll returns every row in storage order, oldest first
	LoadAll(ctx context.Context) (*LoadResult, error)

	// DeleteByKey removes every row whose normalized attachment ref equals key
	DeleteByKey(ctx context.Context, key string) (int, error)

	// DeleteByID removes every row carrying the synthetic id
	DeleteByID(ctx context.Context, id string) (int, error)

	Close() error
}

// Open builds the store selected by cfg
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case config.StoreCSV:
		return NewCSVStore(cfg.Path, logger), nil
	case config.StoreSQLite:
		db, err := NewSQLiteDB(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return NewSQLiteStore(db, logger), nil
	case config.StorePostgres:
		db, err := NewDB(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := Migrate(ctx, db, config.StorePostgres); err != nil {
			db.Close()
			return nil, err
		}
		return NewPostgresStore(db, logger), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
