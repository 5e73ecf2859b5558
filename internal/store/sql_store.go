package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/jjenkins/docregistry/internal/model"
	"go.uber.org/zap"
)

// SQLStore keeps documents in a relational table. Storage order is the
// autoincrement seq column.
type SQLStore struct {
	db       *sql.DB
	logger   *zap.Logger
	postgres bool
}

// NewSQLiteStore creates a store over a migrated SQLite database
func NewSQLiteStore(db *sql.DB, logger *zap.Logger) *SQLStore {
	return newSQLStore(db, logger, false)
}

// NewPostgresStore creates a store over a migrated PostgreSQL database
func NewPostgresStore(db *sql.DB, logger *zap.Logger) *SQLStore {
	return newSQLStore(db, logger, true)
}

func newSQLStore(db *sql.DB, logger *zap.Logger, postgres bool) *SQLStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	driver := "sqlite"
	if postgres {
		driver = "postgres"
	}
	return &SQLStore{db: db, logger: logger.With(zap.String("store", driver)), postgres: postgres}
}

// rebind rewrites ? placeholders to $n for PostgreSQL
func (s *SQLStore) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Append inserts doc as a new row
func (s *SQLStore) Append(ctx context.Context, doc *model.Document) error {
	query := `
		INSERT INTO documents (id, document_number, title, issuing_authority,
		                       field, issue_date, attachment_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var issueDate sql.NullString
	if doc.IssueDate.Valid {
		issueDate = sql.NullString{String: doc.ISODate(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		doc.ID,
		doc.Number,
		doc.Title,
		doc.Authority,
		doc.Field,
		issueDate,
		normalizeAttachment(doc.Attachment),
	)
	if err != nil {
		return storeErr(fmt.Sprintf("insert document %s", doc.ID), err)
	}

	return nil
}

// LoadAll returns every row ordered by insertion
func (s *SQLStore) LoadAll(ctx context.Context) (*LoadResult, error) {
	dateExpr := "issue_date"
	if s.postgres {
		dateExpr = "to_char(issue_date, 'YYYY-MM-DD')"
	}

	query := `
		SELECT id, document_number, title, issuing_authority, field,
		       ` + dateExpr + `, attachment_ref
		FROM documents
		ORDER BY seq
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storeErr("query documents", err)
	}
	defer rows.Close()

	result := &LoadResult{}
	for rows.Next() {
		var d model.Document
		var issueDate sql.NullString
		err := rows.Scan(
			&d.ID,
			&d.Number,
			&d.Title,
			&d.Authority,
			&d.Field,
			&issueDate,
			&d.Attachment,
		)
		if err != nil {
			return nil, storeErr("scan document", err)
		}

		d.IssueDate, err = model.ParseDate(issueDate.String)
		if err != nil {
			s.logger.Warn("skipping row with malformed issue date",
				zap.String("id", d.ID),
				zap.String("issue_date", issueDate.String),
			)
			result.Skipped++
			continue
		}
		d.Attachment = normalizeAttachment(d.Attachment)

		result.Documents = append(result.Documents, d)
	}

	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate documents", err)
	}

	return result, nil
}

// DeleteByKey removes every row with the normalized attachment ref
func (s *SQLStore) DeleteByKey(ctx context.Context, key string) (int, error) {
	key = NormalizeRef(key)
	if key == "" {
		return 0, nil
	}
	return s.deleteWhere(ctx, "attachment_ref = ?", key)
}

// DeleteByID removes every row with the given id
func (s *SQLStore) DeleteByID(ctx context.Context, id string) (int, error) {
	if id == "" {
		return 0, nil
	}
	return s.deleteWhere(ctx, "id = ?", id)
}

func (s *SQLStore) deleteWhere(ctx context.Context, cond string, arg any) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storeErr("begin transaction", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, s.rebind("DELETE FROM documents WHERE "+cond), arg)
	if err != nil {
		return 0, storeErr("delete documents", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, storeErr("count deleted rows", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, storeErr("commit transaction", err)
	}

	return int(removed), nil
}

// Close releases the database handle
func (s *SQLStore) Close() error {
	return s.db.Close()
}
