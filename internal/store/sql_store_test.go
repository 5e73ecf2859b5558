package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jjenkins/docregistry/internal/config"
	"github.com/jjenkins/docregistry/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) (*SQLStore, *sql.DB) {
	t.Helper()
	db, err := NewSQLiteDB(context.Background(), ":memory:")
	require.NoError(t, err)
	s := NewSQLiteStore(db, nil)
	t.Cleanup(func() { _ = s.Close() })
	return s, db
}

func TestSQLiteStore_EmptyTable(t *testing.T) {
	s, _ := newTestSQLiteStore(t)

	res, err := s.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Documents)
}

func TestSQLiteStore_AppendLoadDelete(t *testing.T) {
	s, _ := newTestSQLiteStore(t)
	ctx := context.Background()

	a, b := docA(), docB()
	require.NoError(t, s.Append(ctx, &a))
	require.NoError(t, s.Append(ctx, &b))

	res, err := s.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Document{a, b}, res.Documents)

	removed, err := s.DeleteByKey(ctx, LegacyUploadPrefix+" /x/a.pdf ")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = s.DeleteByKey(ctx, "/x/a.pdf")
	require.NoError(t, err)
	assert.Zero(t, removed)

	res, err = s.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Document{b}, res.Documents)

	removed, err = s.DeleteByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestSQLiteStore_DuplicateRefsAllRemoved(t *testing.T) {
	s, _ := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3"} {
		d := docA()
		d.ID = id
		require.NoError(t, s.Append(ctx, &d))
	}

	removed, err := s.DeleteByKey(ctx, "/x/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
}

func TestSQLiteStore_SkipsMalformedDates(t *testing.T) {
	s, db := newTestSQLiteStore(t)
	ctx := context.Background()

	a := docA()
	require.NoError(t, s.Append(ctx, &a))
	_, err := db.Exec(`INSERT INTO documents (id, document_number, title, issue_date) VALUES ('bad', '9', 't', 'not a date')`)
	require.NoError(t, err)

	res, err := s.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, res.Documents, 1)
	assert.Equal(t, 1, res.Skipped)
}

func TestSQLiteStore_NoAttachmentStoredAsNull(t *testing.T) {
	s, db := newTestSQLiteStore(t)
	ctx := context.Background()

	b := docB()
	b.Attachment = model.Ref(NoAttachment)
	require.NoError(t, s.Append(ctx, &b))

	var ref sql.NullString
	require.NoError(t, db.QueryRow(`SELECT attachment_ref FROM documents WHERE id = ?`, b.ID).Scan(&ref))
	assert.False(t, ref.Valid)
}

func TestOpen_SQLite(t *testing.T) {
	s, err := Open(context.Background(), config.StoreConfig{Driver: config.StoreSQLite, Path: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	assert.IsType(t, &SQLStore{}, s)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "sheets"}, nil)
	require.ErrorContains(t, err, "unknown store driver")
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{postgres: true}
	assert.Equal(t, "a = $1 AND b = $2", pg.rebind("a = ? AND b = ?"))

	lite := &SQLStore{}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func newMockPostgresStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db, nil), mock
}

func TestPostgresStore_Append(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	a := docA()
	mock.ExpectExec(regexp.QuoteMeta("VALUES ($1, $2, $3, $4, $5, $6, $7)")).
		WithArgs("id-a", "01/QD", "Quyết định A", "UBND", "Tài chính", "2024-01-10", "/x/a.pdf").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.Append(context.Background(), &a))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendFailure(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec("INSERT INTO documents").WillReturnError(errors.New("disk full"))

	a := docA()
	err := s.Append(context.Background(), &a)
	var storeError *Error
	require.ErrorAs(t, err, &storeError)
	assert.Contains(t, err.Error(), "disk full")
}

func TestPostgresStore_LoadAll(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := sqlmock.NewRows([]string{"id", "document_number", "title", "issuing_authority", "field", "issue_date", "attachment_ref"}).
		AddRow("id-a", "01/QD", "Quyết định A", "UBND", "Tài chính", "2024-01-10", "/x/a.pdf").
		AddRow("id-b", "02/QD", "Kế hoạch B", "Sở KH", "", "2024-03-01", nil)
	mock.ExpectQuery(regexp.QuoteMeta("to_char(issue_date, 'YYYY-MM-DD')")).WillReturnRows(rows)

	res, err := s.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.Document{docA(), docB()}, res.Documents)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteByKey(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents WHERE attachment_ref = $1")).
		WithArgs("/x/a.pdf").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	removed, err := s.DeleteByKey(context.Background(), " /x/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteRollsBackOnError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM documents").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := s.DeleteByID(context.Background(), "id-a")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
