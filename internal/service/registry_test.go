package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jjenkins/docregistry/internal/model"
	"github.com/jjenkins/docregistry/internal/query"
	"github.com/jjenkins/docregistry/internal/storage"
	"github.com/jjenkins/docregistry/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// flakyProvider wraps a real provider and fails selected operations
type flakyProvider struct {
	storage.Provider
	uploadErr error
	deleteErr error
	deleted   []string
}

func (p *flakyProvider) Upload(ctx context.Context, r io.Reader, size int64, name string) (string, error) {
	if p.uploadErr != nil {
		return "", p.uploadErr
	}
	return p.Provider.Upload(ctx, r, size, name)
}

func (p *flakyProvider) Delete(ctx context.Context, ref string) error {
	p.deleted = append(p.deleted, ref)
	if p.deleteErr != nil {
		return p.deleteErr
	}
	return p.Provider.Delete(ctx, ref)
}

// failingStore rejects appends
type failingStore struct {
	store.Store
}

func (failingStore) Append(context.Context, *model.Document) error {
	return &store.Error{Op: "append row", Err: errors.New("disk full")}
}

// conflictingStore loses every row delete to a concurrent writer
type conflictingStore struct {
	store.Store
}

func (conflictingStore) DeleteByKey(context.Context, string) (int, error) {
	return 0, &store.Error{Op: "rewrite table", Err: store.ErrConcurrentModification}
}

func (conflictingStore) DeleteByID(context.Context, string) (int, error) {
	return 0, &store.Error{Op: "rewrite table", Err: store.ErrConcurrentModification}
}

func newTestRegistry(t *testing.T) (*Registry, *flakyProvider, store.Store) {
	t.Helper()
	dir := t.TempDir()
	local, err := storage.NewLocalProvider(filepath.Join(dir, "attachments"), "documents")
	require.NoError(t, err)
	provider := &flakyProvider{Provider: local}
	st := store.NewCSVStore(filepath.Join(dir, "vanban.csv"), nil)
	return NewRegistry(st, provider, []string{"pdf", "docx"}, nil), provider, st
}

func pdf(name, body string) *Attachment {
	return &Attachment{Name: name, Size: int64(len(body)), Body: strings.NewReader(body)}
}

func TestSubmit_WithAttachment(t *testing.T) {
	reg, _, st := newTestRegistry(t)
	ctx := context.Background()

	doc, err := reg.Submit(ctx, SubmitInput{
		Number:     " 01/QD ",
		Title:      "Quyết định A",
		Authority:  "UBND",
		IssueDate:  "10/01/2024",
		Attachment: pdf("a.pdf", "%PDF-1.4"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, "01/QD", doc.Number)
	assert.Equal(t, "2024-01-10", doc.ISODate())
	require.True(t, doc.HasAttachment())
	assert.Equal(t, "a.pdf", doc.AttachmentName())

	loaded, err := st.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Document{*doc}, loaded.Documents)

	data, name, err := reg.Download(ctx, doc.Attachment.String)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
	assert.Equal(t, "a.pdf", name)
}

func TestSubmit_WithoutAttachment(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	doc, err := reg.Submit(context.Background(), SubmitInput{Number: "02/QD", Title: "Kế hoạch B"})
	require.NoError(t, err)
	assert.False(t, doc.HasAttachment())
	assert.False(t, doc.IssueDate.Valid)
}

func TestSubmit_Validation(t *testing.T) {
	reg, _, st := newTestRegistry(t)

	_, err := reg.Submit(context.Background(), SubmitInput{
		Number:     "  ",
		IssueDate:  "2024-13-45",
		Attachment: pdf("virus.exe", "MZ"),
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"attachment", "issue_date", "number", "title"}, sortedFieldNames(verr))
	assert.Contains(t, err.Error(), "number: is required")

	loaded, err := st.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded.Documents)
}

func sortedFieldNames(verr *ValidationError) []string {
	var names []string
	for _, n := range []string{"attachment", "issue_date", "number", "title"} {
		if _, ok := verr.Fields[n]; ok {
			names = append(names, n)
		}
	}
	return names
}

func TestSubmit_UploadFailureAppendsNothing(t *testing.T) {
	reg, provider, st := newTestRegistry(t)
	provider.uploadErr = errors.New("quota exceeded")

	_, err := reg.Submit(context.Background(), SubmitInput{
		Number:     "01",
		Title:      "t",
		Attachment: pdf("a.pdf", "x"),
	})
	var serr *ExternalStorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "upload", serr.Op)

	loaded, err := st.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded.Documents)
}

func TestSubmit_AppendFailureRemovesBlob(t *testing.T) {
	reg, provider, st := newTestRegistry(t)
	reg.store = failingStore{Store: st}

	_, err := reg.Submit(context.Background(), SubmitInput{
		Number:     "01",
		Title:      "t",
		Attachment: pdf("a.pdf", "x"),
	})
	var storeError *store.Error
	require.ErrorAs(t, err, &storeError)

	require.Len(t, provider.deleted, 1)
	_, err = provider.Provider.Download(context.Background(), provider.deleted[0])
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRegistry_ScenarioFromListToDelete(t *testing.T) {
	reg, provider, _ := newTestRegistry(t)
	ctx := context.Background()

	a, err := reg.Submit(ctx, SubmitInput{
		Number: "01/QD", Title: "A", Authority: "UBND", IssueDate: "2024-01-10",
		Attachment: pdf("a.pdf", "a"),
	})
	require.NoError(t, err)
	b, err := reg.Submit(ctx, SubmitInput{
		Number: "02/QD", Title: "B", Authority: "Sở KH", IssueDate: "2024-03-01",
	})
	require.NoError(t, err)

	list, err := reg.List(ctx, query.Spec{Keyword: "01"})
	require.NoError(t, err)
	require.Len(t, list.Documents, 1)
	assert.Equal(t, a.ID, list.Documents[0].ID)
	assert.Equal(t, []string{"Sở KH", "UBND"}, list.Facets.Authorities)
	assert.Equal(t, 2, list.Stats.TotalDocuments)

	list, err = reg.List(ctx, query.Spec{DateFrom: model.Date(2024, time.February, 1)})
	require.NoError(t, err)
	require.Len(t, list.Documents, 1)
	assert.Equal(t, b.ID, list.Documents[0].ID)

	res, err := reg.Delete(ctx, store.LegacyUploadPrefix+" "+a.Attachment.String)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)
	assert.False(t, res.Orphaned)
	assert.Equal(t, []string{a.Attachment.String}, provider.deleted)

	list, err = reg.List(ctx, query.Spec{})
	require.NoError(t, err)
	require.Len(t, list.Documents, 1)
	assert.Equal(t, b.ID, list.Documents[0].ID)
}

func TestDelete_UnknownKeyIsNoop(t *testing.T) {
	reg, provider, _ := newTestRegistry(t)

	res, err := reg.Delete(context.Background(), "documents/nope.pdf")
	require.NoError(t, err)
	assert.Zero(t, res.Removed)
	assert.Empty(t, provider.deleted, "no provider call for unknown keys")

	res, err = reg.DeleteByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Zero(t, res.Removed)
}

func TestDelete_ProviderFailureStillRemovesRow(t *testing.T) {
	reg, provider, st := newTestRegistry(t)
	ctx := context.Background()

	a, err := reg.Submit(ctx, SubmitInput{Number: "1", Title: "t", Attachment: pdf("a.pdf", "x")})
	require.NoError(t, err)

	provider.deleteErr = errors.New("network unreachable")
	res, err := reg.Delete(ctx, a.Attachment.String)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)
	assert.True(t, res.Orphaned)

	loaded, err := st.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded.Documents)
}

func TestDelete_MissingBlobIsNotOrphaned(t *testing.T) {
	reg, provider, _ := newTestRegistry(t)
	ctx := context.Background()

	a, err := reg.Submit(ctx, SubmitInput{Number: "1", Title: "t", Attachment: pdf("a.pdf", "x")})
	require.NoError(t, err)
	require.NoError(t, provider.Provider.Delete(ctx, a.Attachment.String))

	res, err := reg.Delete(ctx, a.Attachment.String)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)
	assert.False(t, res.Orphaned)
}

func TestDeleteByID(t *testing.T) {
	reg, provider, _ := newTestRegistry(t)
	ctx := context.Background()

	plain, err := reg.Submit(ctx, SubmitInput{Number: "1", Title: "no file"})
	require.NoError(t, err)
	withFile, err := reg.Submit(ctx, SubmitInput{Number: "2", Title: "file", Attachment: pdf("b.docx", "x")})
	require.NoError(t, err)

	res, err := reg.DeleteByID(ctx, plain.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)
	assert.Empty(t, provider.deleted)

	res, err = reg.DeleteByID(ctx, withFile.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)
	assert.Equal(t, []string{withFile.Attachment.String}, provider.deleted)
}

func TestDelete_FailedRowDeleteKeepsBlob(t *testing.T) {
	reg, provider, st := newTestRegistry(t)
	ctx := context.Background()

	a, err := reg.Submit(ctx, SubmitInput{Number: "1", Title: "t", Attachment: pdf("a.pdf", "%PDF")})
	require.NoError(t, err)
	reg.store = conflictingStore{Store: st}

	_, err = reg.Delete(ctx, a.Attachment.String)
	require.ErrorIs(t, err, store.ErrConcurrentModification)

	_, err = reg.DeleteByID(ctx, a.ID)
	require.ErrorIs(t, err, store.ErrConcurrentModification)

	assert.Empty(t, provider.deleted, "the blob outlives a row that could not be deleted")

	data, name, err := reg.Download(ctx, a.Attachment.String)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))
	assert.Equal(t, "a.pdf", name)
}

func TestDeleteByID_SharedAttachmentIsKept(t *testing.T) {
	reg, provider, st := newTestRegistry(t)
	ctx := context.Background()

	a, err := reg.Submit(ctx, SubmitInput{Number: "1", Title: "t", Attachment: pdf("a.pdf", "%PDF")})
	require.NoError(t, err)
	twin := model.Document{ID: "twin", Number: "1b", Title: "same file", Attachment: a.Attachment}
	require.NoError(t, st.Append(ctx, &twin))

	res, err := reg.DeleteByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)
	assert.False(t, res.Orphaned)
	assert.Empty(t, provider.deleted)

	data, _, err := reg.Download(ctx, a.Attachment.String)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))

	res, err = reg.DeleteByID(ctx, "twin")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)
	assert.Equal(t, []string{a.Attachment.String}, provider.deleted)
}

func TestDownload_UnregisteredKey(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	_, _, err := reg.Download(context.Background(), "documents/2024/01/x/secret.pdf")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, _, err = reg.Download(context.Background(), "  ")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestExport(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	for i, title := range []string{"Một", "Hai, ba"} {
		_, err := reg.Submit(ctx, SubmitInput{
			Number:    string(rune('1' + i)),
			Title:     title,
			Authority: "UBND",
			IssueDate: "2024-01-10",
		})
		require.NoError(t, err)
	}

	var csvBuf bytes.Buffer
	n, err := reg.Export(ctx, query.Spec{}, FormatCSV, &csvBuf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t,
		"\ufeffSố văn bản,Tiêu đề,Cơ quan,Lĩnh vực,Ngày ban hành,File\n"+
			"1,Một,UBND,,10/01/2024,\n"+
			"2,\"Hai, ba\",UBND,,10/01/2024,\n",
		csvBuf.String())

	var xlsxBuf bytes.Buffer
	n, err = reg.Export(ctx, query.Spec{Keyword: "hai"}, FormatXLSX, &xlsxBuf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f, err := excelize.OpenReader(&xlsxBuf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(ExportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Tiêu đề", rows[0][1])
	assert.Equal(t, "Hai, ba", rows[1][1])

	_, err = reg.Export(ctx, query.Spec{}, "pdf", io.Discard)
	require.ErrorContains(t, err, "unsupported export format")
}

func TestCalculateStats(t *testing.T) {
	docs := []model.Document{
		{Authority: "UBND", Field: "Đất đai", Attachment: model.Ref("a.pdf"), IssueDate: model.Date(2023, time.May, 1)},
		{Authority: "Sở KH", IssueDate: model.Date(2024, time.January, 2)},
		{Authority: "UBND", Field: "Đất đai"},
		{Authority: "Sở KH"},
	}

	stats := CalculateStats(docs)
	assert.Equal(t, 4, stats.TotalDocuments)
	assert.Equal(t, 1, stats.WithAttachment)
	assert.Equal(t, 2, stats.TotalAuthorities)
	assert.Equal(t, 1, stats.TotalFields)
	assert.Equal(t, "Sở KH", stats.TopAuthority, "ties go to the first name in sort order")
	assert.Equal(t, 2, stats.TopAuthorityCount)
	assert.Equal(t, model.Date(2024, time.January, 2), stats.LatestIssueDate)

	empty := CalculateStats(nil)
	assert.Zero(t, empty.TotalDocuments)
	assert.Empty(t, empty.TopAuthority)
}
