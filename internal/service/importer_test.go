package service

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jjenkins/docregistry/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const legacyExport = "Số văn bản,Tiêu đề,Cơ quan,Lĩnh vực,Ngày ban hành,NgayBH,File Dropbox\n" +
	"01/QD,Quyết định,UBND,Đất đai,10/01/2024,2024-01-10,✅ Đã upload thành công tới: /Quan/a.pdf\n" +
	"02/QD,Công văn,Sở KH,,01/03/2024,,Không có\n" +
	"broken,row\n"

func TestImporter_Import(t *testing.T) {
	st := store.NewCSVStore(filepath.Join(t.TempDir(), "vanban.csv"), nil)
	imp := NewImporter(st, nil)
	ctx := context.Background()

	stats, err := imp.Import(ctx, strings.NewReader(legacyExport))
	require.NoError(t, err)
	assert.Equal(t, &ImportStats{Total: 3, Imported: 2, Skipped: 1}, stats)

	loaded, err := st.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Documents, 2)
	assert.Equal(t, "/Quan/a.pdf", loaded.Documents[0].Attachment.String)
	assert.Equal(t, "2024-03-01", loaded.Documents[1].ISODate())

	again, err := imp.Import(ctx, strings.NewReader(legacyExport))
	require.NoError(t, err)
	assert.Equal(t, 2, again.Unchanged)
	assert.Zero(t, again.Imported)

	loaded, err = st.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded.Documents, 2, "re-import adds nothing")
}

func TestImporter_KeepsRowsWithUnreadableDates(t *testing.T) {
	st := store.NewCSVStore(filepath.Join(t.TempDir(), "vanban.csv"), nil)
	in := "Số văn bản,Tiêu đề,Cơ quan,Lĩnh vực,Ngày ban hành,NgayBH,File Dropbox\n" +
		"01/QD,Quyết định,UBND,,31/02/2024,,Không có\n"

	stats, err := NewImporter(st, nil).Import(context.Background(), strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, &ImportStats{Total: 1, Imported: 1, Undated: 1}, stats)

	loaded, err := st.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded.Documents, 1)
	assert.False(t, loaded.Documents[0].IssueDate.Valid)
}

func TestImporter_DryRun(t *testing.T) {
	st := store.NewCSVStore(filepath.Join(t.TempDir(), "vanban.csv"), nil)
	imp := NewImporter(st, nil)
	imp.DryRun = true

	stats, err := imp.Import(context.Background(), strings.NewReader(legacyExport))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Imported)

	loaded, err := st.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded.Documents)
}

func TestImporter_UnrecognizedSchema(t *testing.T) {
	st := store.NewCSVStore(filepath.Join(t.TempDir(), "vanban.csv"), nil)

	_, err := NewImporter(st, nil).Import(context.Background(), strings.NewReader("a,b\n1,2\n"))
	require.ErrorIs(t, err, store.ErrUnrecognizedSchema)
}

func TestImportStats_PrintSummary(t *testing.T) {
	var buf bytes.Buffer
	(&ImportStats{Total: 5, Imported: 3, Unchanged: 1, Skipped: 1}).PrintSummary(&buf)

	out := buf.String()
	assert.Contains(t, out, "Imported:        3")
	assert.Contains(t, out, "Success rate:    100.0%")
}
