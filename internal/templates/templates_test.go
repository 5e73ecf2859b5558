package templates

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/a-h/templ"
	"github.com/jjenkins/docregistry/internal/model"
	"github.com/jjenkins/docregistry/internal/query"
	"github.com/jjenkins/docregistry/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listOf(t *testing.T, docs []model.Document, spec query.Spec) *service.ListResult {
	t.Helper()
	res, err := query.Filter(docs, spec)
	require.NoError(t, err)
	return &service.ListResult{
		Result: res,
		Facets: query.BuildFacets(docs),
		Stats:  service.CalculateStats(docs),
	}
}

func TestHome_RendersRowsAndActions(t *testing.T) {
	docs := []model.Document{
		{ID: "a", Number: "01/QD", Title: "<b>A</b>", Authority: "UBND", IssueDate: model.Date(2024, time.January, 10), Attachment: model.Ref("documents/2024/01/x/a b.pdf")},
		{ID: "b", Number: "02/QD", Title: "B", Authority: "Sở KH"},
	}
	spec := query.Spec{Authorities: []string{"UBND", "Sở KH"}}

	var buf bytes.Buffer
	err := Home(HomeView{
		List:        listOf(t, docs, spec),
		Spec:        spec,
		Flash:       "Đã lưu văn bản.",
		AllowedExts: []string{"pdf"},
		PageSizes:   query.PageSizes,
	}).Render(context.Background(), &buf)
	require.NoError(t, err)

	html := buf.String()
	assert.Contains(t, html, "Đã lưu văn bản.")
	assert.Contains(t, html, "&lt;b&gt;A&lt;/b&gt;", "titles are escaped")
	assert.Contains(t, html, "10/01/2024")
	assert.Contains(t, html, `/documents/download?key=documents%2F2024%2F01%2Fx%2Fa+b.pdf`)
	assert.Contains(t, html, `name="id" value="b"`)
	assert.Contains(t, html, `<option value="UBND" selected>`)
	assert.Contains(t, html, "Trang 1 / 1")
}

func TestDocumentsTable_Pagination(t *testing.T) {
	docs := make([]model.Document, 25)
	for i := range docs {
		docs[i] = model.Document{ID: string(rune('a' + i)), Number: "n", Title: "t"}
	}
	spec := query.Spec{Keyword: "t", Page: 2}

	var buf bytes.Buffer
	err := DocumentsTable(HomeView{List: listOf(t, docs, spec), Spec: spec}).Render(context.Background(), &buf)
	require.NoError(t, err)

	html := buf.String()
	assert.NotContains(t, html, "<!DOCTYPE html>")
	assert.Contains(t, html, "Trang 2 / 3")
	assert.Contains(t, html, `/?page=1&amp;q=t`)
	assert.Contains(t, html, `/?page=3&amp;q=t`)
	assert.Contains(t, html, "<td class=\"px-3 py-2\">11</td>", "row numbers continue across pages")
}

func TestHome_WithoutList(t *testing.T) {
	var buf bytes.Buffer
	err := Home(HomeView{Error: "store unavailable"}).Render(context.Background(), &buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "store unavailable")
}

func TestDocumentForm_KeepsValuesAndErrors(t *testing.T) {
	var buf bytes.Buffer
	err := DocumentForm(HomeView{
		Form:        service.SubmitInput{Title: `Tiêu đề "cũ"`, IssueDate: "32/01/2024"},
		FormErrors:  map[string]string{"number": "is required", "issue_date": "must be YYYY-MM-DD or DD/MM/YYYY"},
		AllowedExts: []string{"pdf", "docx"},
	}).Render(context.Background(), &buf)
	require.NoError(t, err)

	html := buf.String()
	assert.Contains(t, html, `value="Tiêu đề &#34;cũ&#34;"`)
	assert.Contains(t, html, `<span class="text-sm text-red-700">is required</span>`)
	assert.Contains(t, html, "Đính kèm (pdf, docx)")
	assert.NotContains(t, html, "text-red-700\">type must", "fields without errors show no message")
}

func TestExportURL(t *testing.T) {
	spec := query.Spec{Keyword: "hà nội", PageSize: 20, Page: 3}
	assert.Equal(t, templ.SafeURL("/export?format=csv&q=h%C3%A0+n%E1%BB%99i"), exportURL(spec, "csv"))
}
