package handlers

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jjenkins/docregistry/internal/query"
	"github.com/jjenkins/docregistry/internal/service"
	"github.com/jjenkins/docregistry/internal/storage"
	"github.com/jjenkins/docregistry/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) (*fiber.App, *service.Registry) {
	t.Helper()
	dir := t.TempDir()
	provider, err := storage.NewLocalProvider(filepath.Join(dir, "attachments"), "documents")
	require.NoError(t, err)
	st := store.NewCSVStore(filepath.Join(dir, "vanban.csv"), nil)
	reg := service.NewRegistry(st, provider, []string{"pdf", "docx"}, nil)

	app := NewApp(&Deps{
		Registry:    reg,
		AllowedExts: []string{"pdf", "docx"},
		BodyLimit:   4 << 20,
	})
	return app, reg
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func multipartForm(t *testing.T, fields map[string]string, fileName, fileBody string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := w.CreateFormFile("attachment", fileName)
		require.NoError(t, err)
		_, err = fw.Write([]byte(fileBody))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func seed(t *testing.T, reg *service.Registry) (withFile, plain string) {
	t.Helper()
	ctx := context.Background()
	a, err := reg.Submit(ctx, service.SubmitInput{
		Number: "01/QD", Title: "Quyết định A", Authority: "Hà Nội", IssueDate: "2024-01-10",
		Attachment: &service.Attachment{Name: "a.pdf", Size: 4, Body: strings.NewReader("%PDF")},
	})
	require.NoError(t, err)
	b, err := reg.Submit(ctx, service.SubmitInput{
		Number: "02/QD", Title: "Kế hoạch B", Authority: "Sở KH", IssueDate: "2024-03-01",
	})
	require.NoError(t, err)
	return a.Attachment.String, b.ID
}

func TestHealth(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body(t, resp))
}

func TestHome_ListsAndFilters(t *testing.T) {
	app, reg := newTestApp(t)
	seed(t, reg)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	html := body(t, resp)
	assert.Contains(t, html, "<!DOCTYPE html>")
	assert.Contains(t, html, "Quyết định A")
	assert.Contains(t, html, "Kế hoạch B")
	assert.Contains(t, html, "10/01/2024")

	req := httptest.NewRequest(http.MethodGet, "/?q="+url.QueryEscape("ha noi"), nil)
	req.Header.Set("HX-Request", "true")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	html = body(t, resp)
	assert.NotContains(t, html, "<!DOCTYPE html>", "htmx requests get the fragment only")
	assert.Contains(t, html, "Quyết định A")
	assert.NotContains(t, html, "Kế hoạch B")
}

func TestHome_RepeatedFilterValues(t *testing.T) {
	app, reg := newTestApp(t)
	seed(t, reg)

	q := url.Values{"authority": {"Hà Nội", "Sở KH"}, "ext": {"pdf"}}
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/?"+q.Encode(), nil))
	require.NoError(t, err)
	html := body(t, resp)
	assert.Contains(t, html, "Quyết định A")
	assert.NotContains(t, html, "Kế hoạch B")
}

func TestHome_InvalidFilterStillRenders(t *testing.T) {
	app, reg := newTestApp(t)
	seed(t, reg)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/?size=7", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	html := body(t, resp)
	assert.Contains(t, html, "invalid page size")
	assert.Contains(t, html, "Quyết định A")
}

func TestHome_BadDateKeepsKeyword(t *testing.T) {
	app, reg := newTestApp(t)
	seed(t, reg)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/?q="+url.QueryEscape("ha noi")+"&from=bad", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	html := body(t, resp)
	assert.Contains(t, html, "invalid date")
	assert.Contains(t, html, "Quyết định A")
	assert.NotContains(t, html, "Kế hoạch B", "the keyword still filters")
}

func TestCreateDocument(t *testing.T) {
	app, reg := newTestApp(t)

	form, contentType := multipartForm(t, map[string]string{
		"number": "05/CV", "title": "Công văn", "authority": "UBND", "issue_date": "2024-05-05",
	}, "cv.pdf", "%PDF-1.7")
	req := httptest.NewRequest(http.MethodPost, "/documents", form)
	req.Header.Set(fiber.HeaderContentType, contentType)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/?flash=created", resp.Header.Get(fiber.HeaderLocation))

	list, err := reg.List(context.Background(), query.Spec{})
	require.NoError(t, err)
	require.Len(t, list.Documents, 1)
	assert.Equal(t, "cv.pdf", list.Documents[0].AttachmentName())
}

func TestCreateDocument_ValidationErrors(t *testing.T) {
	app, reg := newTestApp(t)

	form, contentType := multipartForm(t, map[string]string{
		"number": "", "title": "Giữ lại tiêu đề", "issue_date": "32/01/2024",
	}, "", "")
	req := httptest.NewRequest(http.MethodPost, "/documents", form)
	req.Header.Set(fiber.HeaderContentType, contentType)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	html := body(t, resp)
	assert.Contains(t, html, "is required")
	assert.Contains(t, html, `value="Giữ lại tiêu đề"`)

	list, err := reg.List(context.Background(), query.Spec{})
	require.NoError(t, err)
	assert.Zero(t, list.Total)
}

func TestDownload(t *testing.T) {
	app, reg := newTestApp(t)
	key, _ := seed(t, reg)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/documents/download?key="+url.QueryEscape(key), nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, fiber.MIMEOctetStream, resp.Header.Get(fiber.HeaderContentType))
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentDisposition), "a.pdf")
	assert.Equal(t, "%PDF", body(t, resp))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/documents/download?key=documents/none.pdf", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func postForm(t *testing.T, app *fiber.App, path string, values url.Values) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestDelete(t *testing.T) {
	app, reg := newTestApp(t)
	key, plainID := seed(t, reg)

	resp := postForm(t, app, "/documents/delete", url.Values{"key": {key}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/?flash=deleted", resp.Header.Get(fiber.HeaderLocation))

	resp = postForm(t, app, "/documents/delete", url.Values{"key": {key}})
	assert.Equal(t, "/?flash=noop", resp.Header.Get(fiber.HeaderLocation))

	resp = postForm(t, app, "/documents/delete", url.Values{"id": {plainID}})
	assert.Equal(t, "/?flash=deleted", resp.Header.Get(fiber.HeaderLocation))

	list, err := reg.List(context.Background(), query.Spec{})
	require.NoError(t, err)
	assert.Zero(t, list.Total)
}

func TestExport(t *testing.T) {
	app, reg := newTestApp(t)
	seed(t, reg)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/export?format=csv&authority="+url.QueryEscape("Sở KH"), nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentDisposition), "vanban_loc.csv")
	csv := body(t, resp)
	assert.Contains(t, csv, "02/QD")
	assert.NotContains(t, csv, "01/QD")

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/export", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", resp.Header.Get(fiber.HeaderContentType))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/export?format=pdf", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/export?format=csv&from=bad", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
