package store

import (
	"bytes"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/jjenkins/docregistry/internal/model"
	"golang.org/x/text/unicode/norm"
)

// Columns is the canonical header of a flat document table
var Columns = []string{
	"id",
	"document_number",
	"title",
	"issuing_authority",
	"field",
	"issue_date",
	"attachment_ref",
}

type column int

const (
	colID column = iota
	colNumber
	colTitle
	colAuthority
	colField
	colIssueDate
	colDisplayDate
	colAttachment
)

// columnAliases maps header names written by every known revision of the
// table onto canonical columns. Within one column the first alias present in
// a header wins.
var columnAliases = []struct {
	col   column
	names []string
}{
	{colID, []string{"id"}},
	{colNumber, []string{"document_number", "Số văn bản", "so_van_ban"}},
	{colTitle, []string{"title", "Tiêu đề", "Tên văn bản", "tieu_de"}},
	{colAuthority, []string{"issuing_authority", "Cơ quan", "Cơ quan ban hành", "co_quan"}},
	{colField, []string{"field", "Lĩnh vực", "linh_vuc"}},
	{colIssueDate, []string{"issue_date", "NgayBH"}},
	{colDisplayDate, []string{"Ngày ban hành", "ngay_ban_hanh"}},
	{colAttachment, []string{"attachment_ref", "FileID", "File Dropbox", "Link", "file_dinh_kem"}},
}

// bom is the UTF-8 byte order mark written by spreadsheet exports
const bom = "\ufeff"

// legacyIDSpace namespaces ids derived for rows written before ids existed
var legacyIDSpace = uuid.MustParse("6f1c2b8e-3f5a-4d2e-9c61-0b7f4e2a9d13")

// tableLayout records where each canonical column sits in a header
type tableLayout struct {
	index map[column]int
	width int
}

func (l tableLayout) has(c column) bool {
	_, ok := l.index[c]
	return ok
}

func (l tableLayout) cell(row []string, c column) string {
	i, ok := l.index[c]
	if !ok {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// canonical reports whether the header is exactly the current column set
func (l tableLayout) canonical() bool {
	if l.width != len(Columns) {
		return false
	}
	for i, c := range []column{colID, colNumber, colTitle, colAuthority, colField, colIssueDate, colAttachment} {
		if j, ok := l.index[c]; !ok || j != i {
			return false
		}
	}
	return true
}

func headerName(s string) string {
	s = strings.TrimPrefix(s, bom)
	return norm.NFC.String(strings.TrimSpace(s))
}

// resolveLayout maps a header row onto canonical columns
func resolveLayout(header []string) (tableLayout, error) {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		name := headerName(h)
		if _, dup := positions[name]; !dup {
			positions[name] = i
		}
	}

	layout := tableLayout{index: make(map[column]int), width: len(header)}
	for _, alias := range columnAliases {
		for _, name := range alias.names {
			if i, ok := positions[norm.NFC.String(name)]; ok {
				layout.index[alias.col] = i
				break
			}
		}
	}

	if !layout.has(colNumber) || !layout.has(colTitle) {
		return tableLayout{}, fmt.Errorf("%w: header %q", ErrUnrecognizedSchema, header)
	}
	return layout, nil
}

// decodeRow turns one data row into a document. undated reports a legacy
// row whose date could not be read and was left empty.
func (l tableLayout) decodeRow(row []string) (doc model.Document, undated bool, err error) {
	if len(row) != l.width {
		return model.Document{}, false, fmt.Errorf("expected %d fields, got %d", l.width, len(row))
	}

	doc = model.Document{
		Number:     l.cell(row, colNumber),
		Title:      l.cell(row, colTitle),
		Authority:  l.cell(row, colAuthority),
		Field:      l.cell(row, colField),
		Attachment: normalizeAttachment(sql.NullString{String: l.cell(row, colAttachment), Valid: true}),
	}

	doc.IssueDate, undated, err = l.issueDate(row)
	if err != nil {
		return model.Document{}, false, err
	}

	switch {
	case l.canonical():
		doc.ID = l.cell(row, colID)
		if doc.ID == "" {
			return model.Document{}, false, errors.New("missing id")
		}
	case isUUID(l.cell(row, colID)):
		doc.ID = l.cell(row, colID)
	default:
		// integer keys of the SQLite revision are not unique across registers
		doc.ID = legacyID(row)
	}

	return doc, undated, nil
}

// issueDate reads the canonical ISO column strictly. Legacy layouts try the
// ISO column, then the display column, and fall back to no date.
func (l tableLayout) issueDate(row []string) (sql.NullTime, bool, error) {
	iso := l.cell(row, colIssueDate)
	if l.canonical() {
		date, err := model.ParseDate(iso)
		return date, false, err
	}

	display := l.cell(row, colDisplayDate)
	for _, raw := range []string{iso, display} {
		if raw == "" {
			continue
		}
		if date, err := model.ParseDate(raw); err == nil {
			return date, false, nil
		}
	}
	return sql.NullTime{}, iso != "" || display != "", nil
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// legacyID derives a stable id from the row content
func legacyID(row []string) string {
	return uuid.NewSHA1(legacyIDSpace, []byte(strings.Join(row, "\x1f"))).String()
}

// encodeRow renders doc in canonical column order
func encodeRow(doc *model.Document) []string {
	return []string{
		doc.ID,
		doc.Number,
		doc.Title,
		doc.Authority,
		doc.Field,
		doc.ISODate(),
		attachmentCell(doc.Attachment),
	}
}

// tableRow is one data row. Rows that could not be decoded keep their
// original text so a rewrite carries them over unchanged.
type tableRow struct {
	doc model.Document
	raw []byte
}

// table is a parsed flat table in storage order
type table struct {
	layout  tableLayout
	rows    []tableRow
	undated int
}

func (t *table) result() *LoadResult {
	res := &LoadResult{Undated: t.undated}
	for i := range t.rows {
		if t.rows[i].raw != nil {
			res.Skipped++
			continue
		}
		res.Documents = append(res.Documents, t.rows[i].doc)
	}
	return res
}

func docRows(docs []model.Document) []tableRow {
	rows := make([]tableRow, len(docs))
	for i := range docs {
		rows[i] = tableRow{doc: docs[i]}
	}
	return rows
}

// ReadTable decodes a flat document table of any known revision. Malformed
// rows are skipped and counted; an empty input yields an empty result.
func ReadTable(r io.Reader) (*LoadResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read table: %w", err)
	}
	t, err := parseTable(data)
	if err != nil {
		return nil, err
	}
	return t.result(), nil
}

func newTableReader(data []byte) *csv.Reader {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	return reader
}

func parseTable(data []byte) (*table, error) {
	data = bytes.TrimPrefix(data, []byte(bom))
	reader := newTableReader(data)

	t := &table{}

	header, err := reader.Read()
	if err == io.EOF {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	t.layout, err = resolveLayout(header)
	if err != nil {
		return nil, err
	}

	for {
		start := reader.InputOffset()
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		var parseErr *csv.ParseError
		if err != nil && !errors.As(err, &parseErr) {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}

		if err == nil {
			doc, undated, derr := t.layout.decodeRow(row)
			if derr == nil {
				if undated {
					t.undated++
				}
				t.rows = append(t.rows, tableRow{doc: doc})
				continue
			}
		}

		t.rows = append(t.rows, tableRow{raw: bytes.Clone(data[start:reader.InputOffset()])})
	}

	return t, nil
}

// readLayout resolves the header row only
func readLayout(data []byte) (tableLayout, error) {
	header, err := newTableReader(bytes.TrimPrefix(data, []byte(bom))).Read()
	if err != nil {
		return tableLayout{}, fmt.Errorf("failed to read header: %w", err)
	}
	return resolveLayout(header)
}

// WriteTable encodes docs with the canonical header
func WriteTable(w io.Writer, docs []model.Document) error {
	return writeRows(w, docRows(docs))
}

func writeRows(w io.Writer, rows []tableRow) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i := range rows {
		if rows[i].raw == nil {
			if err := writer.Write(encodeRow(&rows[i].doc)); err != nil {
				return fmt.Errorf("failed to write row: %w", err)
			}
			continue
		}

		writer.Flush()
		if err := writer.Error(); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
		raw := rows[i].raw
		if !bytes.HasSuffix(raw, []byte("\n")) {
			raw = append(raw, '\n')
		}
		if _, err := w.Write(raw); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
