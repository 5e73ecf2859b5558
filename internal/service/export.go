package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/jjenkins/docregistry/internal/model"
	"github.com/jjenkins/docregistry/internal/query"
	"github.com/xuri/excelize/v2"
)

// Export formats
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

// ExportSheet is the worksheet name of XLSX exports
const ExportSheet = "DanhSach"

var exportHeader = []string{
	"Số văn bản",
	"Tiêu đề",
	"Cơ quan",
	"Lĩnh vực",
	"Ngày ban hành",
	"File",
}

func exportRow(d model.Document) []string {
	return []string{
		d.Number,
		d.Title,
		d.Authority,
		d.Field,
		d.DisplayDate(),
		d.Attachment.String,
	}
}

// ContentType returns the MIME type and file name for an export format
func ContentType(format string) (mime, filename string, err error) {
	switch format {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "vanban_loc.xlsx", nil
	case FormatCSV:
		return "text/csv; charset=utf-8", "vanban_loc.csv", nil
	default:
		return "", "", fmt.Errorf("unsupported export format %q", format)
	}
}

// Export writes every record matching spec, unpaginated, to w
func (r *Registry) Export(ctx context.Context, spec query.Spec, format string, w io.Writer) (int, error) {
	if _, _, err := ContentType(format); err != nil {
		return 0, err
	}

	loaded, err := r.store.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	docs, err := query.NewEngine(loaded.Documents).All(spec)
	if err != nil {
		return 0, err
	}

	if format == FormatXLSX {
		err = writeXLSX(w, docs)
	} else {
		err = writeCSV(w, docs)
	}
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// writeCSV emits UTF-8 with a BOM so spreadsheet apps detect the encoding
func writeCSV(w io.Writer, docs []model.Document) error {
	if _, err := io.WriteString(w, "\ufeff"); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, d := range docs {
		if err := cw.Write(exportRow(d)); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

func writeXLSX(w io.Writer, docs []model.Document) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ExportSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	widths := make([]int, len(exportHeader))
	rows := make([][]string, 0, len(docs)+1)
	rows = append(rows, exportHeader)
	for _, d := range docs {
		rows = append(rows, exportRow(d))
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
			widths[j] = max(widths[j], utf8.RuneCountInString(v))
		}
		if err := f.SetSheetRow(ExportSheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	for j, n := range widths {
		col, err := excelize.ColumnNumberToName(j + 1)
		if err != nil {
			return err
		}
		width := min(40, max(12, float64(n)*1.1))
		if err := f.SetColWidth(ExportSheet, col, col, width); err != nil {
			return fmt.Errorf("failed to size column %s: %w", col, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write xlsx: %w", err)
	}
	return nil
}
