package model

import (
	"database/sql"
	"fmt"
	"path"
	"strings"
	"time"
)

const (
	// ISODateLayout is the canonical storage format for issue dates
	ISODateLayout = "2006-01-02"
	// DisplayDateLayout is the day/month/year form shown to users
	DisplayDateLayout = "02/01/2006"
)

// Document represents one registered document with an optional attached file
type Document struct {
	ID         string
	Number     string
	Title      string
	Authority  string
	Field      string
	IssueDate  sql.NullTime
	Attachment sql.NullString
}

// HasAttachment reports whether the document references a stored file
func (d Document) HasAttachment() bool {
	return d.Attachment.Valid && d.Attachment.String != ""
}

// AttachmentName returns the base file name of the attachment ref
func (d Document) AttachmentName() string {
	if !d.HasAttachment() {
		return ""
	}
	return path.Base(strings.ReplaceAll(d.Attachment.String, "\\", "/"))
}

// AttachmentExt returns the lower-case extension of the attachment without the dot
func (d Document) AttachmentExt() string {
	ext := path.Ext(d.AttachmentName())
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ISODate returns the issue date as YYYY-MM-DD, or "" when absent
func (d Document) ISODate() string {
	if !d.IssueDate.Valid {
		return ""
	}
	return d.IssueDate.Time.Format(ISODateLayout)
}

// DisplayDate returns the issue date as DD/MM/YYYY, or "" when absent
func (d Document) DisplayDate() string {
	if !d.IssueDate.Valid {
		return ""
	}
	return d.IssueDate.Time.Format(DisplayDateLayout)
}

// ParseDate parses an ISO or day/month/year date. An empty string yields an
// invalid NullTime and no error.
func ParseDate(s string) (sql.NullTime, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullTime{}, nil
	}
	for _, layout := range []string{ISODateLayout, DisplayDateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return sql.NullTime{Time: t, Valid: true}, nil
		}
	}
	return sql.NullTime{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD or DD/MM/YYYY", s)
}

// Date builds a valid NullTime for the given calendar day in UTC
func Date(year int, month time.Month, day int) sql.NullTime {
	return sql.NullTime{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), Valid: true}
}

// Ref builds a present attachment ref
func Ref(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}
