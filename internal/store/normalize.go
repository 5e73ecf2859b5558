package store

import (
	"database/sql"
	"strings"
)

const (
	// LegacyUploadPrefix was embedded into stored refs by an older upload
	// confirmation path and must never reach the storage provider
	LegacyUploadPrefix = "✅ Đã upload thành công tới:"

	// NoAttachment marks a row without an attached file
	NoAttachment = "Không có"
)

// NormalizeRef trims a stored or looked-up attachment ref and strips the
// legacy confirmation prefix
func NormalizeRef(ref string) string {
	ref = strings.TrimSpace(ref)
	ref = strings.TrimPrefix(ref, LegacyUploadPrefix)
	return strings.TrimSpace(ref)
}

// normalizeAttachment maps legacy absence markers to an invalid NullString
func normalizeAttachment(v sql.NullString) sql.NullString {
	if !v.Valid {
		return v
	}
	ref := NormalizeRef(v.String)
	if ref == "" || ref == NoAttachment {
		return sql.NullString{}
	}
	return sql.NullString{String: ref, Valid: true}
}

// attachmentCell renders an attachment for a flat table cell
func attachmentCell(v sql.NullString) string {
	v = normalizeAttachment(v)
	if !v.Valid {
		return NoAttachment
	}
	return v.String
}
