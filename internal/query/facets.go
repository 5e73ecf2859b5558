package query

import (
	"database/sql"
	"sort"

	"github.com/jjenkins/docregistry/internal/model"
)

// Facets holds the choices offered by the filter panel
type Facets struct {
	Authorities []string
	Fields      []string
	Extensions  []string
	// Earliest and Latest bound the default date range
	Earliest sql.NullTime
	Latest   sql.NullTime
}

// BuildFacets collects the sorted distinct values present in docs
func BuildFacets(docs []model.Document) *Facets {
	authorities := make(map[string]bool)
	fields := make(map[string]bool)
	exts := make(map[string]bool)
	f := &Facets{}

	for _, d := range docs {
		if d.Authority != "" {
			authorities[d.Authority] = true
		}
		if d.Field != "" {
			fields[d.Field] = true
		}
		if ext := d.AttachmentExt(); ext != "" {
			exts[ext] = true
		}
		if d.IssueDate.Valid {
			if !f.Earliest.Valid || d.IssueDate.Time.Before(f.Earliest.Time) {
				f.Earliest = d.IssueDate
			}
			if !f.Latest.Valid || d.IssueDate.Time.After(f.Latest.Time) {
				f.Latest = d.IssueDate
			}
		}
	}

	f.Authorities = sortedKeys(authorities)
	f.Fields = sortedKeys(fields)
	f.Extensions = sortedKeys(exts)
	return f
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
