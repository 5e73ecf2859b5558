package service

import (
	"database/sql"
	"sort"

	"github.com/jjenkins/docregistry/internal/model"
)

// Stats represents registry-wide totals shown above the listing
type Stats struct {
	TotalDocuments    int
	WithAttachment    int
	TotalAuthorities  int
	TotalFields       int
	TopAuthority      string
	TopAuthorityCount int
	LatestIssueDate   sql.NullTime
}

// CalculateStats computes Stats over every loaded record
func CalculateStats(docs []model.Document) *Stats {
	stats := &Stats{TotalDocuments: len(docs)}

	byAuthority := make(map[string]int)
	fields := make(map[string]bool)

	for _, d := range docs {
		if d.HasAttachment() {
			stats.WithAttachment++
		}
		if d.Authority != "" {
			byAuthority[d.Authority]++
		}
		if d.Field != "" {
			fields[d.Field] = true
		}
		if d.IssueDate.Valid && (!stats.LatestIssueDate.Valid || d.IssueDate.Time.After(stats.LatestIssueDate.Time)) {
			stats.LatestIssueDate = d.IssueDate
		}
	}

	stats.TotalAuthorities = len(byAuthority)
	stats.TotalFields = len(fields)

	// Find top authority by document count, ties broken by name
	names := make([]string, 0, len(byAuthority))
	for name := range byAuthority {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if byAuthority[name] > stats.TopAuthorityCount {
			stats.TopAuthority = name
			stats.TopAuthorityCount = byAuthority[name]
		}
	}

	return stats
}
