// Package query filters and paginates document listings. It performs no I/O.
package query

import (
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/jjenkins/docregistry/internal/model"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultPageSize is used when a Spec leaves PageSize unset
const DefaultPageSize = 10

// PageSizes lists the accepted page sizes
var PageSizes = []int{10, 20, 50, 100}

// ErrInvalidPageSize is returned for a page size outside PageSizes
var ErrInvalidPageSize = errors.New("invalid page size")

// Spec describes which documents to show and which page of them
type Spec struct {
	Keyword     string
	Authorities []string
	Fields      []string
	Extensions  []string
	DateFrom    sql.NullTime
	DateTo      sql.NullTime
	PageSize    int
	Page        int
}

// Result is one page of filtered documents
type Result struct {
	Documents []model.Document
	Total     int
	Page      int
	PageSize  int
	PageCount int
}

// HasPrev reports whether a page precedes this one
func (r *Result) HasPrev() bool { return r.Page > 1 }

// HasNext reports whether a page follows this one
func (r *Result) HasNext() bool { return r.Page < r.PageCount }

// Offset is the zero-based position of the first document on the page
func (r *Result) Offset() int { return (r.Page - 1) * r.PageSize }

var stripMarks = runes.Remove(runes.In(unicode.Mn))

// Normalize folds s for accent and case insensitive matching. "Hà Nội"
// and "ha noi" normalize to the same string.
func Normalize(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, stripMarks, norm.NFC), s)
	if err != nil {
		folded = s
	}
	// đ has no canonical decomposition
	folded = strings.NewReplacer("đ", "d", "Đ", "d").Replace(folded)
	return strings.TrimSpace(strings.ToLower(folded))
}

// Engine answers repeated queries over a fixed document slice
type Engine struct {
	docs      []model.Document
	haystacks []string
}

// NewEngine precomputes the keyword haystack of every document
func NewEngine(docs []model.Document) *Engine {
	haystacks := make([]string, len(docs))
	for i, d := range docs {
		haystacks[i] = Normalize(strings.Join([]string{
			d.Number, d.Title, d.Authority, d.Field, d.AttachmentName(),
		}, " "))
	}
	return &Engine{docs: docs, haystacks: haystacks}
}

// Filter is a one-shot Engine query
func Filter(docs []model.Document, spec Spec) (*Result, error) {
	return NewEngine(docs).Filter(spec)
}

// Filter applies every predicate of spec and returns the requested page
func (e *Engine) Filter(spec Spec) (*Result, error) {
	matched, size, err := e.match(spec)
	if err != nil {
		return nil, err
	}

	total := len(matched)
	pageCount := max(1, (total+size-1)/size)
	page := min(max(spec.Page, 1), pageCount)

	start := min((page-1)*size, total)
	end := min(start+size, total)

	return &Result{
		Documents: matched[start:end],
		Total:     total,
		Page:      page,
		PageSize:  size,
		PageCount: pageCount,
	}, nil
}

// All returns every document matching spec, ignoring pagination
func (e *Engine) All(spec Spec) ([]model.Document, error) {
	matched, _, err := e.match(spec)
	return matched, err
}

func (e *Engine) match(spec Spec) ([]model.Document, int, error) {
	size := spec.PageSize
	if size == 0 {
		size = DefaultPageSize
	}
	if !slices.Contains(PageSizes, size) {
		return nil, 0, fmt.Errorf("%w: %d (want one of %v)", ErrInvalidPageSize, size, PageSizes)
	}

	authorities := toSet(spec.Authorities, strings.TrimSpace)
	fields := toSet(spec.Fields, strings.TrimSpace)
	exts := toSet(spec.Extensions, func(s string) string {
		return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))
	})
	needle := Normalize(spec.Keyword)

	matched := make([]model.Document, 0, len(e.docs))
	for i, d := range e.docs {
		if authorities != nil && !authorities[d.Authority] {
			continue
		}
		if fields != nil && !fields[d.Field] {
			continue
		}
		if exts != nil && (!d.HasAttachment() || !exts[d.AttachmentExt()]) {
			continue
		}
		if !inRange(d.IssueDate, spec.DateFrom, spec.DateTo) {
			continue
		}
		if needle != "" && !strings.Contains(e.haystacks[i], needle) {
			continue
		}
		matched = append(matched, d)
	}

	return matched, size, nil
}

func inRange(date, from, to sql.NullTime) bool {
	if !from.Valid && !to.Valid {
		return true
	}
	if !date.Valid {
		return false
	}
	if from.Valid && date.Time.Before(from.Time) {
		return false
	}
	if to.Valid && date.Time.After(to.Time) {
		return false
	}
	return true
}

// toSet returns nil when no non-blank value remains, meaning "no filter"
func toSet(values []string, clean func(string) string) map[string]bool {
	var set map[string]bool
	for _, v := range values {
		v = clean(v)
		if v == "" {
			continue
		}
		if set == nil {
			set = make(map[string]bool)
		}
		set[v] = true
	}
	return set
}
