// Package templates renders the registry pages as templ components.
package templates

import (
	"database/sql"
	"net/url"
	"slices"
	"strings"

	"github.com/a-h/templ"
	"github.com/jjenkins/docregistry/internal/model"
	"github.com/jjenkins/docregistry/internal/query"
	"github.com/jjenkins/docregistry/internal/service"
)

// HomeView is everything the registry page shows
type HomeView struct {
	List        *service.ListResult
	Spec        query.Spec
	Flash       string
	Error       string
	Form        service.SubmitInput
	FormErrors  map[string]string
	AllowedExts []string
	PageSizes   []int
}

func pageURL(spec query.Spec, page int) templ.SafeURL {
	return templ.SafeURL("/?" + spec.WithPage(page).Values().Encode())
}

func exportURL(spec query.Spec, format string) templ.SafeURL {
	v := spec.WithPage(0).Values()
	v.Del(query.ParamSize)
	v.Set("format", format)
	return templ.SafeURL("/export?" + v.Encode())
}

func downloadURL(ref string) templ.SafeURL {
	return templ.SafeURL("/documents/download?key=" + url.QueryEscape(ref))
}

func isoDate(t sql.NullTime) string {
	if !t.Valid {
		return ""
	}
	return t.Time.Format(model.ISODateLayout)
}

func has(values []string, v string) bool {
	return slices.Contains(values, v)
}

// allowedHint lists accepted extensions after the attachment label
func allowedHint(exts []string) string {
	if len(exts) == 0 {
		return ""
	}
	return " (" + strings.Join(exts, ", ") + ")"
}
