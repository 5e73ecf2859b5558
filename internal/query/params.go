package query

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jjenkins/docregistry/internal/model"
)

// ErrInvalidDate is returned when a date bound cannot be parsed
var ErrInvalidDate = errors.New("invalid date")

// Query parameter names understood by ParseSpec
const (
	ParamKeyword   = "q"
	ParamAuthority = "authority"
	ParamField     = "field"
	ParamExt       = "ext"
	ParamFrom      = "from"
	ParamTo        = "to"
	ParamSize      = "size"
	ParamPage      = "page"
)

// ParseSpec builds a Spec from URL query values. Repeated authority, field
// and ext parameters select several values. A parameter that does not parse
// is left unset in the returned Spec and reported in the joined error.
func ParseSpec(values url.Values) (Spec, error) {
	spec := Spec{
		Keyword:     strings.TrimSpace(values.Get(ParamKeyword)),
		Authorities: values[ParamAuthority],
		Fields:      values[ParamField],
		Extensions:  values[ParamExt],
	}

	var errs []error
	var err error
	if spec.DateFrom, err = model.ParseDate(values.Get(ParamFrom)); err != nil {
		errs = append(errs, fmt.Errorf("%w: from: %v", ErrInvalidDate, err))
	}
	if spec.DateTo, err = model.ParseDate(values.Get(ParamTo)); err != nil {
		errs = append(errs, fmt.Errorf("%w: to: %v", ErrInvalidDate, err))
	}

	if v := values.Get(ParamSize); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidPageSize, v))
		}
		spec.PageSize = size
	}
	if v := values.Get(ParamPage); v != "" {
		// a garbled page number falls back to the first page
		spec.Page, _ = strconv.Atoi(v)
	}

	return spec, errors.Join(errs...)
}

// Values is the inverse of ParseSpec. Page is omitted when zero.
func (s Spec) Values() url.Values {
	v := url.Values{}
	if s.Keyword != "" {
		v.Set(ParamKeyword, s.Keyword)
	}
	for _, a := range s.Authorities {
		v.Add(ParamAuthority, a)
	}
	for _, f := range s.Fields {
		v.Add(ParamField, f)
	}
	for _, e := range s.Extensions {
		v.Add(ParamExt, e)
	}
	if s.DateFrom.Valid {
		v.Set(ParamFrom, s.DateFrom.Time.Format(model.ISODateLayout))
	}
	if s.DateTo.Valid {
		v.Set(ParamTo, s.DateTo.Time.Format(model.ISODateLayout))
	}
	if s.PageSize != 0 {
		v.Set(ParamSize, strconv.Itoa(s.PageSize))
	}
	if s.Page != 0 {
		v.Set(ParamPage, strconv.Itoa(s.Page))
	}
	return v
}

// WithPage returns a copy of s pointing at page
func (s Spec) WithPage(page int) Spec {
	s.Page = page
	return s
}
