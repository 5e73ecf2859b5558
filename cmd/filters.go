package cmd

import (
	"net/url"
	"strconv"

	"github.com/jjenkins/docregistry/internal/query"
	"github.com/spf13/cobra"
)

// filterFlags mirror the query parameters of the web listing
type filterFlags struct {
	keyword     string
	authorities []string
	fields      []string
	exts        []string
	from        string
	to          string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.keyword, "q", "", "Keyword, matched without regard to case or accents")
	cmd.Flags().StringSliceVar(&f.authorities, "authority", nil, "Issuing authority (repeatable)")
	cmd.Flags().StringSliceVar(&f.fields, "field", nil, "Field (repeatable)")
	cmd.Flags().StringSliceVar(&f.exts, "ext", nil, "Attachment extension (repeatable)")
	cmd.Flags().StringVar(&f.from, "from", "", "Earliest issue date (YYYY-MM-DD or DD/MM/YYYY)")
	cmd.Flags().StringVar(&f.to, "to", "", "Latest issue date (YYYY-MM-DD or DD/MM/YYYY)")
}

func (f *filterFlags) spec(size, page int) (query.Spec, error) {
	values := url.Values{
		query.ParamKeyword:   {f.keyword},
		query.ParamAuthority: f.authorities,
		query.ParamField:     f.fields,
		query.ParamExt:       f.exts,
		query.ParamFrom:      {f.from},
		query.ParamTo:        {f.to},
	}
	if size > 0 {
		values.Set(query.ParamSize, strconv.Itoa(size))
	}
	if page > 0 {
		values.Set(query.ParamPage, strconv.Itoa(page))
	}
	return query.ParseSpec(values)
}
