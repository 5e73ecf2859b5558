package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	listSize    int
	listPage    int
	listFilters filterFlags
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print one page of filtered documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := listFilters.spec(listSize, listPage)
		if err != nil {
			return err
		}

		registry, st, err := openRegistry(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		res, err := registry.List(cmd.Context(), spec)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NUMBER\tTITLE\tAUTHORITY\tFIELD\tISSUED\tATTACHMENT\tID")
		for _, d := range res.Documents {
			attachment := d.Attachment.String
			if !d.HasAttachment() {
				attachment = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				d.Number, d.Title, d.Authority, d.Field, d.DisplayDate(), attachment, d.ID)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "\nPage %d of %d, %d matching documents", res.Page, res.PageCount, res.Total)
		if res.Skipped > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), ", %d malformed rows skipped", res.Skipped)
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().IntVar(&listSize, "size", 10, "Page size (10, 20, 50, 100)")
	listCmd.Flags().IntVar(&listPage, "page", 1, "Page number")
	listFilters.register(listCmd)
}
