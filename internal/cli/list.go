package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"clubatlas/pkg/domain"
)

func getListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List submissions or published records",
	}
	cmd.AddCommand(getListSubmissionsCmd(), getListClubsCmd())
	return cmd
}

func getListSubmissionsCmd() *cobra.Command {
	var (
		status  string
		kind    string
		query   string
		page    int
		perPage int
		newest  bool
	)
	cmd := &cobra.Command{
		Use:   "submissions",
		Short: "List submissions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			subs := rt.service.ListSubmissions(ctx, domain.SubmissionFilter{
				Status:   domain.SubmissionStatus(status),
				Kind:     domain.SubmissionKind(kind),
				Query:    query,
				Page:     page,
				PerPage:  perPage,
				SortDesc: newest,
			})
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tSTATUS\tNAME\tUNIVERSITY\tSUBMITTED")
			for _, sub := range subs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					sub.ID, sub.Kind, sub.Status,
					sub.Payload.Name, sub.Payload.University,
					sub.Origin.SubmittedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status: pending, approved, rejected")
	cmd.Flags().StringVar(&kind, "kind", "", "filter by kind: new, edit")
	cmd.Flags().StringVar(&query, "query", "", "partial text match on name, university or description")
	cmd.Flags().IntVar(&page, "page", 0, "page number (1-based)")
	cmd.Flags().IntVar(&perPage, "per-page", 0, "page size (0 disables paging)")
	cmd.Flags().BoolVar(&newest, "newest", false, "sort newest first")
	return cmd
}

func getListClubsCmd() *cobra.Command {
	var (
		province string
		query    string
	)
	cmd := &cobra.Command{
		Use:   "clubs",
		Short: "List published club records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			recs := rt.service.ListClubs(ctx, domain.ClubFilter{
				Province: province,
				Query:    query,
			})
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tUNIVERSITY\tPROVINCE\tCITY\tUPDATED")
			for _, rec := range recs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					rec.ID, rec.Payload.Name, rec.Payload.University,
					rec.Payload.Province, rec.Payload.City,
					rec.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&province, "province", "", "filter by province")
	cmd.Flags().StringVar(&query, "query", "", "partial text match on name, university or description")
	return cmd
}
