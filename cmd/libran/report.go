package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/findosh/libran/internal/export"
	"github.com/findosh/libran/internal/services/reports"
)

func (a *app) computeReport(ctx context.Context) (*reports.Report, []reports.EnhancedLoan, error) {
	if err := a.requireSession(ctx); err != nil {
		return nil, nil, err
	}
	snap, err := a.library.LoadSnapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	return a.engine.Compute(snap.Input), a.engine.Enhance(snap.Input), nil
}

func newReportCmd(a *app) *cobra.Command {
	report := &cobra.Command{
		Use:   "report",
		Short: "Derived reports over the full dataset",
	}

	overview := &cobra.Command{
		Use:   "overview",
		Short: "Headline figures",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, _, err := a.computeReport(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Books:        %d (%d available)\n", r.TotalBooks, r.AvailableBooks)
			fmt.Printf("Members:      %d (%d active)\n", r.TotalMembers, r.ActiveMembers)
			fmt.Printf("Loans:        %d total, %d active, %d returned, %d overdue\n",
				r.TotalLoans, r.ActiveLoans, r.ReturnedLoans, r.OverdueLoans)
			fmt.Printf("Return rate:  %d%%\n", r.ReturnRate)
			fmt.Printf("Reservations: %d active of %d\n", r.Reservations.Active, r.Reservations.Total)
			fmt.Printf("Est. fines:   %s\n", r.OutstandingFines.StringFixed(2))
			return nil
		},
	}

	trend := &cobra.Command{
		Use:   "trend",
		Short: "Monthly loan trend, last 12 months",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, _, err := a.computeReport(cmd.Context())
			if err != nil {
				return err
			}
			w := newTable()
			fmt.Fprintln(w, "MONTH\tLOANS\tRETURNS")
			for _, b := range r.MonthlyTrend {
				fmt.Fprintf(w, "%s %d\t%d\t%d\n", b.Month, b.Year, b.Loans, b.Returns)
			}
			w.Flush()
			return nil
		},
	}

	popular := &cobra.Command{
		Use:   "popular",
		Short: "Most loaned books",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, _, err := a.computeReport(cmd.Context())
			if err != nil {
				return err
			}
			w := newTable()
			fmt.Fprintln(w, "RANK\tTITLE\tAUTHOR\tLOANS")
			for i, b := range r.PopularBooks {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", i+1, b.Book.Title, b.Book.Author, b.LoanCount)
			}
			w.Flush()
			return nil
		},
	}

	members := &cobra.Command{
		Use:   "members",
		Short: "Most active members",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, _, err := a.computeReport(cmd.Context())
			if err != nil {
				return err
			}
			w := newTable()
			fmt.Fprintln(w, "RANK\tNAME\tTOTAL\tACTIVE\tOVERDUE")
			for i, m := range r.TopMembers {
				fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\n",
					i+1, m.Member.DisplayName, m.TotalLoans, m.ActiveLoans, m.OverdueLoans)
			}
			w.Flush()
			return nil
		},
	}

	overdue := &cobra.Command{
		Use:   "overdue",
		Short: "Overdue loans with estimated fines",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, enhanced, err := a.computeReport(cmd.Context())
			if err != nil {
				return err
			}
			w := newTable()
			fmt.Fprintln(w, "LOAN\tBOOK\tMEMBER\tDAYS OVERDUE\tFINE")
			for _, l := range enhanced {
				if !l.IsOverdue {
					continue
				}
				title, member := "", ""
				if l.Book != nil {
					title = l.Book.Title
				}
				if l.Member != nil {
					member = l.Member.DisplayName
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", l.ID, title, member, l.DaysOverdue, l.Fine.StringFixed(2))
			}
			w.Flush()
			return nil
		},
	}

	inventory := &cobra.Command{
		Use:   "inventory",
		Short: "Catalog breakdown by category",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, _, err := a.computeReport(cmd.Context())
			if err != nil {
				return err
			}
			return export.Inventory(os.Stdout, r.ByCategory)
		},
	}

	report.AddCommand(overview, trend, popular, members, overdue, inventory)
	return report
}

func newExportCmd(a *app) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export <overview|loans|overdue|members|inventory|catalog>",
		Short: "Export a report as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(cmd.Context()); err != nil {
				return err
			}
			snap, err := a.library.LoadSnapshot(cmd.Context())
			if err != nil {
				return err
			}
			r := a.engine.Compute(snap.Input)
			enhanced := a.engine.Enhance(snap.Input)

			w := os.Stdout
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}

			switch args[0] {
			case "overview":
				err = export.Overview(w, r)
			case "loans":
				err = export.Loans(w, enhanced)
			case "overdue":
				err = export.OverdueLoans(w, enhanced)
			case "members":
				err = export.MemberActivity(w, r.TopMembers)
			case "inventory":
				err = export.Inventory(w, r.ByCategory)
			case "catalog":
				err = export.Catalog(w, snap.Books)
			default:
				return fmt.Errorf("unknown export %q", args[0])
			}
			if err != nil {
				return err
			}
			if out != "" {
				fmt.Printf("Wrote %s\n", out)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (defaults to stdout)")
	return cmd
}
