package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/findosh/libran/internal/gateway"
	"github.com/findosh/libran/internal/models"
	"github.com/findosh/libran/internal/services/library"
)

func listFlags(cmd *cobra.Command, opts *library.ListOptions) {
	cmd.Flags().IntVar(&opts.Page, "page", 0, "page number")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "page size")
	cmd.Flags().StringVar(&opts.Search, "search", "", "search term")
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
}

func printPagination(page *gateway.Pagination) {
	if page == nil {
		return
	}
	fmt.Printf("\nPage %d of %d (%d total)\n", page.Page, page.TotalPages, page.Total)
}

func newBooksCmd(a *app) *cobra.Command {
	books := &cobra.Command{
		Use:   "books",
		Short: "Manage the catalog",
	}

	var listOpts library.ListOptions
	list := &cobra.Command{
		Use:   "list",
		Short: "List catalog entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(cmd.Context()); err != nil {
				return err
			}
			items, page, err := a.library.Books(cmd.Context(), listOpts)
			if err != nil {
				return err
			}
			w := newTable()
			fmt.Fprintln(w, "ID\tTITLE\tAUTHOR\tCATEGORY\tSTATUS")
			for _, b := range items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", b.ID, b.Title, b.Author, b.Category, b.Status)
			}
			w.Flush()
			printPagination(page)
			return nil
		},
	}
	listFlags(list, &listOpts)

	var book models.Book
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a catalog entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(cmd.Context()); err != nil {
				return err
			}
			if book.Title == "" || book.Author == "" {
				return fmt.Errorf("--title and --author are required")
			}
			if err := a.library.CreateBook(cmd.Context(), book); err != nil {
				return err
			}
			fmt.Printf("Added %q.\n", book.Title)
			return nil
		},
	}
	add.Flags().StringVar(&book.Title, "title", "", "title")
	add.Flags().StringVar(&book.Author, "author", "", "author")
	add.Flags().StringVar(&book.ISBN, "isbn", "", "ISBN")
	add.Flags().StringVar(&book.Category, "category", "", "category")

	rm := &cobra.Command{
		Use:   "rm <book-id>",
		Short: "Remove a catalog entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(cmd.Context()); err != nil {
				return err
			}
			if err := a.library.DeleteBook(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("Removed.")
			return nil
		},
	}

	books.AddCommand(list, add, rm)
	return books
}

func newMembersCmd(a *app) *cobra.Command {
	members := &cobra.Command{
		Use:   "members",
		Short: "Manage member records",
	}

	var listOpts library.ListOptions
	list := &cobra.Command{
		Use:   "list",
		Short: "List members",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(cmd.Context()); err != nil {
				return err
			}
			items, page, err := a.library.Members(cmd.Context(), listOpts)
			if err != nil {
				return err
			}
			w := newTable()
			fmt.Fprintln(w, "ID\tNAME\tMEMBERSHIP\tEMAIL\tSTATUS")
			for _, m := range items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.ID, m.DisplayName, m.MembershipID, m.Email, m.Status)
			}
			w.Flush()
			printPagination(page)
			return nil
		},
	}
	listFlags(list, &listOpts)

	history := &cobra.Command{
		Use:   "history <member-id>",
		Short: "Show a member's loan history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(cmd.Context()); err != nil {
				return err
			}
			rows, err := a.library.MemberLoanHistory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printLoanRows(rows)
			return nil
		},
	}

	members.AddCommand(list, history)
	return members
}

func printLoanRows(rows []library.LoanRow) {
	w := newTable()
	fmt.Fprintln(w, "ID\tBOOK\tMEMBER\tDUE\tSTATUS\tDAYS OVERDUE")
	for _, r := range rows {
		due := ""
		if !r.DueDate.IsZero() {
			due = r.DueDate.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n", r.ID, r.BookTitle, r.MemberName, due, r.Status, r.DaysOverdue)
	}
	w.Flush()
}

func newLoansCmd(a *app) *cobra.Command {
	loans := &cobra.Command{
		Use:   "loans",
		Short: "Manage circulation",
	}

	var listOpts library.ListOptions
	list := &cobra.Command{
		Use:   "list",
		Short: "List loans",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(cmd.Context()); err != nil {
				return err
			}
			items, page, err := a.library.Loans(cmd.Context(), listOpts)
			if err != nil {
				return err
			}
			w := newTable()
			fmt.Fprintln(w, "ID\tBOOK\tMEMBER\tLOANED\tDUE\tSTATUS")
			for _, l := range items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					l.ID, l.BookID, l.MemberID,
					l.LoanDate.Format("2006-01-02"), l.DueDate.Format("2006-01-02"), l.Status)
			}
			w.Flush()
			printPagination(page)
			return nil
		},
	}
	listFlags(list, &listOpts)

	var bookID, memberID string
	checkout := &cobra.Command{
		Use:   "checkout",
		Short: "Loan a book to a member",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(cmd.Context()); err != nil {
				return err
			}
			if bookID == "" || memberID == "" {
				return fmt.Errorf("--book and --member are required")
			}
			if err := a.library.Checkout(cmd.Context(), bookID, memberID); err != nil {
				return err
			}
			fmt.Println("Checked out.")
			return nil
		},
	}
	checkout.Flags().StringVar(&bookID, "book", "", "book ID")
	checkout.Flags().StringVar(&memberID, "member", "", "member ID")

	ret := &cobra.Command{
		Use:   "return <loan-id>",
		Short: "Mark a loan returned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(cmd.Context()); err != nil {
				return err
			}
			if err := a.library.Return(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("Returned.")
			return nil
		},
	}

	renew := &cobra.Command{
		Use:   "renew <loan-id>",
		Short: "Extend a loan's due date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(cmd.Context()); err != nil {
				return err
			}
			if err := a.library.Renew(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("Renewed.")
			return nil
		},
	}

	loans.AddCommand(list, checkout, ret, renew)
	return loans
}

func newReservationsCmd(a *app) *cobra.Command {
	reservations := &cobra.Command{
		Use:   "reservations",
		Short: "Manage reservations",
	}

	var listOpts library.ListOptions
	list := &cobra.Command{
		Use:   "list",
		Short: "List reservations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(cmd.Context()); err != nil {
				return err
			}
			items, page, err := a.library.Reservations(cmd.Context(), listOpts)
			if err != nil {
				return err
			}
			w := newTable()
			fmt.Fprintln(w, "ID\tBOOK\tMEMBER\tPRIORITY\tBAND\tSTATUS")
			for _, r := range items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					r.ID, r.BookID, r.MemberID, r.Priority, r.PriorityBand(), r.Status)
			}
			w.Flush()
			printPagination(page)
			return nil
		},
	}
	listFlags(list, &listOpts)

	var bookID, memberID string
	add := &cobra.Command{
		Use:   "add",
		Short: "Place a hold on a book",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(cmd.Context()); err != nil {
				return err
			}
			if bookID == "" || memberID == "" {
				return fmt.Errorf("--book and --member are required")
			}
			if err := a.library.Reserve(cmd.Context(), bookID, memberID); err != nil {
				return err
			}
			fmt.Println("Reserved.")
			return nil
		},
	}
	add.Flags().StringVar(&bookID, "book", "", "book ID")
	add.Flags().StringVar(&memberID, "member", "", "member ID")

	cancel := &cobra.Command{
		Use:   "cancel <reservation-id>",
		Short: "Cancel a hold",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(cmd.Context()); err != nil {
				return err
			}
			if err := a.library.CancelReservation(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("Cancelled.")
			return nil
		},
	}

	reservations.AddCommand(list, add, cancel)
	return reservations
}
