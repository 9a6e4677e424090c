// Package export renders reports as CSV for download and offline analysis.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/findosh/libran/internal/models"
	"github.com/findosh/libran/internal/services/reports"
)

const dateLayout = "2006-01-02"

func formatDate(d models.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func write(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Overview writes the report's headline figures as metric/value pairs.
func Overview(w io.Writer, r *reports.Report) error {
	rows := [][]string{
		{"generated_at", r.GeneratedAt.Format(time.RFC3339)},
		{"total_books", strconv.Itoa(r.TotalBooks)},
		{"available_books", strconv.Itoa(r.AvailableBooks)},
		{"total_members", strconv.Itoa(r.TotalMembers)},
		{"active_members", strconv.Itoa(r.ActiveMembers)},
		{"total_loans", strconv.Itoa(r.TotalLoans)},
		{"active_loans", strconv.Itoa(r.ActiveLoans)},
		{"returned_loans", strconv.Itoa(r.ReturnedLoans)},
		{"overdue_loans", strconv.Itoa(r.OverdueLoans)},
		{"return_rate_pct", strconv.Itoa(r.ReturnRate)},
		{"active_reservations", strconv.Itoa(r.Reservations.Active)},
		{"outstanding_fines", r.OutstandingFines.StringFixed(2)},
	}
	return write(w, []string{"metric", "value"}, rows)
}

func loanTitle(l reports.EnhancedLoan) string {
	if l.Book == nil {
		return ""
	}
	return l.Book.Title
}

func loanMember(l reports.EnhancedLoan) string {
	if l.Member == nil {
		return ""
	}
	return l.Member.DisplayName
}

// Loans writes enhanced loans, one row per loan, in input order.
func Loans(w io.Writer, loans []reports.EnhancedLoan) error {
	header := []string{
		"loan_id", "book_title", "member_name",
		"loan_date", "due_date", "return_date",
		"status", "days_overdue", "fine",
	}
	rows := make([][]string, 0, len(loans))
	for _, l := range loans {
		returned := ""
		if l.ReturnDate != nil {
			returned = formatDate(*l.ReturnDate)
		}
		rows = append(rows, []string{
			l.ID,
			loanTitle(l),
			loanMember(l),
			formatDate(l.LoanDate),
			formatDate(l.DueDate),
			returned,
			string(l.Status),
			strconv.Itoa(l.DaysOverdue),
			l.Fine.StringFixed(2),
		})
	}
	return write(w, header, rows)
}

// OverdueLoans writes only the loans flagged overdue.
func OverdueLoans(w io.Writer, loans []reports.EnhancedLoan) error {
	overdue := make([]reports.EnhancedLoan, 0, len(loans))
	for _, l := range loans {
		if l.IsOverdue {
			overdue = append(overdue, l)
		}
	}
	return Loans(w, overdue)
}

// MemberActivity writes the ranked member activity table.
func MemberActivity(w io.Writer, members []reports.MemberActivity) error {
	header := []string{"member_name", "membership_id", "total_loans", "active_loans", "overdue_loans"}
	rows := make([][]string, 0, len(members))
	for _, m := range members {
		rows = append(rows, []string{
			m.Member.DisplayName,
			m.Member.MembershipID,
			strconv.Itoa(m.TotalLoans),
			strconv.Itoa(m.ActiveLoans),
			strconv.Itoa(m.OverdueLoans),
		})
	}
	return write(w, header, rows)
}

// Inventory writes the per-category breakdown in category name order.
func Inventory(w io.Writer, byCategory map[string]reports.CategoryStats) error {
	categories := make([]string, 0, len(byCategory))
	for name := range byCategory {
		categories = append(categories, name)
	}
	sort.Strings(categories)

	header := []string{"category", "total", "loaned", "available"}
	rows := make([][]string, 0, len(categories))
	for _, name := range categories {
		s := byCategory[name]
		rows = append(rows, []string{
			name,
			strconv.Itoa(s.Total),
			strconv.Itoa(s.Loaned),
			strconv.Itoa(s.Available),
		})
	}
	return write(w, header, rows)
}

// Catalog writes the raw book list.
func Catalog(w io.Writer, books []models.Book) error {
	header := []string{"id", "title", "author", "isbn", "category", "status", "publish_date"}
	rows := make([][]string, 0, len(books))
	for _, b := range books {
		rows = append(rows, []string{
			b.ID, b.Title, b.Author, b.ISBN, b.Category,
			string(b.Status), formatDate(b.PublishDate),
		})
	}
	return write(w, header, rows)
}
