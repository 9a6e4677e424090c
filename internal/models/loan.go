package models

import "time"

// LoanStatus is the lifecycle state of a loan
type LoanStatus string

const (
	LoanActive   LoanStatus = "Active"
	LoanReturned LoanStatus = "Returned"
)

// Loan represents a checkout of a book by a member
type Loan struct {
	ID         string     `json:"id"`
	BookID     string     `json:"book_id"`
	MemberID   string     `json:"member_id"`
	LoanDate   Date       `json:"loan_date"`
	DueDate    Date       `json:"due_date"`
	ReturnDate *Date      `json:"return_date,omitempty"`
	Status     LoanStatus `json:"status"`
}

// OverdueAt reports whether the loan is overdue at the given instant.
// A returned loan is never overdue regardless of its dates.
func (l *Loan) OverdueAt(now time.Time) bool {
	if l.Status != LoanActive {
		return false
	}
	if l.DueDate.IsZero() {
		return false
	}
	return l.DueDate.Before(now)
}

// DaysOverdueAt returns the whole days the loan is past due at the given
// instant, or 0 when not overdue.
func (l *Loan) DaysOverdueAt(now time.Time) int {
	if !l.OverdueAt(now) {
		return 0
	}
	return int(now.Sub(l.DueDate.Time).Hours() / 24)
}

// DaysUntilDueAt returns the whole days remaining before the due date, or 0
// when the loan is not active, already due, or has no due date.
func (l *Loan) DaysUntilDueAt(now time.Time) int {
	if l.Status != LoanActive || l.DueDate.IsZero() || !now.Before(l.DueDate.Time) {
		return 0
	}
	return int(l.DueDate.Sub(now).Hours() / 24)
}
