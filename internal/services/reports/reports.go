// Package reports computes derived views over the raw entity collections:
// loan enhancement joins, overdue detection, popularity ranks, member
// activity, monthly trends, and inventory distribution. Everything here is
// pure and deterministic; identical inputs always yield identical output.
package reports

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/findosh/libran/internal/models"
)

// TrendMonths is the fixed width of the monthly trend window.
const TrendMonths = 12

// uncategorized is the bucket for books with no category field.
const uncategorized = "Uncategorized"

// Input is the raw collection set a report is computed from. The loader only
// hands an Input over once all four collections have arrived; the engine
// never aggregates a partial set.
type Input struct {
	Books        []models.Book
	Members      []models.Member
	Loans        []models.Loan
	Reservations []models.Reservation
}

// EnhancedLoan is a loan joined to its book and member, with overdue state
// derived. Unresolved references leave Book or Member nil rather than
// dropping the row.
type EnhancedLoan struct {
	models.Loan
	Book         *models.Book
	Member       *models.Member
	IsOverdue    bool
	DaysOverdue  int
	DaysUntilDue int
	Fine         decimal.Decimal
}

// MonthBucket is one month of the loan trend.
type MonthBucket struct {
	Month   string `json:"month"` // short name, e.g. "Jan"
	Year    int    `json:"year"`
	Loans   int    `json:"loans"`
	Returns int    `json:"returns"`
}

// BookRank is a book with its total loan count.
type BookRank struct {
	Book      models.Book `json:"book"`
	LoanCount int         `json:"loan_count"`
}

// MemberActivity is a member with loan counters.
type MemberActivity struct {
	Member       models.Member `json:"member"`
	TotalLoans   int           `json:"total_loans"`
	ActiveLoans  int           `json:"active_loans"`
	OverdueLoans int           `json:"overdue_loans"`
}

// CategoryStats is the per-category inventory breakdown.
type CategoryStats struct {
	Total     int `json:"total"`
	Loaned    int `json:"loaned"`
	Available int `json:"available"`
}

// ReservationStats summarizes the reservation queue.
type ReservationStats struct {
	Total                 int `json:"total"`
	Active                int `json:"active"`
	Fulfilled             int `json:"fulfilled"`
	Cancelled             int `json:"cancelled"`
	BooksWithReservations int `json:"books_with_reservations"`
	AvgPriority           int `json:"avg_priority"`
}

// Report is the full derived view. It is ephemeral: recomputed on every
// input change, never persisted.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`

	TotalBooks     int `json:"total_books"`
	AvailableBooks int `json:"available_books"`
	TotalMembers   int `json:"total_members"`
	ActiveMembers  int `json:"active_members"`

	TotalLoans    int `json:"total_loans"`
	ActiveLoans   int `json:"active_loans"`
	ReturnedLoans int `json:"returned_loans"`
	OverdueLoans  int `json:"overdue_loans"`
	ReturnRate    int `json:"return_rate"` // percent, rounded

	MonthlyTrend     []MonthBucket            `json:"monthly_trend"`
	PopularBooks     []BookRank               `json:"popular_books"`
	TopMembers       []MemberActivity         `json:"top_members"`
	ByCategory       map[string]CategoryStats `json:"by_category"`
	Reservations     ReservationStats         `json:"reservations"`
	OutstandingFines decimal.Decimal          `json:"outstanding_fines"`
}

// Engine computes reports. It holds no mutable state and is safe for
// concurrent use.
type Engine struct {
	topN      int
	dailyFine decimal.Decimal
	now       func() time.Time
}

// NewEngine creates an engine. topN bounds the popularity and member
// activity rankings; dailyFine is the per-day overdue charge used for the
// outstanding-fine estimate.
func NewEngine(topN int, dailyFine decimal.Decimal) *Engine {
	if topN <= 0 {
		topN = 10
	}
	return &Engine{
		topN:      topN,
		dailyFine: dailyFine,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Enhance joins each loan to its book and member and derives overdue state.
// "now" is captured once for the whole pass so that two loans due at the
// same instant can never disagree within one result.
func (e *Engine) Enhance(in Input) []EnhancedLoan {
	return e.enhanceAt(in, e.now())
}

func (e *Engine) enhanceAt(in Input, now time.Time) []EnhancedLoan {
	booksByID := make(map[string]*models.Book, len(in.Books))
	for i := range in.Books {
		booksByID[in.Books[i].ID] = &in.Books[i]
	}
	membersByID := make(map[string]*models.Member, len(in.Members))
	for i := range in.Members {
		membersByID[in.Members[i].ID] = &in.Members[i]
	}

	enhanced := make([]EnhancedLoan, 0, len(in.Loans))
	for _, loan := range in.Loans {
		el := EnhancedLoan{
			Loan:         loan,
			Book:         booksByID[loan.BookID],
			Member:       membersByID[loan.MemberID],
			IsOverdue:    loan.OverdueAt(now),
			DaysUntilDue: loan.DaysUntilDueAt(now),
			Fine:         decimal.Zero,
		}
		if el.IsOverdue {
			el.DaysOverdue = loan.DaysOverdueAt(now)
			el.Fine = e.dailyFine.Mul(decimal.NewFromInt(int64(el.DaysOverdue)))
		}
		enhanced = append(enhanced, el)
	}
	return enhanced
}

// Compute builds the full report from one input set.
func (e *Engine) Compute(in Input) *Report {
	now := e.now()
	enhanced := e.enhanceAt(in, now)

	report := &Report{
		GeneratedAt:      now,
		TotalBooks:       len(in.Books),
		TotalMembers:     len(in.Members),
		TotalLoans:       len(in.Loans),
		ByCategory:       make(map[string]CategoryStats),
		OutstandingFines: decimal.Zero,
	}

	for _, b := range in.Books {
		if b.Status == models.BookAvailable {
			report.AvailableBooks++
		}
		category := b.Category
		if category == "" {
			category = uncategorized
		}
		stats := report.ByCategory[category]
		stats.Total++
		switch b.Status {
		case models.BookAvailable:
			stats.Available++
		case models.BookLoaned:
			stats.Loaned++
		}
		report.ByCategory[category] = stats
	}

	for _, m := range in.Members {
		if m.Status == models.MemberActive {
			report.ActiveMembers++
		}
	}

	for _, el := range enhanced {
		// Unknown statuses count toward neither bucket.
		switch el.Status {
		case models.LoanActive:
			report.ActiveLoans++
		case models.LoanReturned:
			report.ReturnedLoans++
		}
		if el.IsOverdue {
			report.OverdueLoans++
			report.OutstandingFines = report.OutstandingFines.Add(el.Fine)
		}
	}
	if report.TotalLoans > 0 {
		report.ReturnRate = int(math.Round(float64(report.ReturnedLoans) / float64(report.TotalLoans) * 100))
	}

	report.MonthlyTrend = e.monthlyTrend(in.Loans, now)
	report.PopularBooks = e.popularBooks(in)
	report.TopMembers = e.topMembers(in, enhanced)
	report.Reservations = reservationStats(in)

	return report
}

// monthlyTrend emits exactly TrendMonths buckets, trailing and ending at the
// current calendar month. Empty months are zero-filled so chart axes stay
// stable.
func (e *Engine) monthlyTrend(loans []models.Loan, now time.Time) []MonthBucket {
	buckets := make([]MonthBucket, 0, TrendMonths)
	base := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	for i := TrendMonths - 1; i >= 0; i-- {
		month := base.AddDate(0, -i, 0)
		bucket := MonthBucket{
			Month: month.Format("Jan"),
			Year:  month.Year(),
		}
		for _, loan := range loans {
			if loan.LoanDate.IsZero() {
				continue
			}
			if loan.LoanDate.Month() == month.Month() && loan.LoanDate.Year() == month.Year() {
				bucket.Loans++
				if loan.Status == models.LoanReturned {
					bucket.Returns++
				}
			}
		}
		buckets = append(buckets, bucket)
	}
	return buckets
}

// popularBooks ranks books by loan count, descending. Ties keep the original
// collection order; which title shows first in a tied top-N is part of the
// contract.
func (e *Engine) popularBooks(in Input) []BookRank {
	counts := make(map[string]int, len(in.Books))
	for _, loan := range in.Loans {
		counts[loan.BookID]++
	}

	ranks := make([]BookRank, 0, len(in.Books))
	for _, b := range in.Books {
		ranks = append(ranks, BookRank{Book: b, LoanCount: counts[b.ID]})
	}
	sort.SliceStable(ranks, func(i, j int) bool {
		return ranks[i].LoanCount > ranks[j].LoanCount
	})

	if len(ranks) > e.topN {
		ranks = ranks[:e.topN]
	}
	return ranks
}

// topMembers ranks members by total loan count, descending, stable on ties.
func (e *Engine) topMembers(in Input, enhanced []EnhancedLoan) []MemberActivity {
	type counters struct {
		total, active, overdue int
	}
	byMember := make(map[string]counters, len(in.Members))
	for _, el := range enhanced {
		c := byMember[el.MemberID]
		c.total++
		if el.Status == models.LoanActive {
			c.active++
		}
		if el.IsOverdue {
			c.overdue++
		}
		byMember[el.MemberID] = c
	}

	activity := make([]MemberActivity, 0, len(in.Members))
	for _, m := range in.Members {
		c := byMember[m.ID]
		activity = append(activity, MemberActivity{
			Member:       m,
			TotalLoans:   c.total,
			ActiveLoans:  c.active,
			OverdueLoans: c.overdue,
		})
	}
	sort.SliceStable(activity, func(i, j int) bool {
		return activity[i].TotalLoans > activity[j].TotalLoans
	})

	if len(activity) > e.topN {
		activity = activity[:e.topN]
	}
	return activity
}

func reservationStats(in Input) ReservationStats {
	stats := ReservationStats{Total: len(in.Reservations)}

	reservedBooks := make(map[string]bool)
	prioritySum := 0
	for _, r := range in.Reservations {
		switch r.Status {
		case models.ReservationActive:
			stats.Active++
			prioritySum += r.Priority
			reservedBooks[r.BookID] = true
		case models.ReservationFulfilled:
			stats.Fulfilled++
		case models.ReservationCancelled:
			stats.Cancelled++
		}
	}
	stats.BooksWithReservations = len(reservedBooks)
	if stats.Active > 0 {
		stats.AvgPriority = int(math.Round(float64(prioritySum) / float64(stats.Active)))
	}
	return stats
}
