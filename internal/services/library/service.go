// Package library exposes typed operations against the remote library
// service: entity CRUD, account management, and the read-only reporting
// endpoints. It is the layer that decides retry policy: a 401 on an
// authenticated call triggers exactly one token refresh and one replay.
package library

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/findosh/libran/internal/gateway"
	"github.com/findosh/libran/internal/models"
	"github.com/findosh/libran/internal/session"
)

// ErrInvalidMembershipID is returned when a member registration carries a
// membership ID that does not follow the MEM prefix convention.
var ErrInvalidMembershipID = errors.New("membership ID must start with MEM")

// Service wraps the gateway with typed, domain-level calls.
type Service struct {
	gw       *gateway.Client
	sessions *session.Store
	log      *zap.SugaredLogger
}

// NewService creates a library service.
func NewService(gw *gateway.Client, sessions *session.Store, log *zap.SugaredLogger) *Service {
	return &Service{gw: gw, sessions: sessions, log: log}
}

// do dispatches an operation. On a 401 from a non-guest call it refreshes the
// session once and replays once; a second 401 surfaces as-is. Refresh failure
// propagates directly (the session store has already failed closed).
func (s *Service) do(ctx context.Context, op gateway.Operation) (*gateway.Result, error) {
	result, err := s.gw.Do(ctx, op)
	if err == nil || op.Guest || !gateway.IsUnauthorized(err) {
		return result, err
	}

	s.log.Debugw("unauthorized, refreshing once", "path", op.Path)
	if _, refreshErr := s.sessions.Refresh(ctx); refreshErr != nil {
		return nil, refreshErr
	}
	return s.gw.Do(ctx, op)
}

// ListOptions are the common paging and search parameters.
type ListOptions struct {
	Page   int
	Limit  int
	Search string
}

func (o ListOptions) query() url.Values {
	q := url.Values{}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Search != "" {
		q.Set("search", o.Search)
	}
	return q
}

func decodeList[T any](result *gateway.Result) ([]T, *gateway.Pagination, error) {
	var items []T
	if err := result.Decode(&items); err != nil {
		return nil, nil, err
	}
	return items, result.Pagination, nil
}

// Books lists catalog entries.
func (s *Service) Books(ctx context.Context, opts ListOptions) ([]models.Book, *gateway.Pagination, error) {
	result, err := s.do(ctx, gateway.Operation{
		Method: http.MethodGet,
		Path:   "/api/books",
		Query:  opts.query(),
	})
	if err != nil {
		return nil, nil, err
	}
	return decodeList[models.Book](result)
}

// Book fetches one catalog entry.
func (s *Service) Book(ctx context.Context, id string) (*models.Book, error) {
	result, err := s.do(ctx, gateway.Operation{
		Method: http.MethodGet,
		Path:   "/api/books/" + id,
	})
	if err != nil {
		return nil, err
	}
	var book models.Book
	if err := result.Decode(&book); err != nil {
		return nil, err
	}
	return &book, nil
}

// CreateBook adds a catalog entry.
func (s *Service) CreateBook(ctx context.Context, book models.Book) error {
	_, err := s.do(ctx, gateway.Operation{
		Method:      http.MethodPost,
		Path:        "/api/books",
		Body:        book,
		Invalidates: []gateway.Tag{gateway.TagBooks},
	})
	return err
}

// UpdateBook replaces a catalog entry.
func (s *Service) UpdateBook(ctx context.Context, book models.Book) error {
	_, err := s.do(ctx, gateway.Operation{
		Method:      http.MethodPut,
		Path:        "/api/books/" + book.ID,
		Body:        book,
		Invalidates: []gateway.Tag{gateway.TagBooks},
	})
	return err
}

// DeleteBook removes a catalog entry.
func (s *Service) DeleteBook(ctx context.Context, id string) error {
	_, err := s.do(ctx, gateway.Operation{
		Method:      http.MethodDelete,
		Path:        "/api/books/" + id,
		Invalidates: []gateway.Tag{gateway.TagBooks},
	})
	return err
}

// Members lists member records.
func (s *Service) Members(ctx context.Context, opts ListOptions) ([]models.Member, *gateway.Pagination, error) {
	result, err := s.do(ctx, gateway.Operation{
		Method: http.MethodGet,
		Path:   "/api/members",
		Query:  opts.query(),
	})
	if err != nil {
		return nil, nil, err
	}
	return decodeList[models.Member](result)
}

// CreateMember registers a new member record.
func (s *Service) CreateMember(ctx context.Context, member models.Member) error {
	_, err := s.do(ctx, gateway.Operation{
		Method:      http.MethodPost,
		Path:        "/api/members",
		Body:        member,
		Invalidates: []gateway.Tag{gateway.TagMembers},
	})
	return err
}

// UpdateMember replaces a member record.
func (s *Service) UpdateMember(ctx context.Context, member models.Member) error {
	_, err := s.do(ctx, gateway.Operation{
		Method:      http.MethodPut,
		Path:        "/api/members/" + member.ID,
		Body:        member,
		Invalidates: []gateway.Tag{gateway.TagMembers},
	})
	return err
}

// DeleteMember removes a member record.
func (s *Service) DeleteMember(ctx context.Context, id string) error {
	_, err := s.do(ctx, gateway.Operation{
		Method:      http.MethodDelete,
		Path:        "/api/members/" + id,
		Invalidates: []gateway.Tag{gateway.TagMembers},
	})
	return err
}

// Loans lists loan records.
func (s *Service) Loans(ctx context.Context, opts ListOptions) ([]models.Loan, *gateway.Pagination, error) {
	result, err := s.do(ctx, gateway.Operation{
		Method: http.MethodGet,
		Path:   "/api/loans",
		Query:  opts.query(),
	})
	if err != nil {
		return nil, nil, err
	}
	return decodeList[models.Loan](result)
}

// Checkout creates a loan. A checkout changes the book's status too, so both
// collections are invalidated.
func (s *Service) Checkout(ctx context.Context, bookID, memberID string) error {
	_, err := s.do(ctx, gateway.Operation{
		Method: http.MethodPost,
		Path:   "/api/loans",
		Body: map[string]string{
			"book_id":   bookID,
			"member_id": memberID,
		},
		Invalidates: []gateway.Tag{gateway.TagLoans, gateway.TagBooks},
	})
	return err
}

// Return marks a loan returned.
func (s *Service) Return(ctx context.Context, loanID string) error {
	_, err := s.do(ctx, gateway.Operation{
		Method:      http.MethodPut,
		Path:        "/api/loans/" + loanID + "/return",
		Invalidates: []gateway.Tag{gateway.TagLoans, gateway.TagBooks},
	})
	return err
}

// Renew extends a loan's due date.
func (s *Service) Renew(ctx context.Context, loanID string) error {
	_, err := s.do(ctx, gateway.Operation{
		Method:      http.MethodPut,
		Path:        "/api/loans/" + loanID + "/renew",
		Invalidates: []gateway.Tag{gateway.TagLoans},
	})
	return err
}

// Reservations lists reservations.
func (s *Service) Reservations(ctx context.Context, opts ListOptions) ([]models.Reservation, *gateway.Pagination, error) {
	result, err := s.do(ctx, gateway.Operation{
		Method: http.MethodGet,
		Path:   "/api/reservations",
		Query:  opts.query(),
	})
	if err != nil {
		return nil, nil, err
	}
	return decodeList[models.Reservation](result)
}

// Reserve places a hold on a book for a member.
func (s *Service) Reserve(ctx context.Context, bookID, memberID string) error {
	_, err := s.do(ctx, gateway.Operation{
		Method: http.MethodPost,
		Path:   "/api/reservations",
		Body: map[string]string{
			"book_id":   bookID,
			"member_id": memberID,
		},
		Invalidates: []gateway.Tag{gateway.TagReservations},
	})
	return err
}

// CancelReservation cancels a hold.
func (s *Service) CancelReservation(ctx context.Context, id string) error {
	_, err := s.do(ctx, gateway.Operation{
		Method:      http.MethodPut,
		Path:        "/api/reservations/" + id + "/cancel",
		Invalidates: []gateway.Tag{gateway.TagReservations},
	})
	return err
}

// LoanRow is a pre-joined row from the server's reporting endpoints. The
// server also supplies a days_overdue figure; the aggregation engine's own
// floor-day computation stays canonical and this field is display-only.
type LoanRow struct {
	ID          string      `json:"id"`
	BookTitle   string      `json:"book_title"`
	BookAuthor  string      `json:"book_author"`
	MemberName  string      `json:"member_name"`
	MemberID    string      `json:"member_id"`
	MemberEmail string      `json:"member_email"`
	LoanDate    models.Date `json:"loan_date"`
	DueDate     models.Date `json:"due_date"`
	Status      string      `json:"status"`
	DaysOverdue int         `json:"days_overdue"`
}

// BooksOnLoan fetches the server's active-loan report.
func (s *Service) BooksOnLoan(ctx context.Context) ([]LoanRow, error) {
	result, err := s.do(ctx, gateway.Operation{
		Method: http.MethodGet,
		Path:   "/api/reports/books-on-loan",
	})
	if err != nil {
		return nil, err
	}
	rows, _, err := decodeList[LoanRow](result)
	return rows, err
}

// OverdueBooks fetches the server's overdue report.
func (s *Service) OverdueBooks(ctx context.Context) ([]LoanRow, error) {
	result, err := s.do(ctx, gateway.Operation{
		Method: http.MethodGet,
		Path:   "/api/reports/overdue-books",
	})
	if err != nil {
		return nil, err
	}
	rows, _, err := decodeList[LoanRow](result)
	return rows, err
}

// MemberLoanHistory fetches one member's full loan history.
func (s *Service) MemberLoanHistory(ctx context.Context, memberID string) ([]LoanRow, error) {
	result, err := s.do(ctx, gateway.Operation{
		Method: http.MethodGet,
		Path:   "/api/reports/member-loan-history/" + memberID,
	})
	if err != nil {
		return nil, err
	}
	rows, _, err := decodeList[LoanRow](result)
	return rows, err
}

// RegisterInput holds the fields for account registration.
type RegisterInput struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	FullName     string `json:"full_name"`
	Role         string `json:"role"`
	MembershipID string `json:"membership_id,omitempty"`
}

// Register creates a new account. Member registrations require a membership
// ID with the MEM prefix; other roles must not carry one.
func (s *Service) Register(ctx context.Context, input RegisterInput) error {
	if input.Role == models.RoleLibraryMember {
		if !strings.HasPrefix(input.MembershipID, "MEM") {
			return ErrInvalidMembershipID
		}
	} else {
		input.MembershipID = ""
	}

	_, err := s.do(ctx, gateway.Operation{
		Method: http.MethodPost,
		Path:   "/api/auth/register",
		Guest:  true,
		Body:   input,
	})
	return err
}

// CurrentUser fetches the authenticated account from the server. This is the
// lazy validity check a rehydrated session relies on.
func (s *Service) CurrentUser(ctx context.Context) (*models.User, error) {
	result, err := s.do(ctx, gateway.Operation{
		Method: http.MethodGet,
		Path:   "/api/auth/me",
	})
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := result.Decode(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ChangePassword updates the authenticated account's password.
func (s *Service) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("new password required")
	}
	_, err := s.do(ctx, gateway.Operation{
		Method: http.MethodPost,
		Path:   "/api/auth/change-password",
		Body: map[string]string{
			"old_password": oldPassword,
			"new_password": newPassword,
		},
	})
	return err
}
