package library

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/findosh/libran/internal/gateway"
	"github.com/findosh/libran/internal/models"
	"github.com/findosh/libran/internal/session"
	"github.com/findosh/libran/internal/storage"
)

func seedSession(t *testing.T, creds *storage.CredentialRepository) {
	t.Helper()
	sess, err := models.NewSession(
		models.User{ID: "u1", Email: "ana@example.org", FullName: "Ana Admin", UserType: models.UserTypeAdmin},
		nil,
		models.TokenPair{AccessToken: "acc-1", RefreshToken: "ref-1", TokenType: "Bearer", ExpiresIn: 3600},
		time.Now().UTC(),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := creds.Save(sess); err != nil {
		t.Fatal(err)
	}
}

func newTestService(t *testing.T, handler http.Handler) (*Service, *gateway.Client, *session.Store) {
	t.Helper()
	db, err := storage.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	creds := storage.NewCredentialRepository(db)
	seedSession(t, creds)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	log := zap.NewNop().Sugar()
	sessions := session.New(creds, log)
	gw := gateway.New(srv.URL, 5*time.Second, sessions, log)
	sessions.SetAPI(gw)
	if _, err := sessions.Rehydrate(); err != nil {
		t.Fatal(err)
	}
	return NewService(gw, sessions, log), gw, sessions
}

func TestService_BooksList(t *testing.T) {
	var gotAuth, gotQuery string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/books", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{
			"success": true,
			"message": {
				"data": [
					{"id": "b1", "title": "Dune", "author": "Frank Herbert", "status": "Available"},
					{"id": "b2", "title": "Hyperion", "author": "Dan Simmons", "status": "Loaned"}
				],
				"pagination": {"page": 2, "limit": 5, "total": 12, "total_pages": 3}
			}
		}`))
	})
	svc, _, _ := newTestService(t, mux)

	books, page, err := svc.Books(context.Background(), ListOptions{Page: 2, Limit: 5, Search: "dune"})
	if err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer acc-1" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if gotQuery != "limit=5&page=2&search=dune" {
		t.Errorf("query = %q", gotQuery)
	}
	if len(books) != 2 || books[1].Title != "Hyperion" {
		t.Fatalf("unexpected books: %+v", books)
	}
	if page == nil || page.TotalPages != 3 {
		t.Errorf("pagination = %+v, want total_pages 3", page)
	}
}

func TestService_UnauthorizedRefreshAndReplay(t *testing.T) {
	var booksCalls, refreshCalls int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/books", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&booksCalls, 1)
		if r.Header.Get("Authorization") != "Bearer acc-2" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"success": false, "message": "Token expired"}`))
			return
		}
		w.Write([]byte(`{"success": true, "data": [{"id": "b1", "title": "Dune"}]}`))
	})
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&refreshCalls, 1)
		w.Write([]byte(`{"success": true, "data": {"tokens": {"access_token": "acc-2", "refresh_token": "ref-2", "token_type": "Bearer", "expires_in": 3600}}}`))
	})
	svc, _, sessions := newTestService(t, mux)

	books, _, err := svc.Books(context.Background(), ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(books) != 1 {
		t.Fatalf("got %d books, want 1", len(books))
	}
	if booksCalls != 2 {
		t.Errorf("books endpoint called %d times, want 2", booksCalls)
	}
	if refreshCalls != 1 {
		t.Errorf("refresh endpoint called %d times, want 1", refreshCalls)
	}
	if got := sessions.Current().Tokens.AccessToken; got != "acc-2" {
		t.Errorf("access token after replay = %q, want acc-2", got)
	}
}

func TestService_RefreshFailureNoReplay(t *testing.T) {
	var booksCalls int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/books", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&booksCalls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"success": false, "message": "Token expired"}`))
	})
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"success": false, "message": "Refresh token revoked"}`))
	})
	svc, _, sessions := newTestService(t, mux)

	_, _, err := svc.Books(context.Background(), ListOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	if booksCalls != 1 {
		t.Errorf("books endpoint called %d times, want 1 (no replay after failed refresh)", booksCalls)
	}
	if sessions.IsAuthenticated() {
		t.Error("session should be closed after failed refresh")
	}
}

func TestService_SecondUnauthorizedSurfaces(t *testing.T) {
	var booksCalls int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/books", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&booksCalls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"success": false, "message": "Token expired"}`))
	})
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "data": {"tokens": {"access_token": "acc-2", "refresh_token": "ref-2", "token_type": "Bearer", "expires_in": 3600}}}`))
	})
	svc, _, _ := newTestService(t, mux)

	_, _, err := svc.Books(context.Background(), ListOptions{})
	if !gateway.IsUnauthorized(err) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
	if booksCalls != 2 {
		t.Errorf("books endpoint called %d times, want exactly 2", booksCalls)
	}
}

func TestService_RegisterMembershipValidation(t *testing.T) {
	var calls int64
	var gotBody RegisterInput
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/register", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		// Omitted fields must not inherit the previous request's values.
		gotBody = RegisterInput{}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"success": true, "message": "Registration successful"}`))
	})
	svc, _, _ := newTestService(t, mux)
	ctx := context.Background()

	err := svc.Register(ctx, RegisterInput{
		Email: "bo@example.org", Password: "pw", FullName: "Bo",
		Role: models.RoleLibraryMember, MembershipID: "XYZ123",
	})
	if !errors.Is(err, ErrInvalidMembershipID) {
		t.Fatalf("err = %v, want ErrInvalidMembershipID", err)
	}
	if calls != 0 {
		t.Fatalf("register endpoint called %d times before validation, want 0", calls)
	}

	if err := svc.Register(ctx, RegisterInput{
		Email: "bo@example.org", Password: "pw", FullName: "Bo",
		Role: models.RoleLibraryMember, MembershipID: "MEM042",
	}); err != nil {
		t.Fatal(err)
	}
	if gotBody.MembershipID != "MEM042" {
		t.Errorf("membership_id = %q, want MEM042", gotBody.MembershipID)
	}

	if err := svc.Register(ctx, RegisterInput{
		Email: "lib@example.org", Password: "pw", FullName: "Lib",
		Role: "Librarian", MembershipID: "MEM999",
	}); err != nil {
		t.Fatal(err)
	}
	if gotBody.MembershipID != "" {
		t.Errorf("non-member registration kept membership_id %q", gotBody.MembershipID)
	}
}

func snapshotHandler() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/books", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "data": [{"id": "b1", "title": "Dune"}, {"id": "b2", "title": "Hyperion"}]}`))
	})
	mux.HandleFunc("/api/members", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "data": [{"id": "m1", "display_name": "Ana"}]}`))
	})
	mux.HandleFunc("/api/loans", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "data": [{"id": "l1", "book_id": "b1", "member_id": "m1", "status": "Active"}]}`))
	})
	mux.HandleFunc("/api/reservations", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "data": []}`))
	})
	return mux
}

func TestService_LoadSnapshot(t *testing.T) {
	mux := snapshotHandler()
	mux.HandleFunc("/api/books/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "message": "Book updated"}`))
	})
	svc, gw, _ := newTestService(t, mux)
	ctx := context.Background()

	snap, err := svc.LoadSnapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Books) != 2 || len(snap.Members) != 1 || len(snap.Loans) != 1 || len(snap.Reservations) != 0 {
		t.Fatalf("snapshot counts: books=%d members=%d loans=%d reservations=%d",
			len(snap.Books), len(snap.Members), len(snap.Loans), len(snap.Reservations))
	}
	if snap.Stale(gw) {
		t.Fatal("fresh snapshot reported stale")
	}

	if err := svc.UpdateBook(ctx, models.Book{ID: "b1", Title: "Dune", Status: models.BookAvailable}); err != nil {
		t.Fatal(err)
	}
	if !snap.Stale(gw) {
		t.Error("snapshot not stale after book mutation")
	}

	if m := snap.Member("m1"); m == nil || m.DisplayName != "Ana" {
		t.Errorf("Member(m1) = %+v", m)
	}
	if m := snap.Member("nope"); m != nil {
		t.Errorf("Member(nope) = %+v, want nil", m)
	}
}

func TestService_LoadSnapshotPartialFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/books", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "data": []}`))
	})
	mux.HandleFunc("/api/members", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "data": []}`))
	})
	mux.HandleFunc("/api/loans", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"success": false, "message": "database unavailable"}`))
	})
	mux.HandleFunc("/api/reservations", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "data": []}`))
	})
	svc, _, _ := newTestService(t, mux)

	if _, err := svc.LoadSnapshot(context.Background()); err == nil {
		t.Fatal("expected snapshot to fail when one collection fails")
	}
}

func TestService_CheckoutInvalidatesLoansAndBooks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/loans", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "message": "Loan created"}`))
	})
	svc, gw, _ := newTestService(t, mux)

	loansBefore := gw.Version(gateway.TagLoans)
	booksBefore := gw.Version(gateway.TagBooks)
	membersBefore := gw.Version(gateway.TagMembers)

	if err := svc.Checkout(context.Background(), "b1", "m1"); err != nil {
		t.Fatal(err)
	}
	if gw.Version(gateway.TagLoans) != loansBefore+1 {
		t.Error("loans version not bumped")
	}
	if gw.Version(gateway.TagBooks) != booksBefore+1 {
		t.Error("books version not bumped")
	}
	if gw.Version(gateway.TagMembers) != membersBefore {
		t.Error("members version bumped by unrelated mutation")
	}
}

func TestService_ReportRows(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/reports/overdue-books", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"success": true,
			"data": [
				{"id": "l1", "book_title": "Dune", "member_name": "Ana", "due_date": "2024-06-01", "status": "Active", "days_overdue": 14}
			]
		}`))
	})
	svc, _, _ := newTestService(t, mux)

	rows, err := svc.OverdueBooks(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].BookTitle != "Dune" || rows[0].DaysOverdue != 14 {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestService_ChangePasswordRequiresNew(t *testing.T) {
	svc, _, _ := newTestService(t, http.NewServeMux())
	if err := svc.ChangePassword(context.Background(), "old", ""); err == nil {
		t.Fatal("expected error for empty new password")
	}
}
