package storage

import (
	"testing"
	"time"

	"github.com/findosh/libran/internal/models"
)

func newTestRepo(t *testing.T) *CredentialRepository {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return NewCredentialRepository(db)
}

func testSession(t *testing.T, member *models.Member) *models.Session {
	t.Helper()
	sess, err := models.NewSession(
		models.User{ID: "u1", Email: "admin@example.org", FullName: "Ana Admin", UserType: models.UserTypeAdmin, Roles: []string{"System Manager"}},
		member,
		models.TokenPair{AccessToken: "acc-1", RefreshToken: "ref-1", TokenType: "Bearer", ExpiresIn: 3600},
		time.Now().UTC(),
	)
	if err != nil {
		t.Fatal(err)
	}
	return sess
}

func TestCredentialRepository_SaveLoadRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	member := &models.Member{ID: "m1", DisplayName: "Ana", MembershipID: "MEM001", Status: models.MemberActive}

	if err := repo.Save(testSession(t, member)); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := repo.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected a restored session")
	}
	if loaded.User.Email != "admin@example.org" {
		t.Errorf("user email = %q", loaded.User.Email)
	}
	if loaded.Tokens.AccessToken != "acc-1" || loaded.Tokens.RefreshToken != "ref-1" {
		t.Errorf("token pair not restored: %+v", loaded.Tokens)
	}
	if loaded.Member == nil || loaded.Member.MembershipID != "MEM001" {
		t.Errorf("member not restored: %+v", loaded.Member)
	}
}

func TestCredentialRepository_LoadWithoutMember(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.Save(testSession(t, nil)); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := repo.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected a restored session")
	}
	if loaded.Member != nil {
		t.Errorf("expected nil member, got %+v", loaded.Member)
	}
}

func TestCredentialRepository_LoadEmpty(t *testing.T) {
	repo := newTestRepo(t)

	loaded, err := repo.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded != nil {
		t.Errorf("expected no session from empty store, got %+v", loaded)
	}

	token, err := repo.RefreshToken()
	if err != nil {
		t.Fatalf("refresh token: %v", err)
	}
	if token != "" {
		t.Errorf("expected empty refresh token, got %q", token)
	}
}

func TestCredentialRepository_Clear(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.Save(testSession(t, nil)); err != nil {
		t.Fatal(err)
	}

	if err := repo.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	loaded, err := repo.Load()
	if err != nil {
		t.Fatal(err)
	}
	if loaded != nil {
		t.Error("store should be empty after clear")
	}

	// Clearing twice is a no-op success.
	if err := repo.Clear(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}

func TestCredentialRepository_SaveReplacesPrevious(t *testing.T) {
	repo := newTestRepo(t)
	member := &models.Member{ID: "m1", MembershipID: "MEM001"}
	if err := repo.Save(testSession(t, member)); err != nil {
		t.Fatal(err)
	}

	// A later session without a member must not leave the old member blob behind.
	next := testSession(t, nil)
	next.Tokens.AccessToken = "acc-2"
	next.Tokens.RefreshToken = "ref-2"
	if err := repo.Save(next); err != nil {
		t.Fatal(err)
	}

	loaded, err := repo.Load()
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Tokens.AccessToken != "acc-2" {
		t.Errorf("access token = %q, want acc-2", loaded.Tokens.AccessToken)
	}
	if loaded.Member != nil {
		t.Errorf("stale member blob survived replace: %+v", loaded.Member)
	}
}
