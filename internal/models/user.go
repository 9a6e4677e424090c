// Package models defines core domain types
package models

import (
	"errors"
	"time"
)

// UserType identifies the broad class of account
type UserType string

const (
	UserTypeAdmin     UserType = "admin"
	UserTypeLibrarian UserType = "librarian"
	UserTypeMember    UserType = "member"
)

// RoleLibraryMember is the role the remote service assigns to member accounts.
const RoleLibraryMember = "Library Member"

// User represents an authenticated account as returned by the auth endpoints
type User struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	UserType UserType `json:"user_type"`
	Roles    []string `json:"roles"`
}

// HasRole reports whether the user carries the given role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// TokenPair is the credential pair issued by login and rotated by refresh
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// ErrIncompleteSession is returned when a session would be created with
// missing fields. A session is either fully present or fully absent.
var ErrIncompleteSession = errors.New("incomplete session")

// Session is the client's view of an authenticated state: the user record,
// the optional member record, and the current token pair.
type Session struct {
	User      User      `json:"user"`
	Member    *Member   `json:"member,omitempty"`
	Tokens    TokenPair `json:"tokens"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewSession builds a session, rejecting partial state.
func NewSession(user User, member *Member, tokens TokenPair, issuedAt time.Time) (*Session, error) {
	if user.ID == "" || user.Email == "" {
		return nil, ErrIncompleteSession
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return nil, ErrIncompleteSession
	}
	return &Session{
		User:      user,
		Member:    member,
		Tokens:    tokens,
		ExpiresAt: issuedAt.Add(time.Duration(tokens.ExpiresIn) * time.Second),
	}, nil
}

// Rotate returns a copy of the session carrying a new token pair.
func (s *Session) Rotate(tokens TokenPair, issuedAt time.Time) (*Session, error) {
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return nil, ErrIncompleteSession
	}
	rotated := *s
	rotated.Tokens = tokens
	rotated.ExpiresAt = issuedAt.Add(time.Duration(tokens.ExpiresIn) * time.Second)
	return &rotated, nil
}
