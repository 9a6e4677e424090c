// Package session owns authentication state: token issuance, renewal, and
// teardown. The store is the single source of truth for the current session;
// consumers receive it by injection rather than reading ambient globals.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/findosh/libran/internal/gateway"
	"github.com/findosh/libran/internal/models"
	"github.com/findosh/libran/internal/storage"
)

var (
	// ErrNoSession is returned when an operation needs a stored session and
	// none exists. Refresh fails with it immediately, without a network call.
	ErrNoSession = errors.New("no session")

	errGatewayUnset = errors.New("session store has no gateway attached")
)

// State is the session lifecycle state
type State int

const (
	Unauthenticated State = iota
	Authenticated
	Refreshing
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	default:
		return "unauthenticated"
	}
}

// API is the slice of the gateway the store needs.
type API interface {
	Do(ctx context.Context, op gateway.Operation) (*gateway.Result, error)
}

// Store mediates login, logout, refresh, and startup rehydration.
type Store struct {
	creds *storage.CredentialRepository
	log   *zap.SugaredLogger
	now   func() time.Time

	mu      sync.RWMutex
	api     API
	state   State
	current *models.Session

	// Concurrent refreshes coalesce into one upstream call; every waiter
	// observes the same resulting token pair.
	refreshGroup singleflight.Group
}

// New creates a session store backed by the given credential repository.
// Attach the gateway with SetAPI before calling Login or Refresh; the
// gateway in turn reads tokens back from this store.
func New(creds *storage.CredentialRepository, log *zap.SugaredLogger) *Store {
	return &Store{
		creds: creds,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetAPI attaches the gateway client.
func (s *Store) SetAPI(api API) {
	s.mu.Lock()
	s.api = api
	s.mu.Unlock()
}

// AccessToken implements gateway.TokenSource.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.Tokens.AccessToken
}

// Current returns the active session, or nil when unauthenticated.
func (s *Store) Current() *models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// IsAuthenticated reports whether a session is active.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state != Unauthenticated && s.current != nil
}

// State returns the lifecycle state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

type loginPayload struct {
	User   models.User      `json:"user"`
	Member *models.Member   `json:"member"`
	Tokens models.TokenPair `json:"tokens"`
}

// Login exchanges credentials for a session. On success the new session
// replaces any existing one atomically and is persisted; on any failure the
// store's state is left untouched and the error is surfaced for display.
func (s *Store) Login(ctx context.Context, email, password string) (*models.Session, error) {
	api, err := s.gatewayRef()
	if err != nil {
		return nil, err
	}

	result, err := api.Do(ctx, gateway.Operation{
		Method: http.MethodPost,
		Path:   "/api/auth/login",
		Guest:  true,
		Body: map[string]string{
			"email":    email,
			"password": password,
		},
	})
	if err != nil {
		return nil, err
	}

	var payload loginPayload
	if err := result.Decode(&payload); err != nil {
		return nil, err
	}

	sess, err := models.NewSession(payload.User, payload.Member, payload.Tokens, s.now())
	if err != nil {
		return nil, fmt.Errorf("login response incomplete: %w", err)
	}

	if err := s.creds.Save(sess); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	s.mu.Lock()
	s.current = sess
	s.state = Authenticated
	s.mu.Unlock()

	s.log.Infow("logged in", "user", sess.User.Email, "user_type", sess.User.UserType)
	return sess, nil
}

// Logout clears the session unconditionally. Calling it while already logged
// out is a no-op success. In-flight requests holding the old access token
// will fail with an auth error and must not re-login automatically.
func (s *Store) Logout() error {
	s.mu.Lock()
	s.current = nil
	s.state = Unauthenticated
	s.mu.Unlock()

	if err := s.creds.Clear(); err != nil {
		return fmt.Errorf("failed to clear stored session: %w", err)
	}
	return nil
}

// Refresh rotates the token pair. Without a stored refresh token it fails
// immediately with ErrNoSession and no network call. On upstream failure the
// store logs out (fail-closed) and re-raises the error. Concurrent calls are
// coalesced: exactly one upstream refresh runs and all callers observe the
// same resulting pair.
func (s *Store) Refresh(ctx context.Context) (*models.TokenPair, error) {
	pair, err, _ := s.refreshGroup.Do("refresh", func() (interface{}, error) {
		return s.doRefresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return pair.(*models.TokenPair), nil
}

func (s *Store) doRefresh(ctx context.Context) (*models.TokenPair, error) {
	api, err := s.gatewayRef()
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.creds.RefreshToken()
	if err != nil {
		return nil, err
	}
	if refreshToken == "" {
		return nil, ErrNoSession
	}

	s.mu.Lock()
	if s.state == Authenticated {
		s.state = Refreshing
	}
	s.mu.Unlock()

	result, err := api.Do(ctx, gateway.Operation{
		Method: http.MethodPost,
		Path:   "/api/auth/refresh",
		Guest:  true,
		Body:   map[string]string{"refresh_token": refreshToken},
	})
	if err != nil {
		return nil, s.failClosed(err)
	}

	var payload struct {
		Tokens models.TokenPair `json:"tokens"`
	}
	if err := result.Decode(&payload); err != nil {
		return nil, s.failClosed(err)
	}

	s.mu.RLock()
	current := s.current
	s.mu.RUnlock()
	if current == nil {
		// Refresh token on disk but no in-memory session: rehydrate first.
		current, err = s.creds.Load()
		if err != nil || current == nil {
			return nil, s.failClosed(ErrNoSession)
		}
	}

	rotated, err := current.Rotate(payload.Tokens, s.now())
	if err != nil {
		return nil, s.failClosed(fmt.Errorf("refresh response incomplete: %w", err))
	}
	if err := s.creds.Save(rotated); err != nil {
		return nil, s.failClosed(fmt.Errorf("failed to persist rotated tokens: %w", err))
	}

	s.mu.Lock()
	s.current = rotated
	s.state = Authenticated
	s.mu.Unlock()

	s.log.Debugw("token pair rotated", "user", rotated.User.Email)
	return &rotated.Tokens, nil
}

// failClosed forces a logout after a broken refresh and passes the original
// error through. A stale, unusable session must never stay active.
func (s *Store) failClosed(cause error) error {
	if err := s.Logout(); err != nil {
		s.log.Errorw("forced logout failed", "error", err)
	}
	s.log.Warnw("refresh failed, session closed", "error", cause)
	return cause
}

// Rehydrate restores a persisted session at startup without contacting the
// server. Validity is established lazily: the first authenticated request may
// still fail and drive a refresh. A missing or partial persisted session is
// expected and leaves the store unauthenticated with no error.
func (s *Store) Rehydrate() (bool, error) {
	sess, err := s.creds.Load()
	if err != nil {
		return false, err
	}
	if sess == nil {
		return false, nil
	}

	s.mu.Lock()
	s.current = sess
	s.state = Authenticated
	s.mu.Unlock()

	s.log.Debugw("session rehydrated", "user", sess.User.Email)
	return true, nil
}

// TokenExpiringWithin reports whether the access token's exp claim falls
// inside the window. Tokens that cannot be parsed count as expiring so that
// callers refresh rather than trust them.
func (s *Store) TokenExpiringWithin(window time.Duration) bool {
	token := s.AccessToken()
	if token == "" {
		return true
	}

	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	parsed, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return true
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return exp.Time.Before(s.now().Add(window))
}

func (s *Store) gatewayRef() (API, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.api == nil {
		return nil, errGatewayUnset
	}
	return s.api, nil
}
