package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/findosh/libran/internal/models"
)

// Entry names. Two raw token strings plus two JSON blobs, always written and
// removed as a unit.
const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyUser         = "user"
	keyMember       = "member"
)

// CredentialRepository persists the session mirror: the token pair and the
// user/member records the session store rehydrates from at startup.
type CredentialRepository struct {
	db *DB
}

// NewCredentialRepository creates a new credential repository
func NewCredentialRepository(db *DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Save writes all four entries in a single transaction. A partially written
// session is never visible.
func (r *CredentialRepository) Save(session *models.Session) error {
	userBlob, err := json.Marshal(session.User)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}

	var memberBlob []byte
	if session.Member != nil {
		memberBlob, err = json.Marshal(session.Member)
		if err != nil {
			return fmt.Errorf("failed to encode member: %w", err)
		}
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	entries := map[string]string{
		keyAccessToken:  session.Tokens.AccessToken,
		keyRefreshToken: session.Tokens.RefreshToken,
		keyUser:         string(userBlob),
	}

	if _, err := tx.Exec("DELETE FROM credentials"); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	for name, value := range entries {
		if err := upsert(tx, name, value, now); err != nil {
			return err
		}
	}
	if memberBlob != nil {
		if err := upsert(tx, keyMember, string(memberBlob), now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Load rehydrates the persisted session. It returns (nil, nil) when the
// access token or user record are missing; an optimistic restore needs both.
// The restored session keeps the stored expiry hint when present.
func (r *CredentialRepository) Load() (*models.Session, error) {
	entries, err := r.loadAll()
	if err != nil {
		return nil, err
	}

	access := entries[keyAccessToken]
	userBlob := entries[keyUser]
	if access == "" || userBlob == "" {
		return nil, nil
	}

	var user models.User
	if err := json.Unmarshal([]byte(userBlob), &user); err != nil {
		return nil, fmt.Errorf("failed to decode stored user: %w", err)
	}

	var member *models.Member
	if blob := entries[keyMember]; blob != "" {
		member = &models.Member{}
		if err := json.Unmarshal([]byte(blob), member); err != nil {
			return nil, fmt.Errorf("failed to decode stored member: %w", err)
		}
	}

	return &models.Session{
		User:   user,
		Member: member,
		Tokens: models.TokenPair{
			AccessToken:  access,
			RefreshToken: entries[keyRefreshToken],
			TokenType:    "Bearer",
		},
	}, nil
}

// RefreshToken reads just the persisted refresh token. Empty when absent.
func (r *CredentialRepository) RefreshToken() (string, error) {
	var value string
	err := r.db.QueryRow("SELECT value FROM credentials WHERE name = ?", keyRefreshToken).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read refresh token: %w", err)
	}
	return value, nil
}

// Clear removes all entries. Clearing an empty store is a no-op success.
func (r *CredentialRepository) Clear() error {
	if _, err := r.db.Exec("DELETE FROM credentials"); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}

func (r *CredentialRepository) loadAll() (map[string]string, error) {
	rows, err := r.db.Query("SELECT name, value FROM credentials")
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		entries[name] = value
	}
	return entries, rows.Err()
}

func upsert(tx *sql.Tx, name, value string, now time.Time) error {
	_, err := tx.Exec(
		"INSERT INTO credentials (name, value, updated_at) VALUES (?, ?, ?)",
		name, value, now,
	)
	if err != nil {
		return fmt.Errorf("failed to write credential %s: %w", name, err)
	}
	return nil
}
