package db

import (
	"database/sql"
	"time"
)

const (
	// AuthSessionDuration is the default auth session lifetime (30 days)
	AuthSessionDuration = 30 * 24 * time.Hour
)

// CreateAuthSession creates a new auth session in the database
func CreateAuthSession(id string) (*AuthSession, error) {
	now := NowMs()
	expiresAt := time.Now().Add(AuthSessionDuration).UnixMilli()

	_, err := Run(`
		INSERT INTO sessions (id, created_at, expires_at, last_used_at)
		VALUES (?, ?, ?, ?)
	`, id, now, expiresAt, now)
	if err != nil {
		return nil, err
	}

	return &AuthSession{
		ID:         id,
		CreatedAt:  now,
		ExpiresAt:  expiresAt,
		LastUsedAt: now,
	}, nil
}

// GetAuthSession retrieves an auth session by ID, returns nil if not found or expired
func GetAuthSession(id string) (*AuthSession, error) {
	return SelectOne(`
		SELECT id, created_at, expires_at, last_used_at
		FROM sessions
		WHERE id = ? AND expires_at > ?
	`, []QueryParam{id, NowMs()}, func(row *sql.Row) (AuthSession, error) {
		var s AuthSession
		err := row.Scan(&s.ID, &s.CreatedAt, &s.ExpiresAt, &s.LastUsedAt)
		return s, err
	})
}

// TouchAuthSession updates the last_used_at timestamp for an auth session
func TouchAuthSession(id string) error {
	_, err := Run(`
		UPDATE sessions
		SET last_used_at = ?
		WHERE id = ?
	`, NowMs(), id)

	return err
}

// DeleteAuthSession removes an auth session from the database
func DeleteAuthSession(id string) error {
	_, err := Run(`DELETE FROM sessions WHERE id = ?`, id)
	return err
}

// DeleteExpiredAuthSessions removes all expired auth sessions
func DeleteExpiredAuthSessions() (int64, error) {
	result, err := Run(`DELETE FROM sessions WHERE expires_at <= ?`, NowMs())
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
