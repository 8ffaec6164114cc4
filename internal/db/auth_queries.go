package db

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// AuthOperator is a recruiter/admin account allowed to resolve duplicates.
type AuthOperator struct {
	OperatorID         int64      `json:"operator_id"`
	Username           string     `json:"username"`
	PasswordHash       string     `json:"-"`
	MustChangePassword bool       `json:"must_change_password"`
	CreatedAt          time.Time  `json:"created_at"`
	LastLoginAt        *time.Time `json:"last_login_at,omitempty"`
}

// AuthSession is a resolved operator session.
type AuthSession struct {
	SessionID          string    `json:"session_id"`
	OperatorID         int64     `json:"operator_id"`
	Username           string    `json:"username"`
	MustChangePassword bool      `json:"must_change_password"`
	ExpiresAt          time.Time `json:"expires_at"`
	LastSeenAt         time.Time `json:"last_seen_at"`
}

func (p *Pool) CountOperators(ctx context.Context) (int64, error) {
	const q = `SELECT COUNT(*) FROM intake.operators`

	var count int64
	if err := p.QueryRow(ctx, q).Scan(&count); err != nil {
		return 0, fmt.Errorf("count operators: %w", err)
	}
	return count, nil
}

func (p *Pool) CreateOperator(ctx context.Context, username, passwordHash string, mustChangePassword bool) (*AuthOperator, error) {
	const q = `
INSERT INTO intake.operators (username, password_hash, must_change_password, created_at)
VALUES ($1, $2, $3, now())
RETURNING operator_id, username, password_hash, must_change_password, created_at, last_login_at
`

	var row AuthOperator
	if err := p.QueryRow(ctx, q, normalizeUsername(username), strings.TrimSpace(passwordHash), mustChangePassword).Scan(
		&row.OperatorID,
		&row.Username,
		&row.PasswordHash,
		&row.MustChangePassword,
		&row.CreatedAt,
		&row.LastLoginAt,
	); err != nil {
		return nil, fmt.Errorf("insert operator: %w", err)
	}
	return &row, nil
}

func (p *Pool) GetOperatorByUsername(ctx context.Context, username string) (*AuthOperator, error) {
	const q = `
SELECT operator_id, username, password_hash, must_change_password, created_at, last_login_at
FROM intake.operators
WHERE username = $1
`

	var row AuthOperator
	if err := p.QueryRow(ctx, q, normalizeUsername(username)).Scan(
		&row.OperatorID,
		&row.Username,
		&row.PasswordHash,
		&row.MustChangePassword,
		&row.CreatedAt,
		&row.LastLoginAt,
	); err != nil {
		if IsNoRows(err) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("get operator: %w", err)
	}
	return &row, nil
}

func (p *Pool) UpdateOperatorPassword(ctx context.Context, operatorID int64, passwordHash string) error {
	const q = `
UPDATE intake.operators
SET password_hash = $2, must_change_password = false
WHERE operator_id = $1
`
	tag, err := p.Exec(ctx, q, operatorID, strings.TrimSpace(passwordHash))
	if err != nil {
		return fmt.Errorf("update operator password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("operator %d not found", operatorID)
	}
	return nil
}

func (p *Pool) TouchOperatorLogin(ctx context.Context, operatorID int64, at time.Time) error {
	const q = `UPDATE intake.operators SET last_login_at = $2 WHERE operator_id = $1`
	if _, err := p.Exec(ctx, q, operatorID, at.UTC()); err != nil {
		return fmt.Errorf("touch operator login: %w", err)
	}
	return nil
}

func (p *Pool) CreateSession(ctx context.Context, sessionID string, operatorID int64, expiresAt, at time.Time) error {
	const q = `
INSERT INTO intake.operator_sessions (session_id, operator_id, expires_at, last_seen_at, created_at)
VALUES ($1, $2, $3, $4, $4)
`
	if _, err := p.Exec(ctx, q, sessionID, operatorID, expiresAt.UTC(), at.UTC()); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (p *Pool) GetSession(ctx context.Context, sessionID string, now time.Time) (*AuthSession, error) {
	const q = `
SELECT s.session_id, s.operator_id, o.username, o.must_change_password, s.expires_at, s.last_seen_at
FROM intake.operator_sessions s
JOIN intake.operators o ON o.operator_id = s.operator_id
WHERE s.session_id = $1
  AND s.expires_at > $2
`

	var row AuthSession
	if err := p.QueryRow(ctx, q, sessionID, now.UTC()).Scan(
		&row.SessionID,
		&row.OperatorID,
		&row.Username,
		&row.MustChangePassword,
		&row.ExpiresAt,
		&row.LastSeenAt,
	); err != nil {
		if IsNoRows(err) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &row, nil
}

func (p *Pool) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	const q = `UPDATE intake.operator_sessions SET last_seen_at = $2 WHERE session_id = $1`
	if _, err := p.Exec(ctx, q, sessionID, at.UTC()); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func (p *Pool) DeleteSession(ctx context.Context, sessionID string) error {
	const q = `DELETE FROM intake.operator_sessions WHERE session_id = $1`
	if _, err := p.Exec(ctx, q, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (p *Pool) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	const q = `DELETE FROM intake.operator_sessions WHERE expires_at <= $1`
	tag, err := p.Exec(ctx, q, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func normalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
