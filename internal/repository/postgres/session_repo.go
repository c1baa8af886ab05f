package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/and161185/awclaim/internal/errs"
	"github.com/and161185/awclaim/internal/model"
	"github.com/and161185/awclaim/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// SessionRepo implements SessionRepository using PostgreSQL.
type SessionRepo struct{ db *DB }

// NewSessionRepo constructs a session repository.
func NewSessionRepo(db *DB) *SessionRepo { return &SessionRepo{db: db} }

const sessionCols = `token, created_at, expires_at, origin_ip_hash, verified, claimed_at, claimed_by, device_id, app_version`

func scanSession(row pgx.Row) (*model.Session, error) {
	var (
		s         model.Session
		claimedAt pgtype.Timestamptz
	)
	if err := row.Scan(&s.Token, &s.CreatedAt, &s.ExpiresAt, &s.OriginIPHash, &s.Verified,
		&claimedAt, &s.ClaimedBy, &s.DeviceID, &s.AppVersion); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	if claimedAt.Valid {
		t := claimedAt.Time
		s.ClaimedAt = &t
	}
	return &s, nil
}

// Create inserts a new session row.
func (r *SessionRepo) Create(ctx context.Context, s *model.Session) error {
	const q = `
INSERT INTO sessions (token, created_at, expires_at, origin_ip_hash, verified)
VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Pool.Exec(ctx, q, s.Token, s.CreatedAt, s.ExpiresAt, s.OriginIPHash, s.Verified)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// Get selects a session by token.
func (r *SessionRepo) Get(ctx context.Context, token model.SessionToken) (*model.Session, error) {
	const q = `SELECT ` + sessionCols + ` FROM sessions WHERE token=$1`
	return scanSession(r.db.Pool.QueryRow(ctx, q, token))
}

// MarkVerified sets verified=true on an existing session.
func (r *SessionRepo) MarkVerified(ctx context.Context, token model.SessionToken) error {
	const q = `UPDATE sessions SET verified = true WHERE token = $1`
	tag, err := r.db.Pool.Exec(ctx, q, token)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Claim sets the claim fields in a single conditional update. When no row matches,
// the current row is loaded to tell the caller why.
func (r *SessionRepo) Claim(ctx context.Context, token model.SessionToken, u repository.ClaimUpdate) (*model.Session, error) {
	const q = `
UPDATE sessions
SET claimed_at = $2, claimed_by = $3, device_id = $4, app_version = $5
WHERE token = $1 AND claimed_at IS NULL AND expires_at > $2
RETURNING ` + sessionCols
	s, err := scanSession(r.db.Pool.QueryRow(ctx, q, token, u.ClaimedAt, u.ClaimedBy, u.DeviceID, u.AppVersion))
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	cur, err := r.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if cur.Claimed() {
		return nil, errs.ErrAlreadyClaimed
	}
	return nil, errs.ErrExpired
}

// LatestPendingByIP selects the newest unclaimed, unexpired session created from ipHash.
func (r *SessionRepo) LatestPendingByIP(ctx context.Context, ipHash []byte, now time.Time) (*model.Session, error) {
	const q = `SELECT ` + sessionCols + ` FROM sessions
WHERE origin_ip_hash = $1 AND claimed_at IS NULL AND expires_at > $2
ORDER BY created_at DESC
LIMIT 1`
	return scanSession(r.db.Pool.QueryRow(ctx, q, ipHash, now))
}
