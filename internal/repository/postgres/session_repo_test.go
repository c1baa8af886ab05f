package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/and161185/awclaim/internal/errs"
	"github.com/and161185/awclaim/internal/model"
	"github.com/and161185/awclaim/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

var (
	tok     = model.SessionToken("AWVF-2026-QXTZ-4821-MMKD")
	created = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	expires = created.Add(15 * time.Minute)
	ipHash  = []byte{0x01, 0x02}
)

var sessionColNames = []string{"token", "created_at", "expires_at", "origin_ip_hash", "verified",
	"claimed_at", "claimed_by", "device_id", "app_version"}

func TestSessionRepo_Create_OK_and_Collision(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)
	ctx := context.Background()
	s := &model.Session{Token: tok, CreatedAt: created, ExpiresAt: expires, OriginIPHash: ipHash}

	mock.ExpectExec(`INSERT INTO sessions \(token, created_at, expires_at, origin_ip_hash, verified\) VALUES \(\$1, \$2, \$3, \$4, \$5\)`).
		WithArgs(tok, created, expires, ipHash, false).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Create(ctx, s))

	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs(tok, created, expires, ipHash, false).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.Create(ctx, s), errs.ErrAlreadyExists)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepo_Get(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT token, created_at, expires_at, origin_ip_hash, verified, claimed_at, claimed_by, device_id, app_version FROM sessions WHERE token=\$1`).
		WithArgs(tok).
		WillReturnRows(pgxmock.NewRows(sessionColNames).
			AddRow(tok, created, expires, ipHash, true, nil, "", "", ""))
	s, err := r.Get(ctx, tok)
	require.NoError(t, err)
	require.Equal(t, tok, s.Token)
	require.True(t, s.Verified)
	require.False(t, s.Claimed())

	mock.ExpectQuery(`FROM sessions WHERE token=\$1`).
		WithArgs(tok).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.Get(ctx, tok)
	require.ErrorIs(t, err, errs.ErrNotFound)

	mock.ExpectQuery(`FROM sessions WHERE token=\$1`).
		WithArgs(tok).
		WillReturnError(errors.New("conn reset"))
	_, err = r.Get(ctx, tok)
	require.Error(t, err)
	require.NotErrorIs(t, err, errs.ErrNotFound)
}

func TestSessionRepo_MarkVerified(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE sessions SET verified = true WHERE token = \$1`).
		WithArgs(tok).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.MarkVerified(ctx, tok))

	mock.ExpectExec(`UPDATE sessions SET verified = true WHERE token = \$1`).
		WithArgs(tok).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.MarkVerified(ctx, tok), errs.ErrNotFound)
}

func TestSessionRepo_Claim_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)
	ctx := context.Background()
	at := created.Add(time.Minute)
	u := repository.ClaimUpdate{ClaimedAt: at, ClaimedBy: "user_1", DeviceID: "demo-device", AppVersion: "1.0.0"}

	mock.ExpectQuery(`UPDATE sessions SET claimed_at = \$2, claimed_by = \$3, device_id = \$4, app_version = \$5 WHERE token = \$1 AND claimed_at IS NULL AND expires_at > \$2 RETURNING`).
		WithArgs(tok, at, "user_1", "demo-device", "1.0.0").
		WillReturnRows(pgxmock.NewRows(sessionColNames).
			AddRow(tok, created, expires, ipHash, true, at, "user_1", "demo-device", "1.0.0"))

	s, err := r.Claim(ctx, tok, u)
	require.NoError(t, err)
	require.True(t, s.Claimed())
	require.True(t, s.ClaimedAt.Equal(at))
	require.Equal(t, "user_1", s.ClaimedBy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepo_Claim_Classifies(t *testing.T) {
	at := created.Add(time.Minute)
	u := repository.ClaimUpdate{ClaimedAt: at, ClaimedBy: "user_2", DeviceID: "d", AppVersion: "v"}

	tests := []struct {
		name    string
		current func(m pgxmock.PgxPoolIface)
		want    error
	}{
		{
			name: "already claimed",
			current: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery(`FROM sessions WHERE token=\$1`).WithArgs(tok).
					WillReturnRows(pgxmock.NewRows(sessionColNames).
						AddRow(tok, created, expires, ipHash, true, created, "user_1", "d", "v"))
			},
			want: errs.ErrAlreadyClaimed,
		},
		{
			name: "expired",
			current: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery(`FROM sessions WHERE token=\$1`).WithArgs(tok).
					WillReturnRows(pgxmock.NewRows(sessionColNames).
						AddRow(tok, created, created, ipHash, false, nil, "", "", ""))
			},
			want: errs.ErrExpired,
		},
		{
			name: "unknown",
			current: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery(`FROM sessions WHERE token=\$1`).WithArgs(tok).WillReturnError(pgx.ErrNoRows)
			},
			want: errs.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newDB(t)
			defer mock.Close()
			r := NewSessionRepo(db)

			mock.ExpectQuery(`UPDATE sessions SET claimed_at`).
				WithArgs(tok, at, "user_2", "d", "v").
				WillReturnError(pgx.ErrNoRows)
			tt.current(mock)

			_, err := r.Claim(context.Background(), tok, u)
			require.ErrorIs(t, err, tt.want)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSessionRepo_Claim_DBError(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)
	at := created.Add(time.Minute)

	mock.ExpectQuery(`UPDATE sessions SET claimed_at`).
		WithArgs(tok, at, "u", "d", "v").
		WillReturnError(errors.New("boom"))
	_, err := r.Claim(context.Background(), tok, repository.ClaimUpdate{ClaimedAt: at, ClaimedBy: "u", DeviceID: "d", AppVersion: "v"})
	require.EqualError(t, err, "boom")
}

func TestSessionRepo_LatestPendingByIP(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)
	ctx := context.Background()
	now := created.Add(time.Minute)

	mock.ExpectQuery(`FROM sessions WHERE origin_ip_hash = \$1 AND claimed_at IS NULL AND expires_at > \$2 ORDER BY created_at DESC LIMIT 1`).
		WithArgs(ipHash, now).
		WillReturnRows(pgxmock.NewRows(sessionColNames).
			AddRow(tok, created, expires, ipHash, false, nil, "", "", ""))
	s, err := r.LatestPendingByIP(ctx, ipHash, now)
	require.NoError(t, err)
	require.Equal(t, tok, s.Token)

	mock.ExpectQuery(`FROM sessions WHERE origin_ip_hash`).
		WithArgs(ipHash, now).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.LatestPendingByIP(ctx, ipHash, now)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDB_Ping(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()

	mock.ExpectPing()
	require.NoError(t, db.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	require.Error(t, db.Ping(context.Background()))

	_, ok := db.Raw()
	require.False(t, ok, "mock pool is not a *pgxpool.Pool")
}
