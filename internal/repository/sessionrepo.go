// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/awclaim/internal/model"
)

// ClaimUpdate carries the fields written when a device claims a session.
type ClaimUpdate struct {
	ClaimedAt  time.Time
	ClaimedBy  string
	DeviceID   string
	AppVersion string
}

// SessionRepository provides access to verification sessions.
type SessionRepository interface {
	// Create inserts a new session. Returns errs.ErrAlreadyExists on token collision.
	Create(ctx context.Context, s *model.Session) error
	// Get loads a session by token.
	Get(ctx context.Context, token model.SessionToken) (*model.Session, error)
	// MarkVerified flags the session as age-verified.
	MarkVerified(ctx context.Context, token model.SessionToken) error
	// Claim marks the session claimed only if it is unclaimed and not expired at u.ClaimedAt.
	// It returns the updated session, or errs.ErrNotFound / errs.ErrExpired / errs.ErrAlreadyClaimed.
	Claim(ctx context.Context, token model.SessionToken, u ClaimUpdate) (*model.Session, error)
	// LatestPendingByIP returns the newest unclaimed, unexpired session created from ipHash.
	LatestPendingByIP(ctx context.Context, ipHash []byte, now time.Time) (*model.Session, error)
}
