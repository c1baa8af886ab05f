// Package memory contains an in-process SessionRepository used when no database is configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/and161185/awclaim/internal/crypto"
	"github.com/and161185/awclaim/internal/errs"
	"github.com/and161185/awclaim/internal/model"
	"github.com/and161185/awclaim/internal/repository"
)

// SessionStore is a dev-only fallback. Sessions are lost on restart.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[model.SessionToken]*model.Session
}

// NewSessionStore constructs an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[model.SessionToken]*model.Session)}
}

// Create implements repository.SessionRepository.
func (s *SessionStore) Create(ctx context.Context, in *model.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[in.Token]; ok {
		return errs.ErrAlreadyExists
	}
	s.sessions[in.Token] = clone(in)
	return nil
}

// Get implements repository.SessionRepository.
func (s *SessionStore) Get(ctx context.Context, token model.SessionToken) (*model.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.sessions[token]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return clone(cur), nil
}

// MarkVerified implements repository.SessionRepository.
func (s *SessionStore) MarkVerified(ctx context.Context, token model.SessionToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.sessions[token]
	if !ok {
		return errs.ErrNotFound
	}
	cur.Verified = true
	return nil
}

// Claim implements repository.SessionRepository.
func (s *SessionStore) Claim(ctx context.Context, token model.SessionToken, u repository.ClaimUpdate) (*model.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.sessions[token]
	switch {
	case !ok:
		return nil, errs.ErrNotFound
	case cur.Claimed():
		return nil, errs.ErrAlreadyClaimed
	case !cur.ExpiresAt.After(u.ClaimedAt):
		return nil, errs.ErrExpired
	}

	at := u.ClaimedAt
	cur.ClaimedAt = &at
	cur.ClaimedBy = u.ClaimedBy
	cur.DeviceID = u.DeviceID
	cur.AppVersion = u.AppVersion
	return clone(cur), nil
}

// LatestPendingByIP implements repository.SessionRepository.
func (s *SessionStore) LatestPendingByIP(ctx context.Context, ipHash []byte, now time.Time) (*model.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *model.Session
	for _, cur := range s.sessions {
		if cur.Claimed() || !cur.ExpiresAt.After(now) || !crypto.Equal(cur.OriginIPHash, ipHash) {
			continue
		}
		if best == nil || cur.CreatedAt.After(best.CreatedAt) {
			best = cur
		}
	}
	if best == nil {
		return nil, errs.ErrNotFound
	}
	return clone(best), nil
}

// Sweep drops sessions that expired before now. Returns the number removed.
func (s *SessionStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for tok, cur := range s.sessions {
		if !cur.ExpiresAt.After(now) && !cur.Claimed() {
			delete(s.sessions, tok)
			n++
		}
	}
	return n
}

func clone(in *model.Session) *model.Session {
	out := *in
	out.OriginIPHash = append([]byte(nil), in.OriginIPHash...)
	if in.ClaimedAt != nil {
		at := *in.ClaimedAt
		out.ClaimedAt = &at
	}
	return &out
}
