// Package service contains the claimd application service for verification sessions.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pkgcrypto "github.com/and161185/awclaim/internal/crypto"
	"github.com/and161185/awclaim/internal/errs"
	"github.com/and161185/awclaim/internal/limiter"
	"github.com/and161185/awclaim/internal/model"
	"github.com/and161185/awclaim/internal/repository"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// createAttempts bounds retries on token collision.
const createAttempts = 3

// ClaimService defines the session lifecycle seen by the web flow and the claiming device.
type ClaimService interface {
	// Create opens a session on behalf of the caller at remoteAddr.
	Create(ctx context.Context, remoteAddr string) (*model.Session, error)
	// Verify records that the web flow passed age verification.
	Verify(ctx context.Context, token model.SessionToken) error
	// Claim binds the session to the requesting device and issues a signed receipt.
	Claim(ctx context.Context, token model.SessionToken, req model.ClaimRequest, remoteAddr string) (model.ClaimReceipt, error)
	// PendingFor returns the newest claimable session created from remoteAddr.
	PendingFor(ctx context.Context, remoteAddr string) (model.SessionToken, bool, error)
}

// Config holds ClaimServiceImpl dependencies.
type Config struct {
	Sessions   repository.SessionRepository
	Limiter    limiter.Limiter
	IPs        *pkgcrypto.IPHasher
	Clock      clockwork.Clock
	Logger     *zap.Logger
	ReceiptKey []byte
	SessionTTL time.Duration
	ReceiptTTL time.Duration
}

type ClaimServiceImpl struct {
	sessions   repository.SessionRepository
	lim        limiter.Limiter
	ips        *pkgcrypto.IPHasher
	clock      clockwork.Clock
	log        *zap.Logger
	receiptKey []byte
	sessionTTL time.Duration
	receiptTTL time.Duration

	newToken func(time.Time) (model.SessionToken, error)
}

// NewClaimService constructs ClaimService with required dependencies.
func NewClaimService(cfg Config) *ClaimServiceImpl {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &ClaimServiceImpl{
		log:        log,
		sessions:   cfg.Sessions,
		lim:        cfg.Limiter,
		ips:        cfg.IPs,
		clock:      clock,
		receiptKey: cfg.ReceiptKey,
		sessionTTL: cfg.SessionTTL,
		receiptTTL: cfg.ReceiptTTL,
		newToken:   pkgcrypto.NewSessionToken,
	}
}

// Create generates a fresh token and stores the session with the caller's address hash.
func (s *ClaimServiceImpl) Create(ctx context.Context, remoteAddr string) (*model.Session, error) {
	now := s.clock.Now().UTC()
	for i := 0; i < createAttempts; i++ {
		tok, err := s.newToken(now)
		if err != nil {
			return nil, err
		}
		sess := &model.Session{
			Token:        tok,
			CreatedAt:    now,
			ExpiresAt:    now.Add(s.sessionTTL),
			OriginIPHash: s.ips.Hash(remoteAddr),
		}
		err = s.sessions.Create(ctx, sess)
		if errors.Is(err, errs.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		return sess, nil
	}
	return nil, fmt.Errorf("create session: %w", errs.ErrAlreadyExists)
}

// Verify marks the session verified. Expired or claimed sessions are rejected.
func (s *ClaimServiceImpl) Verify(ctx context.Context, token model.SessionToken) error {
	if strings.TrimSpace(string(token)) == "" {
		return errs.ErrInvalidRequest
	}
	sess, err := s.sessions.Get(ctx, token)
	if err != nil {
		return err
	}
	switch {
	case sess.Claimed():
		return errs.ErrAlreadyClaimed
	case !sess.ExpiresAt.After(s.clock.Now()):
		return errs.ErrExpired
	}
	return s.sessions.MarkVerified(ctx, token)
}

// Claim applies the lockout, claims the session atomically and signs a receipt.
func (s *ClaimServiceImpl) Claim(ctx context.Context, token model.SessionToken, req model.ClaimRequest, remoteAddr string) (model.ClaimReceipt, error) {
	if strings.TrimSpace(string(token)) == "" || strings.TrimSpace(req.UserToken) == "" {
		return model.ClaimReceipt{}, errs.ErrInvalidRequest
	}
	ipHash := s.ips.Hash(remoteAddr)

	allowed, _, err := s.lim.Allow(ctx, ipHash)
	if err != nil {
		return model.ClaimReceipt{}, err
	}
	if !allowed {
		return model.ClaimReceipt{}, errs.ErrRateLimited
	}

	now := s.clock.Now().UTC()
	sess, err := s.sessions.Claim(ctx, token, repository.ClaimUpdate{
		ClaimedAt:  now,
		ClaimedBy:  req.UserToken,
		DeviceID:   req.DeviceID,
		AppVersion: req.AppVersion,
	})
	if err != nil {
		if isClaimRejection(err) {
			blocked, _, ferr := s.lim.Failure(ctx, ipHash)
			if ferr != nil {
				s.log.Warn("limiter failure not recorded", zap.Error(ferr))
			} else if blocked {
				return model.ClaimReceipt{}, errs.ErrRateLimited
			}
		}
		return model.ClaimReceipt{}, err
	}

	if err := s.lim.Success(ctx, ipHash); err != nil {
		s.log.Warn("limiter reset failed", zap.Error(err))
	}

	receipt, err := s.issueReceipt(sess, now)
	if err != nil {
		return model.ClaimReceipt{}, err
	}
	return model.ClaimReceipt{Token: sess.Token, Verified: sess.Verified, Receipt: receipt, ClaimedAt: now}, nil
}

// PendingFor looks up the caller's newest open session. Missing sessions are not an error.
func (s *ClaimServiceImpl) PendingFor(ctx context.Context, remoteAddr string) (model.SessionToken, bool, error) {
	sess, err := s.sessions.LatestPendingByIP(ctx, s.ips.Hash(remoteAddr), s.clock.Now())
	if errors.Is(err, errs.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return sess.Token, true, nil
}

func isClaimRejection(err error) bool {
	return errors.Is(err, errs.ErrNotFound) || errors.Is(err, errs.ErrExpired) || errors.Is(err, errs.ErrAlreadyClaimed)
}
