// Package model defines domain entities shared by the client and the reference server.
package model

import (
	"encoding/json"
	"time"
)

// SessionToken is an opaque session identifier, e.g. AWVF-2026-QXTZ-4821-MMKD. Never validated by the client.
type SessionToken string

// ClaimRequest is the JSON body of POST /session/{token}/claim.
type ClaimRequest struct {
	UserToken  string `json:"token"`
	DeviceID   string `json:"device_id"`
	AppVersion string `json:"app_version"`
}

// ClaimKind tags the outcome of a claim attempt.
type ClaimKind int

const (
	// ClaimNetworkError is the zero value so an uninitialized result never reads as success.
	ClaimNetworkError ClaimKind = iota
	ClaimClaimed
	ClaimFailed
	ClaimUnexpected
)

func (k ClaimKind) String() string {
	switch k {
	case ClaimClaimed:
		return "claimed"
	case ClaimFailed:
		return "failed"
	case ClaimUnexpected:
		return "unexpected"
	default:
		return "network_error"
	}
}

// ClaimResult is a tagged outcome. Only the field matching Kind is meaningful.
type ClaimResult struct {
	Kind     ClaimKind
	Verified bool            // Claimed
	Reason   string          // Failed
	Raw      json.RawMessage // Unexpected
	Message  string          // NetworkError
}

// Claimed builds a ClaimClaimed result.
func Claimed(verified bool) ClaimResult { return ClaimResult{Kind: ClaimClaimed, Verified: verified} }

// Failed builds a ClaimFailed result.
func Failed(reason string) ClaimResult { return ClaimResult{Kind: ClaimFailed, Reason: reason} }

// Unexpected builds a ClaimUnexpected result.
func Unexpected(raw json.RawMessage) ClaimResult { return ClaimResult{Kind: ClaimUnexpected, Raw: raw} }

// NetworkError builds a ClaimNetworkError result.
func NetworkError(msg string) ClaimResult { return ClaimResult{Kind: ClaimNetworkError, Message: msg} }

// PendingResult is the decoded answer of GET /pending-claim/check.
type PendingResult struct {
	Found        bool         `json:"found"`
	SessionToken SessionToken `json:"session_token,omitempty"`
}

// Settings is the only state the client persists across runs.
type Settings struct {
	ServerURL string `json:"server_url"`
}

// Session is a server-side verification session created by the web flow.
type Session struct {
	Token        SessionToken
	CreatedAt    time.Time
	ExpiresAt    time.Time
	OriginIPHash []byte // keyed hash of the creator's address, used for pending-claim matching
	Verified     bool
	ClaimedAt    *time.Time
	ClaimedBy    string // user token supplied by the claiming device
	DeviceID     string
	AppVersion   string
}

// Claimed reports whether a device has already claimed the session.
func (s *Session) Claimed() bool { return s.ClaimedAt != nil }

// ClaimReceipt is returned to a device after a successful claim.
type ClaimReceipt struct {
	Token     SessionToken
	Verified  bool
	Receipt   string // signed JWT
	ClaimedAt time.Time
}
