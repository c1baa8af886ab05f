package service

import (
	"errors"
	"time"

	"github.com/and161185/awclaim/internal/model"
	"github.com/golang-jwt/jwt/v5"
)

// ReceiptClaims is the payload of a claim receipt.
type ReceiptClaims struct {
	SessionToken string `json:"sid"`
	Verified     bool   `json:"verified"`
	jwt.RegisteredClaims
}

// issueReceipt creates a signed HS256 JWT for the claiming user token.
func (s *ClaimServiceImpl) issueReceipt(sess *model.Session, now time.Time) (string, error) {
	claims := ReceiptClaims{
		SessionToken: string(sess.Token),
		Verified:     sess.Verified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.ClaimedBy,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.receiptTTL)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(s.receiptKey)
}

// ParseReceipt validates signature and expiry of a receipt issued with key.
func ParseReceipt(raw string, key []byte, opts ...jwt.ParserOption) (*ReceiptClaims, error) {
	var claims ReceiptClaims
	opts = append([]jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}, opts...)
	tok, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) { return key, nil }, opts...)
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("invalid receipt")
	}
	return &claims, nil
}
