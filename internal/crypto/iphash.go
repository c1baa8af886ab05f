// Package crypto implements server-side keyed hashing, random material and session tokens.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"net"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// IPHasher turns client addresses into keyed BLAKE2b-256 digests so raw addresses are never stored.
type IPHasher struct{ key []byte }

// NewIPHasher constructs a hasher; key must be 1..64 bytes.
func NewIPHasher(key []byte) (*IPHasher, error) {
	if len(key) == 0 || len(key) > blake2b.Size {
		return nil, errors.New("ip hash key must be 1..64 bytes")
	}
	return &IPHasher{key: append([]byte(nil), key...)}, nil
}

// Hash returns the digest of the host part of addr ("1.2.3.4:5678" and "1.2.3.4" hash alike).
func (h *IPHasher) Hash(addr string) []byte {
	d, _ := blake2b.New256(h.key) // key length checked in NewIPHasher
	_, _ = d.Write([]byte(HostOnly(addr)))
	return d.Sum(nil)
}

// Equal compares two digests in constant time.
func Equal(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// HostOnly strips a port and IPv6 brackets from addr.
func HostOnly(addr string) string {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}
