package crypto

import (
	"bytes"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRandBytes_LengthAndUniqueness(t *testing.T) {
	t.Parallel()

	const n = 32
	a, err := RandBytes(n)
	require.NoError(t, err)
	require.Len(t, a, n)
	b, err := RandBytes(n)
	require.NoError(t, err)
	require.False(t, bytes.Equal(a, b), "two subsequent RandBytes(%d) are equal", n)
}

func TestIPHasher(t *testing.T) {
	t.Parallel()

	_, err := NewIPHasher(nil)
	require.Error(t, err)
	_, err = NewIPHasher(make([]byte, 65))
	require.Error(t, err)

	h, err := NewIPHasher([]byte("k1"))
	require.NoError(t, err)
	other, err := NewIPHasher([]byte("k2"))
	require.NoError(t, err)

	a := h.Hash("1.2.3.4:123")
	require.Len(t, a, 32)
	require.True(t, Equal(a, h.Hash("1.2.3.4:999")), "port must not matter")
	require.True(t, Equal(a, h.Hash("1.2.3.4")))
	require.False(t, Equal(a, h.Hash("5.6.7.8:123")))
	require.False(t, Equal(a, other.Hash("1.2.3.4")), "key must matter")
	require.True(t, Equal(h.Hash("[::1]:80"), h.Hash("::1")))
}

func TestHostOnly(t *testing.T) {
	t.Parallel()

	require.Equal(t, "10.0.0.1", HostOnly(" 10.0.0.1:8080 "))
	require.Equal(t, "::1", HostOnly("[::1]:443"))
	require.Equal(t, "example", HostOnly("example"))
}

var reToken = regexp.MustCompile(`^AWVF-\d{4}-[A-Z]{4}-\d{4}-[A-Z]{4}$`)

func TestNewSessionToken_Format(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		tok, err := NewSessionToken(now)
		require.NoError(t, err)
		require.Regexp(t, reToken, string(tok))
		require.Equal(t, "AWVF-2026-", string(tok)[:10])
		seen[string(tok)] = true
	}
	require.Greater(t, len(seen), 45)
}
