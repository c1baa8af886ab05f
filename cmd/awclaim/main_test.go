package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func withTmpConfig(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("AWCLAIM_SERVER_URL", "")
	t.Chdir(t.TempDir())
}

func fakeServer(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		switch {
		case r.URL.Path == "/pending-claim/check":
			_, _ = io.WriteString(w, `{"found":true,"session_token":"PEND"}`)
		case r.URL.Path == "/session/GOOD/claim" || r.URL.Path == "/session/PEND/claim":
			_, _ = io.WriteString(w, `{"status":"claimed","user_verified":true}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"not_found"}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func runCLI(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(stdin), &out, &errOut)
	return code, out.String(), errOut.String()
}

func Test_version(t *testing.T) {
	withTmpConfig(t)
	code, out, _ := runCLI(t, "", "version")
	require.Equal(t, 0, code)
	require.Contains(t, out, "awclaim dev")
}

func Test_usage_NoCommand(t *testing.T) {
	withTmpConfig(t)
	code, _, errOut := runCLI(t, "")
	require.Equal(t, 2, code)
	require.Contains(t, errOut, "Commands:")
}

func Test_open_ClaimsAndReportsYes(t *testing.T) {
	withTmpConfig(t)
	srv, hits := fakeServer(t)

	code, out, _ := runCLI(t, "", "-server", srv.URL, "open", "awdemo://x?session=GOOD&src=web")
	require.Equal(t, 0, code)
	require.Contains(t, out, "status: Claiming session: GOOD")
	require.Contains(t, out, "Verified: Yes")
	require.Contains(t, out, "[Success]")
	require.EqualValues(t, 1, atomic.LoadInt32(hits))
}

func Test_open_NoTokenIsSilent(t *testing.T) {
	withTmpConfig(t)
	srv, hits := fakeServer(t)

	code, out, _ := runCLI(t, "", "-server", srv.URL, "open", "https://example.com/")
	require.Equal(t, 0, code)
	require.Equal(t, "status: Ready to verify\n", out)
	require.EqualValues(t, 0, atomic.LoadInt32(hits))
}

func Test_claim_ServerFailureExitsNonZero(t *testing.T) {
	withTmpConfig(t)
	srv, _ := fakeServer(t)

	code, out, _ := runCLI(t, "", "-server", srv.URL, "claim", "-token", "MISSING")
	require.Equal(t, 1, code)
	require.Contains(t, out, "Failed: not_found")

	code, _, errOut := runCLI(t, "", "-server", srv.URL, "claim")
	require.Equal(t, 2, code)
	require.Contains(t, errOut, "need -token")
}

func Test_check_FeedsPendingTokenIntoClaim(t *testing.T) {
	withTmpConfig(t)
	srv, hits := fakeServer(t)

	code, out, _ := runCLI(t, "", "-server", srv.URL, "check")
	require.Equal(t, 0, code)
	require.Contains(t, out, "Claiming session: PEND")
	require.EqualValues(t, 2, atomic.LoadInt32(hits))
}

func Test_listen_HandlesEveryLine(t *testing.T) {
	withTmpConfig(t)
	srv, hits := fakeServer(t)

	stdin := "https://h/session/GOOD/claim\nnot a link\nhttps://h/v.php?s=OTHER\n"
	code, out, _ := runCLI(t, stdin, "-server", srv.URL, "listen", "-url", "awdemo://x?session=GOOD")
	require.Equal(t, 0, code)
	require.EqualValues(t, 3, atomic.LoadInt32(hits))
	require.Contains(t, out, "[Claim Failed]")
}

func Test_settings_RoundTripDrivesClaims(t *testing.T) {
	withTmpConfig(t)
	srv, hits := fakeServer(t)

	code, out, _ := runCLI(t, "", "settings", "show")
	require.Equal(t, 0, code)
	require.Contains(t, out, "server_url: http://localhost:8080 (default)")

	code, out, _ = runCLI(t, "", "settings", "set-server", srv.URL+"/")
	require.Equal(t, 0, code)
	require.Contains(t, out, "saved server_url: "+srv.URL+"/")

	code, out, _ = runCLI(t, "", "settings", "show")
	require.Equal(t, 0, code)
	require.Contains(t, out, "server_url: "+srv.URL+"/ (saved)")

	// a fresh invocation uses the persisted URL
	code, _, _ = runCLI(t, "", "claim", "-token", "GOOD")
	require.Equal(t, 0, code)
	require.EqualValues(t, 1, atomic.LoadInt32(hits))

	code, out, _ = runCLI(t, "", "settings", "reset")
	require.Equal(t, 0, code)
	require.Contains(t, out, "http://localhost:8080")

	code, _, errOut := runCLI(t, "", "settings", "set-server", "not-a-url")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "absolute http(s) url")
}

func Test_badPolicy(t *testing.T) {
	withTmpConfig(t)
	code, _, errOut := runCLI(t, "", "-policy", "dedupe", "claim", "-token", "x")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "unknown policy")
}
