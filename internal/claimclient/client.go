// Package claimclient speaks the session-claim protocol to a remote verification server.
//
// The client trusts the server completely: responses are interpreted by field presence
// only, unknown fields are ignored, and no request is ever retried.
package claimclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofrs/uuid/v5"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/and161185/awclaim/internal/model"
)

// Policy decides what happens when the same claim is triggered while one is in flight.
type Policy int

const (
	// PolicyIndependent sends one POST per trigger, with no dedup and no cancellation of earlier requests.
	PolicyIndependent Policy = iota
	// PolicySingleFlight collapses concurrent claims of the same token on the same server into one POST.
	PolicySingleFlight
)

// ParsePolicy maps a flag value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "independent":
		return PolicyIndependent, nil
	case "singleflight", "single-flight":
		return PolicySingleFlight, nil
	default:
		return 0, fmt.Errorf("unknown policy %q (want independent|singleflight)", s)
	}
}

func (p Policy) String() string {
	if p == PolicySingleFlight {
		return "singleflight"
	}
	return "independent"
}

// Placeholder identity reported by the demo app.
const (
	DefaultDeviceID        = "demo-device"
	DefaultAppVersion      = "1.0.0"
	DefaultUserTokenPrefix = "user_"
)

// Options configures a Client. Zero values select defaults.
type Options struct {
	HTTPClient      *http.Client
	Clock           clockwork.Clock
	Logger          *zap.Logger
	Policy          Policy
	DeviceID        string
	AppVersion      string
	UserTokenPrefix string
}

// Client issues claim and pending-claim requests.
type Client struct {
	hc         *http.Client
	clock      clockwork.Clock
	log        *zap.Logger
	policy     Policy
	deviceID   string
	appVersion string
	prefix     string

	group singleflight.Group
}

// New constructs a Client.
func New(opts Options) *Client {
	c := &Client{
		hc:         opts.HTTPClient,
		clock:      opts.Clock,
		log:        opts.Logger,
		policy:     opts.Policy,
		deviceID:   opts.DeviceID,
		appVersion: opts.AppVersion,
		prefix:     opts.UserTokenPrefix,
	}
	if c.hc == nil {
		c.hc = &http.Client{}
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.deviceID == "" {
		c.deviceID = DefaultDeviceID
	}
	if c.appVersion == "" {
		c.appVersion = DefaultAppVersion
	}
	if c.prefix == "" {
		c.prefix = DefaultUserTokenPrefix
	}
	return c
}

// ClaimURL builds {serverURL}/session/{token}/claim. The token is inserted verbatim.
func ClaimURL(serverURL string, token model.SessionToken) string {
	return strings.TrimRight(serverURL, "/") + "/session/" + string(token) + "/claim"
}

// PendingURL builds {serverURL}/pending-claim/check.
func PendingURL(serverURL string) string {
	return strings.TrimRight(serverURL, "/") + "/pending-claim/check"
}

// UserToken returns a fresh pseudo-identifier: the prefix followed by the current Unix time in ms.
func (c *Client) UserToken() string {
	return c.prefix + strconv.FormatInt(c.clock.Now().UnixMilli(), 10)
}

// Claim performs one claim round-trip and classifies the answer.
// It never returns an error: transport problems become a NetworkError result.
func (c *Client) Claim(ctx context.Context, serverURL string, token model.SessionToken) model.ClaimResult {
	if c.policy != PolicySingleFlight {
		return c.claim(ctx, serverURL, token)
	}
	key := ClaimURL(serverURL, token)
	v, _, shared := c.group.Do(key, func() (any, error) {
		return c.claim(ctx, serverURL, token), nil
	})
	if shared {
		c.log.Debug("claim shared with in-flight request", zap.String("url", key))
	}
	return v.(model.ClaimResult)
}

func (c *Client) claim(ctx context.Context, serverURL string, token model.SessionToken) model.ClaimResult {
	u := ClaimURL(serverURL, token)
	body, err := json.Marshal(model.ClaimRequest{
		UserToken:  c.UserToken(),
		DeviceID:   c.deviceID,
		AppVersion: c.appVersion,
	})
	if err != nil {
		return model.NetworkError(err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return model.NetworkError(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	c.setRequestID(req)

	c.log.Info("claiming", zap.String("url", u))
	status, raw, decoded, err := c.do(req)
	if err != nil {
		c.log.Warn("claim transport error", zap.String("url", u), zap.Error(err))
		return model.NetworkError(err.Error())
	}

	res := Interpret(raw, decoded)
	c.log.Info("claim response",
		zap.String("url", u),
		zap.Int("http_status", status),
		zap.Stringer("outcome", res.Kind),
		zap.ByteString("body", raw),
	)
	return res
}

// CheckPending asks the server whether a session is waiting for this caller.
func (c *Client) CheckPending(ctx context.Context, serverURL string) (model.PendingResult, error) {
	u := PendingURL(serverURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return model.PendingResult{}, err
	}
	req.Header.Set("Accept", "application/json")
	c.setRequestID(req)

	c.log.Info("checking pending claim", zap.String("url", u))
	_, raw, decoded, err := c.do(req)
	if err != nil {
		return model.PendingResult{}, fmt.Errorf("pending check: %w", err)
	}

	obj, _ := decoded.(map[string]any)
	tok, _ := obj["session_token"].(string)
	if found, _ := obj["found"].(bool); found && tok != "" {
		return model.PendingResult{Found: true, SessionToken: model.SessionToken(tok)}, nil
	}
	c.log.Debug("nothing pending", zap.ByteString("body", raw))
	return model.PendingResult{}, nil
}

// do sends req and decodes the body as JSON whatever the status code.
// Non-2xx answers only fail when the body cannot be decoded.
func (c *Client) do(req *http.Request) (int, []byte, any, error) {
	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, nil, fmt.Errorf("read body: %w", err)
	}
	raw = bytes.TrimSpace(raw)

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return resp.StatusCode, raw, nil, fmt.Errorf("HTTP %d: %w", resp.StatusCode, err)
		}
		return resp.StatusCode, raw, nil, err
	}
	if v == nil {
		return resp.StatusCode, raw, nil, fmt.Errorf("HTTP %d: empty JSON value", resp.StatusCode)
	}
	return resp.StatusCode, raw, v, nil
}

func (c *Client) setRequestID(req *http.Request) {
	if id, err := uuid.NewV4(); err == nil {
		req.Header.Set("X-Request-ID", id.String())
	}
}
