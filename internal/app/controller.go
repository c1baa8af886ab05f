package app

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/awclaim/internal/deeplink"
	"github.com/and161185/awclaim/internal/errs"
	"github.com/and161185/awclaim/internal/links"
	"github.com/and161185/awclaim/internal/model"
)

// Claimer performs the network side of a flow. *claimclient.Client implements it.
type Claimer interface {
	Claim(ctx context.Context, serverURL string, token model.SessionToken) model.ClaimResult
	CheckPending(ctx context.Context, serverURL string) (model.PendingResult, error)
}

// ServerURLSource yields the server URL at the start of each flow.
type ServerURLSource interface {
	ServerURL() string
}

// Presenter renders state changes and alerts.
type Presenter interface {
	Status(text string)
	Alert(a Alert)
}

// Controller owns State and runs the user-triggered flows.
type Controller struct {
	claims   Claimer
	settings ServerURLSource
	view     Presenter
	log      *zap.Logger

	mu    sync.Mutex
	state State

	// renderMu is taken before mu is released so renders follow transition order.
	renderMu sync.Mutex
}

// NewController constructs a Controller and renders the initial status.
func NewController(claims Claimer, settings ServerURLSource, view Presenter, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Controller{
		claims:   claims,
		settings: settings,
		view:     view,
		log:      log,
		state:    Initial(settings.ServerURL()),
	}
	view.Status(c.state.Status)
	return c
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) dispatch(e Event) State {
	c.mu.Lock()
	next, alert := Reduce(c.state, e)
	c.state = next
	c.renderMu.Lock()
	c.mu.Unlock()
	defer c.renderMu.Unlock()

	c.view.Status(next.Status)
	if alert != nil {
		c.view.Alert(*alert)
	}
	return next
}

// HandleURL runs the deep-link flow. URLs without a token return errs.ErrNoToken
// and leave the state untouched; no request is sent.
func (c *Controller) HandleURL(ctx context.Context, raw string) (model.ClaimResult, error) {
	c.log.Info("received url", zap.String("url", raw))
	tok, ok := deeplink.ExtractSessionToken(raw)
	if !ok {
		c.log.Debug("no session token in url", zap.String("url", raw))
		return model.ClaimResult{}, errs.ErrNoToken
	}
	return c.claim(ctx, tok), nil
}

// SubmitToken runs the manual-entry flow.
func (c *Controller) SubmitToken(ctx context.Context, token string) (model.ClaimResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return model.ClaimResult{}, errs.ErrNoToken
	}
	return c.claim(ctx, model.SessionToken(token)), nil
}

// CheckPending runs the pending-claim discovery flow. When the server reports a
// session, it is claimed as if it had arrived by deep link.
func (c *Controller) CheckPending(ctx context.Context) (res model.ClaimResult, found bool, err error) {
	serverURL := c.serverURL()
	c.dispatch(PendingCheckStarted{})
	pending, err := c.claims.CheckPending(ctx, serverURL)
	c.dispatch(PendingCheckFinished{ServerURL: serverURL, Result: pending, Err: err})
	if err != nil {
		c.log.Warn("pending check failed", zap.Error(err))
		return model.ClaimResult{}, false, err
	}
	if !pending.Found {
		return model.ClaimResult{}, false, nil
	}
	c.log.Info("pending claim found", zap.String("session", string(pending.SessionToken)))
	return c.claim(ctx, pending.SessionToken), true, nil
}

func (c *Controller) claim(ctx context.Context, tok model.SessionToken) model.ClaimResult {
	serverURL := c.serverURL()
	c.dispatch(ClaimStarted{Token: tok})
	res := c.claims.Claim(ctx, serverURL, tok)
	c.dispatch(ClaimFinished{Token: tok, ServerURL: serverURL, Result: res})
	return res
}

// serverURL reads settings at flow start and syncs the state if they changed underneath.
func (c *Controller) serverURL() string {
	u := c.settings.ServerURL()
	if u != c.State().ServerURL {
		c.dispatch(ServerURLChanged{URL: u})
	}
	return u
}

// Run handles the cold-start URL and then every delivered URL until ctx is done or the
// source is exhausted. Each URL is handled concurrently and independently. The
// subscription is always released and in-flight flows are awaited before Run returns.
func (c *Controller) Run(ctx context.Context, src links.Source) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	urls, release := src.Subscribe(ctx)
	defer release()

	handle := func(u string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.HandleURL(ctx, u); err != nil {
				c.log.Debug("url ignored", zap.String("url", u), zap.Error(err))
			}
		}()
	}

	if u, ok := src.InitialURL(); ok {
		handle(u)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-urls:
			if !ok {
				return nil
			}
			handle(u)
		}
	}
}
