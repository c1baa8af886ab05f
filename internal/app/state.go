// Package app holds the client's application state and the flows that drive it.
//
// State is never mutated directly: every change goes through Reduce, which returns
// the next State plus an optional Alert for the presenter.
package app

import (
	"fmt"

	"github.com/and161185/awclaim/internal/claimclient"
	"github.com/and161185/awclaim/internal/model"
)

// Phase is the coarse flow state shown to the user.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePending
	PhaseChecking
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseChecking:
		return "checking"
	default:
		return "idle"
	}
}

// Status texts.
const (
	StatusReady          = "Ready to verify"
	StatusChecking       = "Checking for pending claim..."
	StatusNothingPending = "No pending claim found"
)

// State is the whole client view model.
type State struct {
	Phase     Phase
	Status    string
	ServerURL string
	// Token is the most recent session token a claim was started for.
	Token model.SessionToken
	// Last is the outcome of the most recently finished claim.
	Last     *model.ClaimResult
	InFlight int
	Checking int
}

// Initial returns the start state for a given server URL.
func Initial(serverURL string) State {
	return State{Phase: PhaseIdle, Status: StatusReady, ServerURL: serverURL}
}

// Alert is a modal message raised at terminal states.
type Alert struct {
	Title   string
	Message string
}

// Event is an input to Reduce.
type Event interface{ event() }

type (
	// ServerURLChanged follows a settings edit.
	ServerURLChanged struct{ URL string }
	// ClaimStarted is emitted before the claim request is sent.
	ClaimStarted struct{ Token model.SessionToken }
	// ClaimFinished carries the outcome of one claim request.
	ClaimFinished struct {
		Token     model.SessionToken
		ServerURL string
		Result    model.ClaimResult
	}
	// PendingCheckStarted is emitted before the pending-claim GET.
	PendingCheckStarted struct{}
	// PendingCheckFinished reports the pending-claim answer or its transport error.
	PendingCheckFinished struct {
		ServerURL string
		Result    model.PendingResult
		Err       error
	}
)

func (ServerURLChanged) event()     {}
func (ClaimStarted) event()         {}
func (ClaimFinished) event()        {}
func (PendingCheckStarted) event()  {}
func (PendingCheckFinished) event() {}

// Reduce computes the next state. It is pure: no I/O, no clocks.
func Reduce(s State, e Event) (State, *Alert) {
	switch ev := e.(type) {
	case ServerURLChanged:
		s.ServerURL = ev.URL
		return s, nil

	case ClaimStarted:
		s.InFlight++
		s.Token = ev.Token
		s.Status = "Claiming session: " + string(ev.Token)
		s.Phase = phaseOf(s)
		return s, nil

	case ClaimFinished:
		if s.InFlight > 0 {
			s.InFlight--
		}
		res := ev.Result
		s.Last = &res
		status, alert := describe(ev)
		s.Status = status
		s.Phase = phaseOf(s)
		return s, &alert

	case PendingCheckStarted:
		s.Checking++
		s.Status = StatusChecking
		s.Phase = phaseOf(s)
		return s, nil

	case PendingCheckFinished:
		if s.Checking > 0 {
			s.Checking--
		}
		s.Phase = phaseOf(s)
		if ev.Err != nil {
			s.Status = "Error: " + ev.Err.Error()
			return s, &Alert{
				Title:   "Network Error",
				Message: fmt.Sprintf("URL: %s\n\nError: %s", claimclient.PendingURL(ev.ServerURL), ev.Err.Error()),
			}
		}
		if !ev.Result.Found {
			s.Status = StatusNothingPending
			return s, nil
		}
		// the follow-up ClaimStarted sets the status
		return s, nil
	}
	return s, nil
}

// phaseOf derives the phase from the in-flight counters; with no request running the UI is idle.
func phaseOf(s State) Phase {
	switch {
	case s.InFlight > 0:
		return PhasePending
	case s.Checking > 0:
		return PhaseChecking
	default:
		return PhaseIdle
	}
}

func describe(ev ClaimFinished) (string, Alert) {
	r := ev.Result
	switch r.Kind {
	case model.ClaimClaimed:
		v := yesNo(r.Verified)
		return "✓ Session claimed! Verified: " + v, Alert{
			Title:   "Success",
			Message: fmt.Sprintf("Session %s claimed.\nUser verified: %s", ev.Token, v),
		}
	case model.ClaimFailed:
		return "Failed: " + r.Reason, Alert{Title: "Claim Failed", Message: r.Reason}
	case model.ClaimUnexpected:
		return "Unexpected response: " + string(r.Raw), Alert{
			Title:   "Unexpected Response",
			Message: string(r.Raw),
		}
	default:
		return "Error: " + r.Message, Alert{
			Title:   "Network Error",
			Message: fmt.Sprintf("URL: %s\n\nError: %s", claimclient.ClaimURL(ev.ServerURL, ev.Token), r.Message),
		}
	}
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
