// Package httpapi exposes the claimd HTTP API handlers.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/and161185/awclaim/internal/errs"
	"github.com/and161185/awclaim/internal/model"
	"github.com/and161185/awclaim/internal/service"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// maxBody caps request bodies; claim payloads are a few hundred bytes.
const maxBody = 4 << 10

// Pinger reports backing store health for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures Server.
type Options struct {
	Logger     *zap.Logger
	Metrics    *Metrics
	Gatherer   prometheus.Gatherer
	Health     Pinger
	TrustProxy bool // honor X-Forwarded-For from a fronting proxy
}

// Server wires the claim service into HTTP handlers.
type Server struct {
	claims     service.ClaimService
	log        *zap.Logger
	metrics    *Metrics
	gatherer   prometheus.Gatherer
	health     Pinger
	trustProxy bool
}

// New constructs a Server with injected services.
func New(claims service.ClaimService, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		claims:     claims,
		log:        log,
		metrics:    opts.Metrics,
		gatherer:   opts.Gatherer,
		health:     opts.Health,
		trustProxy: opts.TrustProxy,
	}
}

// Handler builds the router with middleware applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(RequestID, Logging(s.log, s.metrics), Recover(s.log))

	r.HandleFunc("/session", s.createSession).Methods(http.MethodPost)
	r.HandleFunc("/session/{token}/verify", s.verifySession).Methods(http.MethodPost)
	r.HandleFunc("/session/{token}/claim", s.claimSession).Methods(http.MethodPost)
	r.HandleFunc("/pending-claim/check", s.pendingCheck).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return r
}

type errorBody struct {
	Error string `json:"error"`
}

type createResponse struct {
	SessionToken model.SessionToken `json:"session_token"`
	ExpiresAt    time.Time          `json:"expires_at"`
}

type claimResponse struct {
	Status       string             `json:"status"`
	UserVerified bool               `json:"user_verified"`
	SessionToken model.SessionToken `json:"session_token"`
	Receipt      string             `json:"receipt"`
}

type pendingResponse struct {
	Found        bool               `json:"found"`
	SessionToken model.SessionToken `json:"session_token,omitempty"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.claims.Create(r.Context(), s.clientAddr(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.metrics != nil {
		s.metrics.SessionsCreated.Inc()
	}
	writeJSON(w, http.StatusCreated, createResponse{SessionToken: sess.Token, ExpiresAt: sess.ExpiresAt})
}

func (s *Server) verifySession(w http.ResponseWriter, r *http.Request) {
	tok := model.SessionToken(mux.Vars(r)["token"])
	if err := s.claims.Verify(r.Context(), tok); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

func (s *Server) claimSession(w http.ResponseWriter, r *http.Request) {
	tok := model.SessionToken(mux.Vars(r)["token"])

	var req model.ClaimRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(&req); err != nil {
		s.countClaim(errs.ErrInvalidRequest)
		s.writeError(w, r, errs.ErrInvalidRequest)
		return
	}

	rec, err := s.claims.Claim(r.Context(), tok, req, s.clientAddr(r))
	s.countClaim(err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{
		Status:       "claimed",
		UserVerified: rec.Verified,
		SessionToken: rec.Token,
		Receipt:      rec.Receipt,
	})
}

func (s *Server) pendingCheck(w http.ResponseWriter, r *http.Request) {
	tok, found, err := s.claims.PendingFor(r.Context(), s.clientAddr(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pendingResponse{Found: found, SessionToken: tok})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			s.log.Warn("health ping failed", zap.Error(err))
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

// clientAddr returns the first X-Forwarded-For hop when trusted, else the socket peer.
func (s *Server) clientAddr(r *http.Request) string {
	if s.trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}
	return r.RemoteAddr
}

func (s *Server) countClaim(err error) {
	if s.metrics == nil {
		return
	}
	outcome := "claimed"
	if err != nil {
		_, outcome = statusFor(err)
	}
	s.metrics.ClaimsTotal.WithLabelValues(outcome).Inc()
}

// statusFor maps sentinel errors to an HTTP status and wire error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, errs.ErrExpired):
		return http.StatusGone, "expired"
	case errors.Is(err, errs.ErrAlreadyClaimed):
		return http.StatusConflict, "already_claimed"
	case errors.Is(err, errs.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, wire := statusFor(err)
	if code == http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("route", routeName(r)),
			zap.String("request_id", r.Header.Get(HeaderRequestID)),
			zap.Error(err),
		)
	}
	writeJSON(w, code, errorBody{Error: wire})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
