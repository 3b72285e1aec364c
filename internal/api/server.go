package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/contact-intake/internal/intake"
	"github.com/JakeFAU/contact-intake/internal/metrics"
)

const (
	defaultMaxBodyBytes = 1 << 20
	readinessTimeout    = 3 * time.Second
)

// Submitter runs one contact form submission through the intake pipeline.
type Submitter interface {
	Submit(ctx context.Context, sub intake.Submission) intake.Response
}

// ReadinessCheck reports whether a downstream dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Config controls request handling limits. Handlers run without a deadline:
// once a lead is stored the response must not depend on how long the CRM or
// email providers take.
type Config struct {
	MaxBodyBytes      int64
	TrustProxyHeaders bool
}

// Option customizes a Server.
type Option func(*Server)

// WithMetrics records HTTP metrics on rec and exposes gatherer on /metrics.
func WithMetrics(rec *metrics.Recorder, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = rec
		s.gatherer = gatherer
	}
}

// WithReadinessCheck adds a named dependency check to /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(s *Server) {
		if check != nil {
			s.checks[name] = check
		}
	}
}

// Server wires HTTP handlers to the intake service.
type Server struct {
	router    chi.Router
	submitter Submitter
	cfg       Config
	logger    *zap.Logger
	metrics   *metrics.Recorder
	gatherer  prometheus.Gatherer
	checks    map[string]ReadinessCheck
}

// NewServer constructs a Server with middleware and routes.
func NewServer(submitter Submitter, cfg Config, logger *zap.Logger, opts ...Option) (*Server, error) {
	if submitter == nil {
		return nil, errors.New("api: submitter is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	s := &Server{
		submitter: submitter,
		cfg:       cfg,
		logger:    logger,
		checks:    make(map[string]ReadinessCheck),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(securityHeadersMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	r.Use(bodyLimitMiddleware(cfg.MaxBodyBytes))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if s.gatherer != nil {
		r.Handle("/metrics", metrics.Handler(s.gatherer))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/contact", s.submitContact)
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	var failed []string
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) submitContact(w http.ResponseWriter, r *http.Request) {
	sub, err := s.decodeSubmission(r)
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		s.logger.Debug("contact payload rejected", zap.Int("status", status), zap.Error(err))
		writeJSON(w, status, intake.InvalidResponse(nil))
		return
	}
	sub.ClientAddress = ClientAddress(r, s.cfg.TrustProxyHeaders)

	resp := s.submitter.Submit(r.Context(), sub)
	writeJSON(w, statusFor(resp.Outcome), resp)
}

func (s *Server) decodeSubmission(r *http.Request) (intake.Submission, error) {
	mediaType := "application/json"
	if ct := r.Header.Get("Content-Type"); ct != "" {
		parsed, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return intake.Submission{}, fmt.Errorf("parse content type: %w", err)
		}
		mediaType = parsed
	}

	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		var err error
		if mediaType == "multipart/form-data" {
			err = r.ParseMultipartForm(s.cfg.MaxBodyBytes)
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			return intake.Submission{}, fmt.Errorf("parse form: %w", err)
		}
		return intake.Submission{
			Name:    r.PostFormValue("name"),
			Email:   r.PostFormValue("email"),
			Phone:   r.PostFormValue("phone"),
			Message: r.PostFormValue("message"),
			Website: r.PostFormValue("website"),
		}, nil
	case "application/json":
		var sub intake.Submission
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
			return intake.Submission{}, fmt.Errorf("decode JSON: %w", err)
		}
		return sub, nil
	default:
		return intake.Submission{}, fmt.Errorf("unsupported content type %q", mediaType)
	}
}

func statusFor(outcome intake.Outcome) int {
	switch outcome {
	case intake.OutcomeAccepted:
		return http.StatusOK
	case intake.OutcomeBotDetected, intake.OutcomeInvalidInput:
		return http.StatusBadRequest
	case intake.OutcomeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}
