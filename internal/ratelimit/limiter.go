// Package ratelimit admits or denies form submissions per identifier using a
// Redis sliding window when available and an in-process fixed window otherwise.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/contact-intake/internal/clock/system"
	"github.com/JakeFAU/contact-intake/internal/hash/sha256"
	"github.com/JakeFAU/contact-intake/internal/intake"
	"github.com/JakeFAU/contact-intake/internal/metrics"
)

var (
	// ErrDistributedRequired is returned in production when no Redis URL is configured.
	ErrDistributedRequired = errors.New("ratelimit: distributed backend required in production")
	// ErrUnavailable wraps every failure that prevented a decision.
	ErrUnavailable = errors.New("ratelimit: backend unavailable")
)

// Backend counts admissions per identifier.
type Backend interface {
	// Allow records an admission for identifier and reports whether it fit
	// within the limit. A denied call records nothing.
	Allow(ctx context.Context, identifier string) (bool, error)
	Name() string
}

// Config holds rate limiter configuration.
type Config struct {
	Production bool
	RedisURL   string
	Limit      int
	Window     time.Duration
	Prefix     string
	Timeout    time.Duration
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithLogger sets the logger used for selection and denial diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock overrides the time source for both backends.
func WithClock(clock intake.Clock) Option {
	return func(l *Limiter) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithMetrics records verdicts on rec.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(l *Limiter) {
		l.metrics = rec
	}
}

// WithDistributedFactory replaces the Redis constructor.
func WithDistributedFactory(factory func(ctx context.Context) (Backend, error)) Option {
	return func(l *Limiter) {
		if factory != nil {
			l.newDistributed = factory
		}
	}
}

// Limiter evaluates both identifiers of a submission against one backend.
// The backend is chosen on first use and then kept for the process lifetime.
type Limiter struct {
	cfg            Config
	logger         *zap.Logger
	clock          intake.Clock
	metrics        *metrics.Recorder
	emailHasher    intake.Hasher
	addressHasher  intake.Hasher
	newDistributed func(ctx context.Context) (Backend, error)

	mu      sync.Mutex
	backend Backend
}

// New creates a Limiter. No backend is contacted until Init or the first check.
func New(cfg Config, opts ...Option) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = 3
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "contact_form"
	}
	l := &Limiter{
		cfg:           cfg,
		logger:        zap.NewNop(),
		clock:         system.New(),
		emailHasher:   sha256.NewEmailHasher(),
		addressHasher: sha256.NewAddressHasher(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.newDistributed == nil {
		l.newDistributed = func(ctx context.Context) (Backend, error) {
			backend, err := NewRedis(ctx, RedisConfig{
				URL:     l.cfg.RedisURL,
				Prefix:  l.cfg.Prefix,
				Limit:   l.cfg.Limit,
				Window:  l.cfg.Window,
				Timeout: l.cfg.Timeout,
			}, l.clock)
			if err != nil {
				return nil, err
			}
			return backend, nil
		}
	}
	return l
}

// Init selects the backend eagerly so production misconfiguration fails at startup.
func (l *Limiter) Init(ctx context.Context) error {
	_, err := l.resolve(ctx)
	return err
}

// BackendName returns the selected backend, or "" before selection.
func (l *Limiter) BackendName() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.backend == nil {
		return ""
	}
	return l.backend.Name()
}

func (l *Limiter) resolve(ctx context.Context) (Backend, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.backend != nil {
		return l.backend, nil
	}

	if l.cfg.RedisURL == "" {
		if l.cfg.Production {
			return nil, ErrDistributedRequired
		}
		l.logger.Warn("no redis configured; using in-memory rate limiter, limits are per instance")
		l.backend = NewMemory(l.cfg.Limit, l.cfg.Window, l.clock)
		return l.backend, nil
	}

	backend, err := l.newDistributed(ctx)
	if err != nil {
		if l.cfg.Production {
			// Nothing is memoized so the next call retries construction.
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		l.logger.Warn("redis rate limiter unavailable; falling back to in-memory", zap.Error(err))
		l.backend = NewMemory(l.cfg.Limit, l.cfg.Window, l.clock)
		return l.backend, nil
	}
	l.logger.Info("redis rate limiter ready")
	l.backend = backend
	return l.backend, nil
}

// Check evaluates the email identifier first and the address identifier
// second. An email denial leaves the address identifier untouched.
func (l *Limiter) Check(ctx context.Context, email, clientAddress string) (intake.Decision, error) {
	backend, err := l.resolve(ctx)
	if err != nil {
		return intake.Decision{}, err
	}

	checks := []struct {
		scope      intake.LimitScope
		identifier string
	}{
		{scope: intake.LimitScopeEmail, identifier: EmailIdentifier(l.emailHasher, email)},
		{scope: intake.LimitScopeAddress, identifier: AddressIdentifier(l.addressHasher, clientAddress)},
	}
	for _, c := range checks {
		allowed, err := backend.Allow(ctx, c.identifier)
		if err != nil {
			l.metrics.ObserveRateLimitError(backend.Name())
			return intake.Decision{}, fmt.Errorf("%w: %s check: %w", ErrUnavailable, c.scope, err)
		}
		l.metrics.ObserveRateLimit(backend.Name(), allowed)
		if !allowed {
			return intake.Decision{Allowed: false, DeniedBy: c.scope}, nil
		}
	}
	return intake.Decision{Allowed: true}, nil
}

// Admit reports whether both identifiers are within their limits. Any backend
// failure is returned as an error and must be treated as a denial.
func (l *Limiter) Admit(ctx context.Context, email, clientAddress string) (bool, error) {
	decision, err := l.Check(ctx, email, clientAddress)
	if err != nil {
		return false, err
	}
	return decision.Allowed, nil
}

// Close releases the selected backend's connections.
func (l *Limiter) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if closer, ok := l.backend.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// EmailIdentifier builds the limiter key for an email address.
func EmailIdentifier(h intake.Hasher, email string) string {
	return "email:" + h.Hash(email)
}

// AddressIdentifier builds the limiter key for a client network address.
func AddressIdentifier(h intake.Hasher, address string) string {
	return "ip:" + h.Hash(address)
}
