package intake

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/contact-intake/internal/clock/system"
	"github.com/JakeFAU/contact-intake/internal/hash/sha256"
	"github.com/JakeFAU/contact-intake/internal/metrics"
)

const tracerName = "github.com/JakeFAU/contact-intake/internal/intake"

// Deps bundles the collaborators of a Service. Validator, Limiter, Leads and
// Synchronizer are required; the rest are optional.
type Deps struct {
	Validator    Validator
	Limiter      Limiter
	Leads        LeadStore
	Synchronizer Synchronizer
	Notifier     Notifier
	Publisher    Publisher
	EventTopic   string
	Clock        Clock
	Logger       *zap.Logger
	Metrics      *metrics.Recorder
}

// Service runs the admission pipeline for one submission at a time; it is
// safe for concurrent use when its collaborators are.
type Service struct {
	validator     Validator
	limiter       Limiter
	leads         LeadStore
	sync          Synchronizer
	notifier      Notifier
	publisher     Publisher
	eventTopic    string
	clock         Clock
	logger        *zap.Logger
	metrics       *metrics.Recorder
	emailHasher   Hasher
	addressHasher Hasher
	tracer        trace.Tracer
}

// NewService validates deps and builds a Service.
func NewService(deps Deps) (*Service, error) {
	switch {
	case deps.Validator == nil:
		return nil, errors.New("intake: validator is required")
	case deps.Limiter == nil:
		return nil, errors.New("intake: limiter is required")
	case deps.Leads == nil:
		return nil, errors.New("intake: lead store is required")
	case deps.Synchronizer == nil:
		return nil, errors.New("intake: synchronizer is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = system.New()
	}
	topic := deps.EventTopic
	if topic == "" {
		topic = "lead-events"
	}
	return &Service{
		validator:     deps.Validator,
		limiter:       deps.Limiter,
		leads:         deps.Leads,
		sync:          deps.Synchronizer,
		notifier:      deps.Notifier,
		publisher:     deps.Publisher,
		eventTopic:    topic,
		clock:         clock,
		logger:        logger,
		metrics:       deps.Metrics,
		emailHasher:   sha256.NewEmailHasher(),
		addressHasher: sha256.NewAddressHasher(),
		tracer:        otel.Tracer(tracerName),
	}, nil
}

// Submit admits, persists and syncs one submission. It never returns an
// error: every failure maps onto one of the fixed responses, and panics from
// any stage are converted into the internal-failure response.
func (s *Service) Submit(ctx context.Context, raw Submission) (resp Response) {
	ctx, span := s.tracer.Start(ctx, "intake.Submit")
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("submission pipeline panicked", zap.Any("panic", r), zap.Stack("stack"))
			span.SetStatus(codes.Error, "panic")
			resp = InternalResponse()
		}
		span.SetAttributes(attribute.String("intake.outcome", string(resp.Outcome)))
		span.End()
		s.metrics.ObserveSubmission(string(resp.Outcome))
	}()

	clean, err := s.validator.Validate(raw)
	if err != nil {
		var verr *ValidationError
		switch {
		case errors.Is(err, ErrBotDetected):
			s.logger.Info("submission rejected", zap.String("reason", string(OutcomeBotDetected)))
			return BotResponse()
		case errors.As(err, &verr):
			s.logger.Info("submission rejected",
				zap.String("reason", string(OutcomeInvalidInput)),
				zap.Strings("fields", verr.FieldNames()),
			)
			return InvalidResponse(verr.Fields)
		default:
			s.logger.Error("validate submission", zap.Error(err))
			return InternalResponse()
		}
	}

	logger := s.logger.With(
		zap.String("email_hash", s.emailHasher.Hash(clean.Email)),
		zap.String("address_hash", s.addressHasher.Hash(raw.ClientAddress)),
	)

	decision, err := s.limit(ctx, clean.Email, raw.ClientAddress)
	if err != nil {
		logger.Error("rate limiter unavailable; rejecting submission", zap.Error(err))
		return InternalResponse()
	}
	if !decision.Allowed {
		logger.Warn("rate limit exceeded", zap.String("denied_by", string(decision.DeniedBy)))
		return RateLimitedResponse()
	}

	lead, err := s.persist(ctx, clean)
	if err != nil {
		logger.Error("persist lead", zap.Error(err))
		return InternalResponse()
	}
	logger = logger.With(zap.String("lead_id", lead.ID))

	// The lead is durable from here on; the remaining effects must finish
	// even if the caller disconnects.
	ctx = context.WithoutCancel(ctx)

	result := s.syncLead(ctx, lead)
	logger.Info("lead accepted", zap.String("sync_status", string(result.Status)))

	s.notify(ctx, logger, clean)
	s.publishEvent(ctx, logger, result)

	return AcceptedResponse()
}

func (s *Service) limit(ctx context.Context, email, address string) (Decision, error) {
	ctx, span := s.tracer.Start(ctx, "intake.RateLimit")
	defer span.End()
	decision, err := s.limiter.Check(ctx, email, address)
	if err != nil {
		span.SetStatus(codes.Error, "limiter unavailable")
		return Decision{}, err
	}
	span.SetAttributes(attribute.Bool("intake.allowed", decision.Allowed))
	return decision, nil
}

func (s *Service) persist(ctx context.Context, clean SanitizedSubmission) (Lead, error) {
	ctx, span := s.tracer.Start(ctx, "intake.Persist")
	defer span.End()
	lead, err := s.leads.Insert(ctx, NewLeadFrom(clean))
	if err != nil {
		span.SetStatus(codes.Error, "insert failed")
		return Lead{}, err
	}
	return lead, nil
}

func (s *Service) syncLead(ctx context.Context, lead Lead) SyncResult {
	ctx, span := s.tracer.Start(ctx, "intake.Sync")
	defer span.End()
	result := s.sync.Sync(ctx, lead)
	span.SetAttributes(attribute.String("intake.sync_status", string(result.Status)))
	return result
}

// notify is best-effort: a panicking notifier must not turn an accepted
// submission into a failure.
func (s *Service) notify(ctx context.Context, logger *zap.Logger, clean SanitizedSubmission) {
	if s.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("notifier panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	n := s.notifier.Notify(ctx, clean)
	logger.Debug("notifications dispatched", zap.Bool("owner_notified", n.OwnerNotified))
}

func (s *Service) publishEvent(ctx context.Context, logger *zap.Logger, result SyncResult) {
	if s.publisher == nil {
		return
	}
	event := LeadEvent{
		Type:       LeadEventSyncRecorded,
		LeadID:     result.LeadID,
		SyncStatus: result.Status,
		OccurredAt: s.clock.Now(),
	}
	if _, err := s.publisher.Publish(ctx, s.eventTopic, event); err != nil {
		logger.Warn("publish lead event failed", zap.Error(err))
		s.metrics.ObserveEvent(false)
		return
	}
	s.metrics.ObserveEvent(true)
}
