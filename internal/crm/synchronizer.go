// Package crm mirrors persisted leads into the CRM and records the outcome on
// each lead so failed syncs can be reconciled later.
package crm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/contact-intake/internal/clock/system"
	"github.com/JakeFAU/contact-intake/internal/hash/sha256"
	"github.com/JakeFAU/contact-intake/internal/intake"
	"github.com/JakeFAU/contact-intake/internal/metrics"
)

// Client is the subset of a CRM contacts API the synchronizer needs.
type Client interface {
	SearchContactByEmail(ctx context.Context, email string) (string, bool, error)
	CreateContact(ctx context.Context, props map[string]string) (string, error)
	UpdateContact(ctx context.Context, id string, props map[string]string) (string, error)
}

// StatusWriter records sync outcomes on leads.
type StatusWriter interface {
	UpdateSync(ctx context.Context, leadID string, update intake.SyncUpdate) error
}

// Properties maps a lead onto CRM contact properties. The name is split on
// whitespace into first name and the remainder; empty values are omitted.
func Properties(lead intake.Lead) map[string]string {
	props := map[string]string{"email": lead.Email}
	parts := strings.Fields(lead.Name)
	if len(parts) > 0 {
		props["firstname"] = parts[0]
	}
	if len(parts) > 1 {
		props["lastname"] = strings.Join(parts[1:], " ")
	}
	if lead.Phone != "" {
		props["phone"] = lead.Phone
	}
	return props
}

// Option customizes a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Synchronizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source for last_sync_attempt.
func WithClock(clock intake.Clock) Option {
	return func(s *Synchronizer) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMetrics records outcomes on rec.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(s *Synchronizer) {
		s.metrics = rec
	}
}

// Synchronizer implements intake.Synchronizer.
type Synchronizer struct {
	client      Client
	leads       StatusWriter
	clock       intake.Clock
	logger      *zap.Logger
	emailHasher intake.Hasher
	metrics     *metrics.Recorder
}

// NewSynchronizer wires a CRM client to the lead status writer.
func NewSynchronizer(client Client, leads StatusWriter, opts ...Option) (*Synchronizer, error) {
	if client == nil {
		return nil, errors.New("crm: client is required")
	}
	if leads == nil {
		return nil, errors.New("crm: lead status writer is required")
	}
	s := &Synchronizer{
		client:      client,
		leads:       leads,
		clock:       system.New(),
		logger:      zap.NewNop(),
		emailHasher: sha256.NewEmailHasher(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Sync upserts the lead's contact and records synced or needs_sync. It never
// returns an error; failures are logged and reflected in the result.
func (s *Synchronizer) Sync(ctx context.Context, lead intake.Lead) (result intake.SyncResult) {
	attemptedAt := s.clock.Now()
	logger := s.logger.With(
		zap.String("lead_id", lead.ID),
		zap.String("email_hash", s.emailHasher.Hash(lead.Email)),
	)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("crm sync panicked", zap.Any("panic", r), zap.Stack("stack"))
			result = s.markNeedsSync(ctx, logger, lead.ID, attemptedAt, fmt.Errorf("crm sync panic: %v", r))
		}
		s.metrics.ObserveSync(string(result.Status))
	}()

	contactID, err := s.upsert(ctx, lead)
	if err != nil {
		logger.Warn("crm upsert failed", zap.Error(err))
		return s.markNeedsSync(ctx, logger, lead.ID, attemptedAt, err)
	}

	err = s.leads.UpdateSync(ctx, lead.ID, intake.SyncUpdate{
		Status:        intake.SyncStatusSynced,
		ExternalCRMID: contactID,
		AttemptedAt:   attemptedAt,
	})
	if err != nil {
		logger.Error("record synced status failed", zap.Error(err))
		return s.markNeedsSync(ctx, logger, lead.ID, attemptedAt, err)
	}

	logger.Info("lead synced to crm", zap.String("contact_id", contactID))
	return intake.SyncResult{LeadID: lead.ID, Status: intake.SyncStatusSynced, ExternalCRMID: contactID}
}

func (s *Synchronizer) upsert(ctx context.Context, lead intake.Lead) (string, error) {
	props := Properties(lead)
	existingID, found, err := s.client.SearchContactByEmail(ctx, lead.Email)
	if err != nil {
		return "", fmt.Errorf("search contact: %w", err)
	}
	if found {
		id, err := s.client.UpdateContact(ctx, existingID, props)
		if err != nil {
			return "", fmt.Errorf("update contact: %w", err)
		}
		return id, nil
	}
	id, err := s.client.CreateContact(ctx, props)
	if err != nil {
		return "", fmt.Errorf("create contact: %w", err)
	}
	return id, nil
}

// markNeedsSync is the fallback write. Its own failure is logged and the lead
// may stay pending until the next reconciliation pass.
func (s *Synchronizer) markNeedsSync(
	ctx context.Context,
	logger *zap.Logger,
	leadID string,
	attemptedAt time.Time,
	cause error,
) intake.SyncResult {
	err := s.leads.UpdateSync(ctx, leadID, intake.SyncUpdate{
		Status:      intake.SyncStatusNeedsSync,
		AttemptedAt: attemptedAt,
	})
	if err != nil {
		logger.Error("record needs_sync status failed", zap.Error(err))
	}
	return intake.SyncResult{LeadID: leadID, Status: intake.SyncStatusNeedsSync, Err: cause}
}
