// Package memory provides in-process persistence for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/contact-intake/internal/clock/system"
	"github.com/JakeFAU/contact-intake/internal/id/uuid"
	"github.com/JakeFAU/contact-intake/internal/intake"
)

// LeadStore provides an in-memory implementation of intake.LeadStore.
type LeadStore struct {
	mu    sync.RWMutex
	leads map[string]intake.Lead
	ids   intake.IDGenerator
	clock intake.Clock
}

// NewLeadStore constructs a LeadStore. Nil collaborators fall back to UUIDv7
// ids and the system clock.
func NewLeadStore(ids intake.IDGenerator, clock intake.Clock) *LeadStore {
	if ids == nil {
		ids = uuid.New()
	}
	if clock == nil {
		clock = system.New()
	}
	return &LeadStore{
		leads: make(map[string]intake.Lead),
		ids:   ids,
		clock: clock,
	}
}

// Insert stores a new lead.
func (s *LeadStore) Insert(_ context.Context, lead intake.NewLead) (intake.Lead, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return intake.Lead{}, fmt.Errorf("insert lead: %w", err)
	}
	status := lead.SyncStatus
	if status == "" {
		status = intake.SyncStatusPending
	}
	out := intake.Lead{
		ID:              id,
		Name:            lead.Name,
		Email:           lead.Email,
		Phone:           lead.Phone,
		Message:         lead.Message,
		IsSuspicious:    lead.IsSuspicious,
		SuspicionReason: lead.SuspicionReason,
		SyncStatus:      status,
		CreatedAt:       s.clock.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.leads[id]; exists {
		return intake.Lead{}, fmt.Errorf("insert lead: duplicate id %s", id)
	}
	s.leads[id] = out
	return out, nil
}

// UpdateSync records a sync attempt.
func (s *LeadStore) UpdateSync(_ context.Context, leadID string, update intake.SyncUpdate) error {
	if !update.Status.Valid() {
		return fmt.Errorf("invalid sync status %q", update.Status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[leadID]
	if !ok {
		return intake.ErrLeadNotFound
	}
	lead.SyncStatus = update.Status
	if update.ExternalCRMID != "" {
		lead.ExternalCRMID = update.ExternalCRMID
	}
	attempted := update.AttemptedAt
	lead.LastSyncAttempt = &attempted
	s.leads[leadID] = lead
	return nil
}

// ListBySyncStatus returns up to limit leads in status, oldest first.
func (s *LeadStore) ListBySyncStatus(_ context.Context, status intake.SyncStatus, limit int) ([]intake.Lead, error) {
	s.mu.RLock()
	out := make([]intake.Lead, 0)
	for _, lead := range s.leads {
		if lead.SyncStatus == status {
			out = append(out, lead)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Get returns a lead by id.
func (s *LeadStore) Get(_ context.Context, leadID string) (intake.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lead, ok := s.leads[leadID]
	if !ok {
		return intake.Lead{}, intake.ErrLeadNotFound
	}
	return lead, nil
}

// Len reports how many leads are stored.
func (s *LeadStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.leads)
}

// Ping always succeeds.
func (*LeadStore) Ping(context.Context) error {
	return nil
}
