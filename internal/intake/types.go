package intake

import "time"

// SyncStatus tracks whether a persisted lead has been mirrored to the CRM.
type SyncStatus string

// Sync status values persisted with each lead.
const (
	SyncStatusPending   SyncStatus = "pending"
	SyncStatusSynced    SyncStatus = "synced"
	SyncStatusNeedsSync SyncStatus = "needs_sync"
)

// Valid reports whether s is a known status.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncStatusPending, SyncStatusSynced, SyncStatusNeedsSync:
		return true
	}
	return false
}

// SuspicionReason explains why a lead was flagged. The empty value means none.
type SuspicionReason string

// SuspicionRateLimit marks leads admitted close to a rate limit.
const SuspicionRateLimit SuspicionReason = "rate_limit"

// Submission is the raw, untrusted input of one form post.
type Submission struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Message string `json:"message"`
	// Website is the honeypot field. Humans never see it.
	Website       string `json:"website,omitempty"`
	ClientAddress string `json:"-"`
}

// SanitizedSubmission holds validated fields that are safe to persist and render.
type SanitizedSubmission struct {
	Name    string
	Email   string
	Phone   string
	Message string
}

// NewLead is the insert payload for a freshly admitted submission.
type NewLead struct {
	Name            string
	Email           string
	Phone           string
	Message         string
	IsSuspicious    bool
	SuspicionReason SuspicionReason
	SyncStatus      SyncStatus
}

// NewLeadFrom builds the insert payload for an accepted submission. Every lead
// starts out pending and unflagged.
func NewLeadFrom(s SanitizedSubmission) NewLead {
	return NewLead{
		Name:       s.Name,
		Email:      s.Email,
		Phone:      s.Phone,
		Message:    s.Message,
		SyncStatus: SyncStatusPending,
	}
}

// Lead is a persisted submission.
type Lead struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Email           string          `json:"email"`
	Phone           string          `json:"phone,omitempty"`
	Message         string          `json:"message"`
	IsSuspicious    bool            `json:"is_suspicious"`
	SuspicionReason SuspicionReason `json:"suspicion_reason,omitempty"`
	SyncStatus      SyncStatus      `json:"sync_status"`
	ExternalCRMID   string          `json:"external_crm_id,omitempty"`
	LastSyncAttempt *time.Time      `json:"last_sync_attempt,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// SyncUpdate is the mutable subset of a lead written by the synchronizer.
// An empty ExternalCRMID leaves any stored id untouched.
type SyncUpdate struct {
	Status        SyncStatus
	ExternalCRMID string
	AttemptedAt   time.Time
}

// SyncResult reports the outcome of one CRM synchronization attempt.
type SyncResult struct {
	LeadID        string
	Status        SyncStatus
	ExternalCRMID string
	Err           error
}

// NotifyResult reports which notification emails went out.
// CustomerNotified is nil when no thank-you email was attempted.
type NotifyResult struct {
	OwnerNotified    bool
	CustomerNotified *bool
}

// LimitScope names the identifier family that caused a denial.
type LimitScope string

// Limit scopes, evaluated in this order.
const (
	LimitScopeNone    LimitScope = ""
	LimitScopeEmail   LimitScope = "email"
	LimitScopeAddress LimitScope = "address"
)

// Decision is the limiter verdict for one submission.
type Decision struct {
	Allowed  bool
	DeniedBy LimitScope
}

// LeadEvent is published after each sync attempt. It carries no personal data.
type LeadEvent struct {
	Type       string     `json:"type"`
	LeadID     string     `json:"lead_id"`
	SyncStatus SyncStatus `json:"sync_status"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// LeadEventSyncRecorded is the LeadEvent type emitted by the pipeline.
const LeadEventSyncRecorded = "lead.sync_recorded"
