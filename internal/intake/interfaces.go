package intake

import (
	"context"
	"time"
)

// Validator rejects bots and malformed input and returns sanitized fields.
// It returns ErrBotDetected or a *ValidationError on rejection.
type Validator interface {
	Validate(raw Submission) (SanitizedSubmission, error)
}

// Sanitizer escapes and normalizes user-provided text.
type Sanitizer interface {
	EscapeText(s string) string
	SanitizeName(s string) string
	SanitizeEmail(s string) string
}

// Limiter decides whether a submission may proceed. Errors mean the decision
// could not be made and must be treated as a denial.
type Limiter interface {
	Check(ctx context.Context, email, clientAddress string) (Decision, error)
}

// LeadStore persists leads and their sync status.
type LeadStore interface {
	Insert(ctx context.Context, lead NewLead) (Lead, error)
	UpdateSync(ctx context.Context, leadID string, update SyncUpdate) error
	ListBySyncStatus(ctx context.Context, status SyncStatus, limit int) ([]Lead, error)
	Ping(ctx context.Context) error
}

// Synchronizer mirrors a persisted lead into the CRM and records the outcome
// on the lead. It never fails the caller.
type Synchronizer interface {
	Sync(ctx context.Context, lead Lead) SyncResult
}

// Notifier sends best-effort emails about an accepted submission.
type Notifier interface {
	Notify(ctx context.Context, submission SanitizedSubmission) NotifyResult
}

// Publisher pushes lead events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes salted digests of personal identifiers.
type Hasher interface {
	Hash(value string) string
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces lead IDs.
type IDGenerator interface {
	NewID() (string, error)
}
