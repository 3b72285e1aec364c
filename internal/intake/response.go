package intake

// Outcome classifies how a submission terminated.
type Outcome string

// Submission outcomes. They double as metric labels.
const (
	OutcomeAccepted        Outcome = "accepted"
	OutcomeBotDetected     Outcome = "bot_detected"
	OutcomeInvalidInput    Outcome = "invalid_input"
	OutcomeRateLimited     Outcome = "rate_limited"
	OutcomeInternalFailure Outcome = "internal_failure"
)

// User-facing messages. Nothing else is ever shown to the submitter.
const (
	MessageAccepted    = "Thank you for your message! We'll be in touch soon."
	MessageRejected    = "Unable to submit your message. Please check your details and try again."
	MessageRateLimited = "Too many submissions. Please try again later."
	MessageInternal    = "Something went wrong. Please try again or email us directly."
)

// Response is the fixed result contract returned to the submitter.
type Response struct {
	Success     bool         `json:"success"`
	Message     string       `json:"message"`
	FieldErrors []FieldError `json:"fieldErrors,omitempty"`
	Outcome     Outcome      `json:"-"`
}

// AcceptedResponse is returned once a lead is durably stored.
func AcceptedResponse() Response {
	return Response{Success: true, Message: MessageAccepted, Outcome: OutcomeAccepted}
}

// BotResponse looks like any other rejection and exposes no field detail.
func BotResponse() Response {
	return Response{Message: MessageRejected, Outcome: OutcomeBotDetected}
}

// InvalidResponse carries field-level messages.
func InvalidResponse(fields []FieldError) Response {
	return Response{Message: MessageRejected, FieldErrors: fields, Outcome: OutcomeInvalidInput}
}

// RateLimitedResponse is identical for email and address denials.
func RateLimitedResponse() Response {
	return Response{Message: MessageRateLimited, Outcome: OutcomeRateLimited}
}

// InternalResponse hides every internal failure behind one message.
func InternalResponse() Response {
	return Response{Message: MessageInternal, Outcome: OutcomeInternalFailure}
}
