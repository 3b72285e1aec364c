package intake

import (
	"errors"
	"strings"
)

// ErrBotDetected reports a filled honeypot. It intentionally carries no detail.
var ErrBotDetected = errors.New("intake: bot detected")

// ErrLeadNotFound is returned when a sync update targets an unknown lead.
var ErrLeadNotFound = errors.New("intake: lead not found")

// FieldError is a user-safe message about one input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field that failed schema validation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	return "intake: invalid fields: " + strings.Join(e.FieldNames(), ", ")
}

// FieldNames returns the names of the invalid fields in order.
func (e *ValidationError) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return names
}
