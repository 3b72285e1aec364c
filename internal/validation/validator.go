// Package validation applies the contact-form schema with
// go-playground/validator and converts failures into user-safe field errors.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/JakeFAU/contact-intake/internal/intake"
)

var (
	phonePattern = regexp.MustCompile(`^[+]?[\d\s().-]+$`)

	disposableDomains = []string{
		"mailinator.com",
		"guerrillamail.com",
		"tempmail.com",
		"10minutemail.com",
		"yopmail.com",
	}
)

const minPhoneDigits = 7

// form mirrors intake.Submission with the schema attached. Validation runs on
// trimmed values; escaping happens only after the schema passes.
type form struct {
	Name    string `validate:"required,min=2,max=100"`
	Email   string `validate:"required,max=254,email,business_email"`
	Phone   string `validate:"omitempty,max=50,phone"`
	Message string `validate:"required,max=5000"`
}

// Validator implements intake.Validator.
type Validator struct {
	validate  *validator.Validate
	sanitizer intake.Sanitizer
}

// New builds a Validator that sanitizes accepted input with sanitizer.
func New(sanitizer intake.Sanitizer) (*Validator, error) {
	if sanitizer == nil {
		return nil, errors.New("validation: sanitizer is required")
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("phone", validPhone); err != nil {
		return nil, fmt.Errorf("register phone validation: %w", err)
	}
	if err := v.RegisterValidation("business_email", notDisposable); err != nil {
		return nil, fmt.Errorf("register business_email validation: %w", err)
	}
	return &Validator{validate: v, sanitizer: sanitizer}, nil
}

// Validate checks the honeypot first and the schema second. Nothing else
// happens for rejected input.
func (v *Validator) Validate(raw intake.Submission) (intake.SanitizedSubmission, error) {
	if raw.Website != "" {
		return intake.SanitizedSubmission{}, intake.ErrBotDetected
	}

	f := form{
		Name:    strings.TrimSpace(raw.Name),
		Email:   strings.TrimSpace(raw.Email),
		Phone:   strings.TrimSpace(raw.Phone),
		Message: strings.TrimSpace(raw.Message),
	}
	if err := v.validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return intake.SanitizedSubmission{}, fmt.Errorf("validate submission: %w", err)
		}
		fields := make([]intake.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, intake.FieldError{
				Field:   fieldName(fe.StructField()),
				Message: fieldMessage(fe.StructField(), fe.Tag()),
			})
		}
		return intake.SanitizedSubmission{}, &intake.ValidationError{Fields: fields}
	}

	return intake.SanitizedSubmission{
		Name:    v.sanitizer.SanitizeName(f.Name),
		Email:   v.sanitizer.SanitizeEmail(f.Email),
		Phone:   v.sanitizer.EscapeText(f.Phone),
		Message: v.sanitizer.EscapeText(f.Message),
	}, nil
}

func validPhone(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if !phonePattern.MatchString(value) {
		return false
	}
	digits := 0
	for _, r := range value {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= minPhoneDigits
}

func notDisposable(fl validator.FieldLevel) bool {
	value := strings.ToLower(fl.Field().String())
	at := strings.LastIndexByte(value, '@')
	if at < 0 {
		return true
	}
	domain := value[at+1:]
	for _, blocked := range disposableDomains {
		if domain == blocked || strings.HasSuffix(domain, "."+blocked) {
			return false
		}
	}
	return true
}
