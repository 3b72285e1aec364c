// Package notify sends best-effort emails about accepted submissions through
// SendGrid, Postmark or Resend.
package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/contact-intake/internal/hash/sha256"
	"github.com/JakeFAU/contact-intake/internal/intake"
	"github.com/JakeFAU/contact-intake/internal/metrics"
)

const maxMessageRunes = 2000

// Message is one outgoing email. HTML holds pre-escaped markup.
type Message struct {
	From    string
	To      string
	ReplyTo string
	Subject string
	HTML    string
}

// Sender delivers a Message through a provider API.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// Config describes the addresses used by the dispatcher.
type Config struct {
	FromAddress  string
	OwnerAddress string
	SiteName     string
	SendThankYou bool
}

// Dispatcher implements intake.Notifier.
type Dispatcher struct {
	sender      Sender
	cfg         Config
	logger      *zap.Logger
	emailHasher intake.Hasher
	metrics     *metrics.Recorder
}

// NewDispatcher builds a Dispatcher. A nil sender disables notifications.
func NewDispatcher(sender Sender, cfg Config, logger *zap.Logger, rec *metrics.Recorder) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SiteName == "" {
		cfg.SiteName = "our website"
	}
	return &Dispatcher{
		sender:      sender,
		cfg:         cfg,
		logger:      logger,
		emailHasher: sha256.NewEmailHasher(),
		metrics:     rec,
	}
}

// Notify emails the site owner and, when enabled, thanks the submitter.
// Failures are logged and reported in the result only.
func (d *Dispatcher) Notify(ctx context.Context, sub intake.SanitizedSubmission) (result intake.NotifyResult) {
	if d.sender == nil {
		return intake.NotifyResult{}
	}
	logger := d.logger.With(
		zap.String("provider", d.sender.Name()),
		zap.String("email_hash", d.emailHasher.Hash(sub.Email)),
	)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("email sender panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	if err := d.sender.Send(ctx, d.ownerMessage(sub)); err != nil {
		logger.Warn("owner notification failed", zap.Error(err))
	} else {
		result.OwnerNotified = true
	}
	d.metrics.ObserveNotification("owner", result.OwnerNotified)

	if d.cfg.SendThankYou {
		sent := true
		if err := d.sender.Send(ctx, d.thankYouMessage(sub)); err != nil {
			logger.Warn("thank-you email failed", zap.Error(err))
			sent = false
		}
		result.CustomerNotified = &sent
		d.metrics.ObserveNotification("customer", sent)
	}
	return result
}

func (d *Dispatcher) ownerMessage(sub intake.SanitizedSubmission) Message {
	var b strings.Builder
	b.WriteString("<h2>New contact form submission</h2>")
	fmt.Fprintf(&b, "<p><strong>Name:</strong> %s</p>", sub.Name)
	fmt.Fprintf(&b, "<p><strong>Email:</strong> %s</p>", html.EscapeString(sub.Email))
	if sub.Phone != "" {
		fmt.Fprintf(&b, "<p><strong>Phone:</strong> %s</p>", sub.Phone)
	}
	fmt.Fprintf(&b, "<p><strong>Message:</strong></p><p>%s</p>", paragraphs(truncate(sub.Message)))
	return Message{
		From:    d.cfg.FromAddress,
		To:      d.cfg.OwnerAddress,
		ReplyTo: sub.Email,
		Subject: "New contact form submission from " + html.UnescapeString(sub.Name),
		HTML:    b.String(),
	}
}

func (d *Dispatcher) thankYouMessage(sub intake.SanitizedSubmission) Message {
	site := html.EscapeString(d.cfg.SiteName)
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Hi %s,</p>", sub.Name)
	fmt.Fprintf(&b, "<p>Thanks for reaching out to %s. We received your message and will get back to you soon.</p>", site)
	fmt.Fprintf(&b, "<blockquote>%s</blockquote>", paragraphs(truncate(sub.Message)))
	return Message{
		From:    d.cfg.FromAddress,
		To:      sub.Email,
		ReplyTo: d.cfg.OwnerAddress,
		Subject: "Thanks for contacting " + d.cfg.SiteName,
		HTML:    b.String(),
	}
}

// truncate caps escaped text at maxMessageRunes runes, marking the cut with
// "...". A cut never splits a character reference.
func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxMessageRunes {
		return s
	}
	cut := string([]rune(s)[:maxMessageRunes])
	if amp := strings.LastIndexByte(cut, '&'); amp >= 0 && !strings.Contains(cut[amp:], ";") {
		cut = cut[:amp]
	}
	return cut + "..."
}

func paragraphs(s string) string {
	return strings.ReplaceAll(s, "\n", "<br>")
}
