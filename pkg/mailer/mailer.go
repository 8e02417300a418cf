// Package mailer delivers account lifecycle mail.
//
// # Overview
//
// The user service sends three kinds of mail: pending (invite code after
// signup), confirm (activation acknowledgement) and forgot (reset shake).
// Delivery is pluggable:
//
//   - LogMailer writes each message as a structured log line
//   - WebhookMailer posts each message to an HTTP endpoint that owns
//     templating and SMTP
//
// A nil Mailer means mail is disabled; callers check for nil before sending.
package mailer

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/httpusers/pkg/webhooks"
)

// Kinds
const (
	KindPending = "pending"
	KindConfirm = "confirm"
	KindForgot  = "forgot"
)

// Message is the data available to every mail template
type Message struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	InviteCode string `json:"inviteCode,omitempty"`
	Shake      string `json:"shake,omitempty"`
}

// Mailer sends lifecycle mail
type Mailer interface {
	SendPending(ctx context.Context, msg Message) error
	SendConfirm(ctx context.Context, msg Message) error
	SendForgot(ctx context.Context, msg Message) error
}

// LogMailer logs instead of sending. Invite codes and shakes are omitted
// unless IncludeTokens is set.
type LogMailer struct {
	Logger        *logrus.Logger
	IncludeTokens bool
}

// NewLogMailer returns a LogMailer
func NewLogMailer(logger *logrus.Logger, includeTokens bool) *LogMailer {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogMailer{Logger: logger, IncludeTokens: includeTokens}
}

func (m *LogMailer) SendPending(ctx context.Context, msg Message) error {
	return m.log(ctx, KindPending, msg)
}

func (m *LogMailer) SendConfirm(ctx context.Context, msg Message) error {
	return m.log(ctx, KindConfirm, msg)
}

func (m *LogMailer) SendForgot(ctx context.Context, msg Message) error {
	return m.log(ctx, KindForgot, msg)
}

func (m *LogMailer) log(ctx context.Context, kind string, msg Message) error {
	if msg.Email == "" {
		return fmt.Errorf("no email address for %s", msg.Username)
	}
	fields := logrus.Fields{
		"kind":     kind,
		"username": msg.Username,
		"to":       msg.Email,
	}
	if m.IncludeTokens {
		if msg.InviteCode != "" {
			fields["inviteCode"] = msg.InviteCode
		}
		if msg.Shake != "" {
			fields["shake"] = msg.Shake
		}
	}
	m.Logger.WithContext(ctx).WithFields(fields).Info("mail sent")
	return nil
}

// Poster is the part of webhooks.Client the WebhookMailer needs
type Poster interface {
	Post(ctx context.Context, event string, payload any) error
}

var _ Poster = (*webhooks.Client)(nil)

// WebhookMailer posts each message as JSON under the event "mail.<kind>"
type WebhookMailer struct {
	poster Poster
}

// NewWebhookMailer returns a mailer posting through p
func NewWebhookMailer(p Poster) *WebhookMailer {
	return &WebhookMailer{poster: p}
}

func (m *WebhookMailer) SendPending(ctx context.Context, msg Message) error {
	return m.send(ctx, KindPending, msg)
}

func (m *WebhookMailer) SendConfirm(ctx context.Context, msg Message) error {
	return m.send(ctx, KindConfirm, msg)
}

func (m *WebhookMailer) SendForgot(ctx context.Context, msg Message) error {
	return m.send(ctx, KindForgot, msg)
}

func (m *WebhookMailer) send(ctx context.Context, kind string, msg Message) error {
	if msg.Email == "" {
		return fmt.Errorf("no email address for %s", msg.Username)
	}
	if err := m.poster.Post(ctx, "mail."+kind, msg); err != nil {
		return fmt.Errorf("failed to send %s mail: %w", kind, err)
	}
	return nil
}
