// Package notify delivers in-app notifications and admin alerts.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"tremolo/internal/email"
	"tremolo/internal/moderation"
)

// NotificationCreator persists a notification row.
type NotificationCreator interface {
	Create(ctx context.Context, n *moderation.Notification) error
}

// Dispatcher writes in-app notifications. It implements moderation.Notifier.
type Dispatcher struct {
	store NotificationCreator
	now   func() time.Time
}

var _ moderation.Notifier = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher over the notification store.
func NewDispatcher(store NotificationCreator, now func() time.Time) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{store: store, now: now}
}

// Send records a notification for the user and returns its id.
func (d *Dispatcher) Send(ctx context.Context, userID, title, message string, data map[string]any) (string, error) {
	return d.send(ctx, userID, title, message, data, "")
}

// SendReversal records a notification threaded onto the original
// notification it supersedes.
func (d *Dispatcher) SendReversal(ctx context.Context, userID, title, message string, data map[string]any, relatedNotificationID string) (string, error) {
	return d.send(ctx, userID, title, message, data, relatedNotificationID)
}

func (d *Dispatcher) send(ctx context.Context, userID, title, message string, data map[string]any, relatedID string) (string, error) {
	n := &moderation.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Message:   message,
		Data:      data,
		RelatedID: relatedID,
		CreatedAt: d.now(),
	}
	if err := d.store.Create(ctx, n); err != nil {
		return "", fmt.Errorf("send notification: %w", err)
	}
	return n.ID, nil
}

// Alerter raises admin alerts through the log and, when configured, email.
// Delivery is fire-and-forget; failures are logged and never surfaced.
type Alerter struct {
	sender *email.Sender
}

var _ moderation.Alerter = (*Alerter)(nil)

// NewAlerter creates an Alerter. sender may be nil to disable email.
func NewAlerter(sender *email.Sender) *Alerter {
	return &Alerter{sender: sender}
}

// Alert logs the event and emails the admin address when severity is
// critical and SMTP is configured.
func (a *Alerter) Alert(ctx context.Context, eventType string, severity string, details map[string]any) {
	evt := log.Warn()
	if severity == "critical" {
		evt = log.Error()
	}
	evt.Str("event_type", eventType).
		Str("severity", severity).
		Fields(details).
		Msg("admin alert")

	if severity != "critical" || a.sender == nil || !a.sender.Enabled() {
		return
	}

	subject := "[tremolo] critical alert: " + eventType
	body := fmt.Sprintf("Event: %s\nSeverity: %s\nDetails: %v\n", eventType, severity, details)
	if err := a.sender.SendAlert(subject, body); err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to send alert email")
	}
}
