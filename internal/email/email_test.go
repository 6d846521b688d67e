package email

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnabled(t *testing.T) {
	assert.False(t, NewSender(Config{}).Enabled())
	assert.False(t, NewSender(Config{Host: "smtp.example.com"}).Enabled())
	assert.False(t, NewSender(Config{AdminEmail: "ops@tremolo.fm"}).Enabled())
	assert.True(t, NewSender(Config{Host: "smtp.example.com", AdminEmail: "ops@tremolo.fm"}).Enabled())
}

func TestSendAlertDisabled(t *testing.T) {
	// Without SMTP configured SendAlert never dials.
	assert.NoError(t, NewSender(Config{}).SendAlert("subject", "body"))
	assert.NoError(t, NewSender(Config{AdminEmail: "ops@tremolo.fm"}).SendAlert("subject", "body"))
}

func TestBuildMessage(t *testing.T) {
	s := NewSender(Config{
		Host:       "smtp.example.com",
		From:       "alerts@tremolo.fm",
		AdminEmail: "ops@tremolo.fm",
	})
	sentAt := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	msg := s.buildMessage("[tremolo] critical alert: reversal_immutability_violation", "Event: details here\n", sentAt)

	headers, body, found := strings.Cut(msg, "\r\n\r\n")
	require.True(t, found)
	assert.Contains(t, headers, "From: Tremolo Moderation <alerts@tremolo.fm>")
	assert.Contains(t, headers, "To: ops@tremolo.fm")
	assert.Contains(t, headers, "Subject: [tremolo] critical alert: reversal_immutability_violation")
	assert.Contains(t, headers, "Date: Sat, 14 Mar 2026 12:00:00 +0000")
	assert.Contains(t, headers, "Content-Type: text/plain; charset=UTF-8")
	assert.Equal(t, "Event: details here\n", body)
}
