package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestGetenvDefault(t *testing.T) {
	t.Run("returns value when set", func(t *testing.T) {
		t.Setenv("TREMOLO_TEST_KEY", "value")
		if got := getenvDefault("TREMOLO_TEST_KEY", "fallback"); got != "value" {
			t.Errorf("Expected value, got %s", got)
		}
	})

	t.Run("returns default when unset", func(t *testing.T) {
		if got := getenvDefault("TREMOLO_TEST_MISSING", "fallback"); got != "fallback" {
			t.Errorf("Expected fallback, got %s", got)
		}
	})
}

func TestDataDirectory(t *testing.T) {
	t.Run("explicit override wins", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("TREMOLO_DATA_DIR", dir)
		if got := dataDirectory(); got != dir {
			t.Errorf("Expected %s, got %s", dir, got)
		}
	})

	t.Run("falls back to XDG data home", func(t *testing.T) {
		t.Setenv("TREMOLO_DATA_DIR", "")
		xdg := t.TempDir()
		t.Setenv("XDG_DATA_HOME", xdg)
		expected := filepath.Join(xdg, "tremolo")
		if got := dataDirectory(); got != expected {
			t.Errorf("Expected %s, got %s", expected, got)
		}
	})
}

// TestStartupLogging verifies the structured startup log fields are parseable
// JSON the way production log shipping expects.
func TestStartupLogging(t *testing.T) {
	var buf bytes.Buffer

	originalLogger := log.Logger
	defer func() {
		log.Logger = originalLogger
	}()

	log.Logger = zerolog.New(&buf).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	log.Info().
		Str("address", "0.0.0.0:18910").
		Bool("secure_cookies", true).
		Msg("Starting HTTP server")

	logOutput := buf.String()
	if !strings.Contains(logOutput, "Starting HTTP server") {
		t.Errorf("Log output missing expected message. Got: %s", logOutput)
	}

	var logEntry map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(logOutput)), &logEntry); err != nil {
		t.Fatalf("Failed to parse log as JSON: %v\nOutput: %s", err, logOutput)
	}

	if logEntry["address"] != "0.0.0.0:18910" {
		t.Errorf("Expected address field, got %v", logEntry["address"])
	}
	if logEntry["secure_cookies"] != true {
		t.Errorf("Expected secure_cookies=true, got %v", logEntry["secure_cookies"])
	}
}
