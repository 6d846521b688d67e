package moderation

import (
	"regexp"
	"strings"
)

// Text length ceilings enforced by the sanitizer.
const (
	MaxDescriptionLength  = 1000
	MaxReasonLength       = 1000
	MaxInternalNotesLength = 5000
	MaxNotificationLength = 2000
)

var (
	uuidRegex    = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	htmlTagRegex = regexp.MustCompile(`<[^>]*>`)
)

// ValidateUUID checks the canonical 8-4-4-4-12 hex form.
func ValidateUUID(field, value string) error {
	if value == "" {
		return validationError(field, field+" is required")
	}
	if !uuidRegex.MatchString(value) {
		return validationError(field, field+" is not a valid UUID")
	}
	return nil
}

// htmlEscaper escapes the characters that matter for injection into HTML
// contexts. Forward slash included to break closing tags.
var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
)

// SanitizeText strips HTML tags, escapes HTML-significant characters and
// drops NUL bytes, then trims surrounding whitespace. Tags are stripped
// before escaping so "<b>hi</b>" becomes "hi", not escaped markup.
func SanitizeText(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = htmlTagRegex.ReplaceAllString(s, "")
	s = htmlEscaper.Replace(s)
	return strings.TrimSpace(s)
}

// ValidateLength rejects sanitized text exceeding max runes. Empty text is
// allowed here; required-ness is checked separately.
func ValidateLength(field, value string, max int) error {
	if len([]rune(value)) > max {
		return validationError(field, field+" exceeds maximum length").With("max", max)
	}
	return nil
}

// ValidateReportType checks enum membership.
func ValidateReportType(t ReportType) error {
	if !ValidReportTypes[t] {
		return validationError("report_type", "invalid report type").With("value", string(t))
	}
	return nil
}

// ValidateReportReason checks enum membership and the description
// requirement for "other".
func ValidateReportReason(reason ReportReason, description string) error {
	if !ValidReportReasons[reason] {
		return validationError("reason", "invalid report reason").With("value", string(reason))
	}
	if reason == ReasonOther && strings.TrimSpace(description) == "" {
		return validationError("description", "description is required when reason is 'other'")
	}
	return nil
}

// ValidateRestrictionType checks enum membership.
func ValidateRestrictionType(t RestrictionType) error {
	if !ValidRestrictionTypes[t] {
		return validationError("restriction_type", "invalid restriction type").With("value", string(t))
	}
	return nil
}

// sanitizeRequired sanitizes and validates a mandatory text field.
func sanitizeRequired(field, value string, max int) (string, error) {
	clean := SanitizeText(value)
	if clean == "" {
		return "", validationError(field, field+" is required")
	}
	if err := ValidateLength(field, clean, max); err != nil {
		return "", err
	}
	return clean, nil
}

// sanitizeOptional sanitizes and validates an optional text field.
func sanitizeOptional(field, value string, max int) (string, error) {
	clean := SanitizeText(value)
	if err := ValidateLength(field, clean, max); err != nil {
		return "", err
	}
	return clean, nil
}
