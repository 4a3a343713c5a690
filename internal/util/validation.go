package util

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	common "github.com/example/messenger/internal/adapters/common"
	"github.com/example/messenger/internal/models"
)

var (
	// ErrInvalidPhone is returned when a phone number is not E.164 compliant.
	ErrInvalidPhone = errors.New("invalid e164 phone number")
	// ErrInvalidURL indicates that a URL failed validation.
	ErrInvalidURL = errors.New("invalid url")
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[1-9]\d{5,14}$`)
	e164Pattern  = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
)

// IsValidEmail reports whether s looks like a bare email address.
func IsValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// IsValidPhoneNumber reports whether s looks like an international phone
// number, with or without the leading plus.
func IsValidPhoneNumber(s string) bool {
	return phonePattern.MatchString(s)
}

// ValidateEnvelope enforces the required fields for the given transport class.
// Checks run in a fixed order and the first failure is returned as a
// validation error. Classes other than email, sms and call only get the
// presence and content checks.
func ValidateEnvelope(env *models.Envelope, class models.Class) error {
	if env == nil || len(env.To) == 0 || strings.TrimSpace(env.To.First()) == "" {
		return common.NewValidation("Recipient (to) is required")
	}
	if strings.TrimSpace(env.From) == "" {
		return common.NewValidation("Sender (from) is required")
	}

	switch class {
	case models.ClassEmail:
		for _, to := range env.To {
			if !IsValidEmail(to) {
				return common.NewValidation("Invalid email address: %s", to)
			}
		}
		if !IsValidEmail(env.From) {
			return common.NewValidation("Invalid sender email address: %s", env.From)
		}
		if env.Subject == "" {
			return common.NewValidation("Subject is required for email")
		}
	case models.ClassSMS, models.ClassCall:
		for _, to := range env.To {
			if !IsValidPhoneNumber(to) {
				return common.NewValidation("Invalid phone number: %s", to)
			}
		}
		if !IsValidPhoneNumber(env.From) {
			return common.NewValidation("Invalid sender phone number: %s", env.From)
		}
	}

	if env.HTML == "" && env.Text == "" {
		return common.NewValidation("Message content (html or text) is required")
	}
	return nil
}

// NormalizeE164 validates a phone number using the E.164 format and returns the
// normalized representation. A missing leading plus is added.
func NormalizeE164(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%w: value is empty", ErrInvalidPhone)
	}
	if !strings.HasPrefix(trimmed, "+") {
		trimmed = "+" + trimmed
	}

	if !e164Pattern.MatchString(trimmed) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, trimmed)
	}

	return trimmed, nil
}

// ValidateHTTPURL ensures the provided string is a valid HTTP or HTTPS URL.
func ValidateHTTPURL(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%w: value is empty", ErrInvalidURL)
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: host is required", ErrInvalidURL)
	}

	return trimmed, nil
}
