// Package messaging provides WhatsApp message delivery.
//
// The primary provider is an Evolution API gateway; Twilio is available as
// an alternative. Both implement the same Service interface, and replies
// are split into WhatsApp-sized parts before sending.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
)

// phoneNumberRegex strips non-numeric characters from phone numbers.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a
	// recipient identifier. Returns the canonicalized recipient and an
	// error if validation fails.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a single message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Ping reports whether the delivery provider is reachable.
	Ping(ctx context.Context) error
}

// canonicalizeRecipient validates and canonicalizes a WhatsApp phone
// number. It removes all non-numeric characters and validates the result
// has at least 6 digits.
func canonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	if recipient != canonical {
		slog.Debug("messaging canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// SendSplit splits a reply into WhatsApp-sized parts and sends them in
// order. It returns how many parts were sent; a mid-sequence failure
// reports the parts already delivered.
func SendSplit(ctx context.Context, svc Service, to, body string) (int, []string, error) {
	parts := SplitMessage(body)
	for i, part := range parts {
		if err := svc.SendMessage(ctx, to, part); err != nil {
			slog.Error("messaging.SendSplit: part delivery failed", "error", err, "to", to, "part", i+1, "of", len(parts))
			return i, parts, fmt.Errorf("failed to send part %d of %d: %w", i+1, len(parts), err)
		}
	}
	return len(parts), parts, nil
}
