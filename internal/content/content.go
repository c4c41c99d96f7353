package content

import (
	"bytes"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

// MaxMessageLen is the message body limit enforced before any network call.
const MaxMessageLen = 500

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message exceeds 500 characters")

	policy   = bluemonday.UGCPolicy()
	markdown = goldmark.New()
)

// ValidateMessage rejects empty/whitespace-only input and bodies over
// MaxMessageLen runes. Invalid input is never sent to the network.
func ValidateMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxMessageLen {
		return ErrMessageTooLong
	}
	return nil
}

// Sanitize removes unsafe HTML from inbound message content before display.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// RenderMarkdown converts a message body to sanitized HTML for display.
func RenderMarkdown(input string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(input), &buf); err != nil {
		return "", err
	}
	return policy.Sanitize(buf.String()), nil
}
