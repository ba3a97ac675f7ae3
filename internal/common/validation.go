package common

import (
	"strings"
	"unicode"
	"unicode/utf8"

	apperrors "gosocial-messaging/pkg/errors"
)

const (
	MaxUserIDLength          = 64
	MaxClientMessageIDLength = 64
	DefaultMaxContentLength  = 4000
)

// ValidateUserID accepts opaque ids that can be joined into a conversation key.
func ValidateUserID(field, id string) error {
	if id == "" {
		return apperrors.Validation(field, field+" is required")
	}
	if len(id) > MaxUserIDLength {
		return apperrors.Validation(field, field+" is too long")
	}
	for _, r := range id {
		if r == ':' || unicode.IsSpace(r) {
			return apperrors.Validation(field, field+" contains invalid characters")
		}
	}
	return nil
}

// ValidateContent trims content and checks it against maxRunes.
// A maxRunes of zero or less falls back to DefaultMaxContentLength.
func ValidateContent(content string, maxRunes int) (string, error) {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxContentLength
	}
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", apperrors.ErrEmptyContent
	}
	if utf8.RuneCountInString(trimmed) > maxRunes {
		return "", apperrors.ErrContentTooLong
	}
	return trimmed, nil
}

// ValidateClientMessageID accepts an optional idempotency token. It is
// trimmed; an empty result means none was given.
func ValidateClientMessageID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if len(id) > MaxClientMessageIDLength {
		return "", apperrors.Validation("clientMessageId", "client message ID is too long")
	}
	return id, nil
}
