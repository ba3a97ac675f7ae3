// Package changefeed keeps a version counter per conversation and per
// inbox. Writers bump the counters after a send or a read; pollers compare
// versions to answer conditional requests without touching storage.
package changefeed

import (
	"context"
	"strings"
)

const (
	conversationPrefix = "conv:"
	inboxPrefix        = "inbox:"
)

// Notifier records that topics changed and reports their current version.
// Versions are opaque; two equal versions mean nothing changed in between.
type Notifier interface {
	Touch(ctx context.Context, topics ...string) error
	Version(ctx context.Context, topic string) (string, error)
}

func ConversationTopic(conversationKey string) string {
	return conversationPrefix + conversationKey
}

func InboxTopic(userID string) string {
	return inboxPrefix + userID
}

// InboxOwner returns the user of an inbox topic.
func InboxOwner(topic string) (string, bool) {
	user, ok := strings.CutPrefix(topic, inboxPrefix)
	return user, ok && user != ""
}
