// Package models holds the messaging domain types shared by the storage
// backends, the service and the transports.
package models

import (
	"sort"
	"strings"
	"time"
)

// KeySeparator joins the two participant ids of a conversation key.
const KeySeparator = ":"

// Message is one entry of the ledger.
type Message struct {
	ID              string     `json:"id"`
	ConversationKey string     `json:"conversationKey"`
	SenderID        string     `json:"senderId"`
	ReceiverID      string     `json:"receiverId"`
	Content         string     `json:"content"`
	ClientMessageID string     `json:"clientMessageId,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	Read            bool       `json:"read"`
	ReadAt          *time.Time `json:"readAt,omitempty"`
}

// ConversationKey derives the key shared by both directions of a pair.
func ConversationKey(a, b string) string {
	a, b = CanonicalPair(a, b)
	return a + KeySeparator + b
}

// CanonicalPair returns the two ids in ascending order.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// SplitKey returns the participants encoded in a conversation key.
func SplitKey(key string) (string, string, bool) {
	a, b, ok := strings.Cut(key, KeySeparator)
	if !ok || a == "" || b == "" {
		return "", "", false
	}
	return a, b, true
}

// Before reports whether m sorts before other in ledger order.
func (m *Message) Before(other *Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}

// SortMessages orders msgs ascending by (createdAt, id).
func SortMessages(msgs []*Message) {
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Before(msgs[j]) })
}

// Clone returns a deep copy so callers can't mutate stored state.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.ReadAt != nil {
		t := *m.ReadAt
		c.ReadAt = &t
	}
	return &c
}
