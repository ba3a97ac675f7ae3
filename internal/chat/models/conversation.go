package models

import (
	"fmt"
	"time"
)

// Conversation is the persisted pair record of the conversation index.
// ParticipantA always sorts before ParticipantB.
type Conversation struct {
	Key            string    `json:"conversationKey"`
	ParticipantA   string    `json:"participantA"`
	ParticipantB   string    `json:"participantB"`
	LastMessage    *Message  `json:"lastMessage,omitempty"`
	UnreadA        int64     `json:"unreadA"`
	UnreadB        int64     `json:"unreadB"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// NewConversation returns an empty pair record for the two participants.
func NewConversation(a, b string, now time.Time) *Conversation {
	a, b = CanonicalPair(a, b)
	return &Conversation{
		Key:          a + KeySeparator + b,
		ParticipantA: a,
		ParticipantB: b,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// HasParticipant reports whether userID is one of the pair.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID == c.ParticipantA || userID == c.ParticipantB
}

// Other returns the participant that is not userID.
func (c *Conversation) Other(userID string) string {
	if userID == c.ParticipantA {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// UnreadFor returns the unread counter of viewerID.
func (c *Conversation) UnreadFor(viewerID string) int64 {
	switch viewerID {
	case c.ParticipantA:
		return c.UnreadA
	case c.ParticipantB:
		return c.UnreadB
	}
	return 0
}

// ApplySend folds a freshly stored message into the record: the
// receiver's counter grows and the last message moves forward if msg
// sorts after it. Late-committing older messages never rewind it.
func (c *Conversation) ApplySend(msg *Message) {
	switch msg.ReceiverID {
	case c.ParticipantA:
		c.UnreadA++
	case c.ParticipantB:
		c.UnreadB++
	}
	if c.LastMessage == nil || c.LastMessage.Before(msg) {
		c.LastMessage = msg.Clone()
		c.LastActivityAt = msg.CreatedAt
	}
	if msg.CreatedAt.After(c.UpdatedAt) {
		c.UpdatedAt = msg.CreatedAt
	}
}

// ApplyRead zeroes the viewer's counter after all of the viewer's unread
// messages were flipped. The copy of the last message is updated too so
// the inbox shows the receipt.
func (c *Conversation) ApplyRead(viewerID string, at time.Time) {
	switch viewerID {
	case c.ParticipantA:
		c.UnreadA = 0
	case c.ParticipantB:
		c.UnreadB = 0
	}
	if c.LastMessage != nil && c.LastMessage.ReceiverID == viewerID && !c.LastMessage.Read {
		c.LastMessage.Read = true
		readAt := at
		c.LastMessage.ReadAt = &readAt
	}
	c.UpdatedAt = at
}

// BuildConversation recomputes the pair record from the ledger. It is
// the reference definition of the index: every backend's incremental
// updates must agree with it.
func BuildConversation(key string, msgs []*Message, now time.Time) *Conversation {
	a, b, _ := SplitKey(key)
	conv := NewConversation(a, b, now)
	var first time.Time
	for _, m := range msgs {
		if first.IsZero() || m.CreatedAt.Before(first) {
			first = m.CreatedAt
		}
		if !m.Read {
			switch m.ReceiverID {
			case conv.ParticipantA:
				conv.UnreadA++
			case conv.ParticipantB:
				conv.UnreadB++
			}
		}
		if conv.LastMessage == nil || conv.LastMessage.Before(m) {
			conv.LastMessage = m.Clone()
			conv.LastActivityAt = m.CreatedAt
		}
	}
	if !first.IsZero() {
		conv.CreatedAt = first
	}
	return conv
}

// Summary renders the record from viewerID's side.
func (c *Conversation) Summary(viewerID string) *ConversationSummary {
	return &ConversationSummary{
		ConversationKey: c.Key,
		Participants:    []string{c.ParticipantA, c.ParticipantB},
		FriendID:        c.Other(viewerID),
		LastMessage:     c.LastMessage.Clone(),
		UnreadCount:     c.UnreadFor(viewerID),
		LastActivityAt:  c.LastActivityAt,
	}
}

// Fingerprint identifies the stored state of the record. Sends, reads and
// rebuilds all change it.
func (c *Conversation) Fingerprint() string {
	if c == nil {
		return ""
	}
	lastID, lastRead := "", false
	if c.LastMessage != nil {
		lastID, lastRead = c.LastMessage.ID, c.LastMessage.Read
	}
	return fmt.Sprintf("%s/%s/%t/%d/%d/%d", c.Key, lastID, lastRead, c.UnreadA, c.UnreadB, c.UpdatedAt.UnixMilli())
}

// Clone returns a deep copy.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	cp.LastMessage = c.LastMessage.Clone()
	return &cp
}
