package models

import "time"

// Profile is the public part of a user as served by the profile
// collaborator.
type Profile struct {
	ID        string `json:"id"`
	Handle    string `json:"handle"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar,omitempty"`
}

// ConversationSummary is one inbox row as seen by a viewer.
type ConversationSummary struct {
	ConversationKey string    `json:"conversationKey"`
	Participants    []string  `json:"participants"`
	FriendID        string    `json:"friendId"`
	Friend          *Profile  `json:"friend,omitempty"`
	LastMessage     *Message  `json:"lastMessage,omitempty"`
	UnreadCount     int64     `json:"unreadCount"`
	LastActivityAt  time.Time `json:"lastActivityAt"`
}

// MessagePage is one window of a conversation, oldest first.
type MessagePage struct {
	Messages []*Message `json:"messages"`
	Viewer   *Profile   `json:"viewer,omitempty"`
	Friend   *Profile   `json:"friend,omitempty"`
	Page     int        `json:"page"`
	Limit    int        `json:"limit"`
	HasMore  bool       `json:"hasMore"`
}

// SendResult is what the ledger hands back for a send.
type SendResult struct {
	Message   *Message `json:"message"`
	Duplicate bool     `json:"duplicate"`
}

// TotalUnread sums the viewer's counters over an inbox.
func TotalUnread(convs []*ConversationSummary) int64 {
	var total int64
	for _, c := range convs {
		total += c.UnreadCount
	}
	return total
}
