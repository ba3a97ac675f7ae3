package repository

import (
	"context"
	"errors"
	"sort"
	"time"

	"gosocial-messaging/internal/chat/models"
)

// ErrConversationNotFound is returned when a pair has never exchanged a
// message.
var ErrConversationNotFound = errors.New("conversation not found")

// ChatRepository stores the message ledger together with the conversation
// index. Every backend keeps the two consistent: a stored message is
// always reflected in its pair record.
type ChatRepository interface {
	// AppendMessage stores msg and folds it into its pair record. When msg
	// carries a client message id the sender already used, the stored
	// message is returned with duplicate set and nothing is written.
	AppendMessage(ctx context.Context, msg *models.Message) (stored *models.Message, duplicate bool, err error)

	// ListMessages returns up to limit messages of the conversation,
	// skipping the offset newest ones, in ascending (createdAt, id) order.
	ListMessages(ctx context.Context, conversationKey string, offset, limit int) ([]*models.Message, error)

	// MarkRead flips every unread message addressed to viewerID and zeroes
	// the viewer's counter. It returns the number of messages flipped.
	MarkRead(ctx context.Context, conversationKey, viewerID string, at time.Time) (int64, error)

	// FindByClientMessageID returns the message senderID stored under
	// clientMessageID, or nil when there is none.
	FindByClientMessageID(ctx context.Context, senderID, clientMessageID string) (*models.Message, error)

	GetConversation(ctx context.Context, conversationKey string) (*models.Conversation, error)

	// ListConversations returns the pair records userID takes part in,
	// most recent activity first.
	ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error)

	// RebuildConversation recomputes the pair record from the ledger and
	// stores it.
	RebuildConversation(ctx context.Context, conversationKey string, now time.Time) (*models.Conversation, error)
}

// sortConversations orders by last activity descending, ties by key.
func sortConversations(convs []*models.Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		if !convs[i].LastActivityAt.Equal(convs[j].LastActivityAt) {
			return convs[i].LastActivityAt.After(convs[j].LastActivityAt)
		}
		return convs[i].Key < convs[j].Key
	})
}

// reverse turns a newest-first window into ascending order in place.
func reverse(msgs []*models.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
