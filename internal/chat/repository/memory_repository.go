package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"gosocial-messaging/internal/chat/models"
)

// MemoryChatRepository keeps the ledger and the index in process memory.
// One mutex guards both, so every operation is atomic.
type MemoryChatRepository struct {
	mu            sync.RWMutex
	messages      map[string][]*models.Message // by conversation key, ascending
	conversations map[string]*models.Conversation
	byClientID    map[string]*models.Message // sender + "\x00" + client message id
}

func NewMemoryChatRepository() *MemoryChatRepository {
	return &MemoryChatRepository{
		messages:      make(map[string][]*models.Message),
		conversations: make(map[string]*models.Conversation),
		byClientID:    make(map[string]*models.Message),
	}
}

func clientKey(senderID, clientMessageID string) string {
	return senderID + "\x00" + clientMessageID
}

func (r *MemoryChatRepository) AppendMessage(ctx context.Context, msg *models.Message) (*models.Message, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ClientMessageID != "" {
		if existing, ok := r.byClientID[clientKey(msg.SenderID, msg.ClientMessageID)]; ok {
			return existing.Clone(), true, nil
		}
	}

	stored := msg.Clone()
	msgs := r.messages[stored.ConversationKey]
	// insert keeping (createdAt, id) order; appends are the common case
	i := sort.Search(len(msgs), func(i int) bool { return stored.Before(msgs[i]) })
	msgs = append(msgs, nil)
	copy(msgs[i+1:], msgs[i:])
	msgs[i] = stored
	r.messages[stored.ConversationKey] = msgs

	conv, ok := r.conversations[stored.ConversationKey]
	if !ok {
		a, b, _ := models.SplitKey(stored.ConversationKey)
		conv = models.NewConversation(a, b, stored.CreatedAt)
		r.conversations[stored.ConversationKey] = conv
	}
	conv.ApplySend(stored)

	if stored.ClientMessageID != "" {
		r.byClientID[clientKey(stored.SenderID, stored.ClientMessageID)] = stored
	}
	return stored.Clone(), false, nil
}

func (r *MemoryChatRepository) FindByClientMessageID(ctx context.Context, senderID, clientMessageID string) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if existing, ok := r.byClientID[clientKey(senderID, clientMessageID)]; ok {
		return existing.Clone(), nil
	}
	return nil, nil
}

func (r *MemoryChatRepository) ListMessages(ctx context.Context, conversationKey string, offset, limit int) ([]*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	msgs := r.messages[conversationKey]
	end := len(msgs) - offset
	if end <= 0 || limit <= 0 {
		return []*models.Message{}, nil
	}
	start := end - limit
	if start < 0 {
		start = 0
	}

	out := make([]*models.Message, 0, end-start)
	for _, m := range msgs[start:end] {
		out = append(out, m.Clone())
	}
	return out, nil
}

func (r *MemoryChatRepository) MarkRead(ctx context.Context, conversationKey, viewerID string, at time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[conversationKey]
	if !ok {
		return 0, nil
	}

	var updated int64
	for _, m := range r.messages[conversationKey] {
		if m.ReceiverID == viewerID && !m.Read {
			m.Read = true
			readAt := at
			m.ReadAt = &readAt
			updated++
		}
	}
	if updated == 0 && conv.UnreadFor(viewerID) == 0 {
		return 0, nil
	}
	conv.ApplyRead(viewerID, at)
	return updated, nil
}

func (r *MemoryChatRepository) GetConversation(ctx context.Context, conversationKey string) (*models.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, ok := r.conversations[conversationKey]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return conv.Clone(), nil
}

func (r *MemoryChatRepository) ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	convs := make([]*models.Conversation, 0)
	for _, conv := range r.conversations {
		if conv.HasParticipant(userID) {
			convs = append(convs, conv.Clone())
		}
	}
	sortConversations(convs)
	return convs, nil
}

func (r *MemoryChatRepository) RebuildConversation(ctx context.Context, conversationKey string, now time.Time) (*models.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	msgs := r.messages[conversationKey]
	if len(msgs) == 0 {
		return nil, ErrConversationNotFound
	}
	conv := models.BuildConversation(conversationKey, msgs, now)
	r.conversations[conversationKey] = conv
	return conv.Clone(), nil
}
