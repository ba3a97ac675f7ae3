package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gosocial-messaging/internal/chat/models"
	"gosocial-messaging/internal/dbmysql"
)

// errClientIDRace signals that a concurrent send with the same client
// message id committed first.
var errClientIDRace = errors.New("client message id already stored")

type gormChatRepo struct {
	db *gorm.DB
}

// NewChatRepository returns the MySQL-backed repository. Sends and reads
// run in one transaction that locks the pair record row, so concurrent
// writes on one pair serialise.
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &gormChatRepo{db: db}
}

func (r *gormChatRepo) AppendMessage(ctx context.Context, msg *models.Message) (*models.Message, bool, error) {
	var (
		stored    *models.Message
		duplicate bool
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if msg.ClientMessageID != "" {
			existing, err := findByClientID(tx, msg.SenderID, msg.ClientMessageID)
			if err != nil {
				return err
			}
			if existing != nil {
				stored, duplicate = existing, true
				return nil
			}
		}

		conv, err := lockConversation(tx, msg.ConversationKey, msg.CreatedAt, true)
		if err != nil {
			return err
		}

		if err := tx.Create(dbmysql.MessageFromModel(msg)).Error; err != nil {
			if msg.ClientMessageID != "" && errors.Is(err, gorm.ErrDuplicatedKey) {
				return errClientIDRace
			}
			return fmt.Errorf("failed to insert message: %w", err)
		}

		conv.ApplySend(msg)
		if err := saveConversation(tx, conv); err != nil {
			return err
		}

		stored = msg.Clone()
		return nil
	})

	if errors.Is(err, errClientIDRace) {
		existing, lookupErr := findByClientID(r.db.WithContext(ctx), msg.SenderID, msg.ClientMessageID)
		if lookupErr != nil {
			return nil, false, lookupErr
		}
		if existing == nil {
			return nil, false, fmt.Errorf("failed to insert message: %w", err)
		}
		return existing, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return stored, duplicate, nil
}

func (r *gormChatRepo) ListMessages(ctx context.Context, conversationKey string, offset, limit int) ([]*models.Message, error) {
	var rows []*dbmysql.Message
	err := r.db.WithContext(ctx).
		Where("conversation_key = ?", conversationKey).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	msgs := make([]*models.Message, len(rows))
	for i, row := range rows {
		msgs[i] = row.ToModel()
	}
	reverse(msgs)
	return msgs, nil
}

func (r *gormChatRepo) MarkRead(ctx context.Context, conversationKey, viewerID string, at time.Time) (int64, error) {
	var updated int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := lockConversation(tx, conversationKey, at, false)
		if errors.Is(err, ErrConversationNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		res := tx.Model(&dbmysql.Message{}).
			Where("conversation_key = ? AND receiver_id = ? AND is_read = ?", conversationKey, viewerID, false).
			Updates(map[string]interface{}{"is_read": true, "read_at": at})
		if res.Error != nil {
			return fmt.Errorf("failed to mark messages read: %w", res.Error)
		}
		updated = res.RowsAffected

		if updated == 0 && conv.UnreadFor(viewerID) == 0 {
			return nil
		}
		conv.ApplyRead(viewerID, at)
		return saveConversation(tx, conv)
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

func (r *gormChatRepo) GetConversation(ctx context.Context, conversationKey string) (*models.Conversation, error) {
	var row dbmysql.Conversation
	err := r.db.WithContext(ctx).Where("conversation_key = ?", conversationKey).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch conversation: %w", err)
	}
	return row.ToModel(), nil
}

func (r *gormChatRepo) ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	var rows []*dbmysql.Conversation
	err := r.db.WithContext(ctx).
		Where("participant_a = ? OR participant_b = ?", userID, userID).
		Order("last_activity_at DESC").
		Order("conversation_key ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch conversations: %w", err)
	}

	convs := make([]*models.Conversation, len(rows))
	for i, row := range rows {
		convs[i] = row.ToModel()
	}
	return convs, nil
}

func (r *gormChatRepo) RebuildConversation(ctx context.Context, conversationKey string, now time.Time) (*models.Conversation, error) {
	var rebuilt *models.Conversation

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// seeding repairs a missing record; the transaction rolls back if
		// the ledger turns out to be empty
		if _, err := lockConversation(tx, conversationKey, now, true); err != nil {
			return err
		}

		var rows []*dbmysql.Message
		if err := tx.Where("conversation_key = ?", conversationKey).Find(&rows).Error; err != nil {
			return fmt.Errorf("failed to fetch messages: %w", err)
		}
		if len(rows) == 0 {
			return ErrConversationNotFound
		}

		msgs := make([]*models.Message, len(rows))
		for i, row := range rows {
			msgs[i] = row.ToModel()
		}
		rebuilt = models.BuildConversation(conversationKey, msgs, now)
		return saveConversation(tx, rebuilt)
	})
	if err != nil {
		return nil, err
	}
	return rebuilt, nil
}

func (r *gormChatRepo) FindByClientMessageID(ctx context.Context, senderID, clientMessageID string) (*models.Message, error) {
	return findByClientID(r.db.WithContext(ctx), senderID, clientMessageID)
}

func findByClientID(db *gorm.DB, senderID, clientMessageID string) (*models.Message, error) {
	var row dbmysql.Message
	err := db.Where("sender_id = ? AND client_message_id = ?", senderID, clientMessageID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up client message id: %w", err)
	}
	return row.ToModel(), nil
}

// lockConversation takes the row lock on the pair record. With seed set,
// a missing record is created first so the lock always has a row to hold.
func lockConversation(tx *gorm.DB, key string, now time.Time, seed bool) (*models.Conversation, error) {
	if seed {
		a, b, ok := models.SplitKey(key)
		if !ok {
			return nil, fmt.Errorf("invalid conversation key %q", key)
		}
		fresh := models.NewConversation(a, b, now)
		fresh.LastActivityAt = now
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(dbmysql.ConversationFromModel(fresh)).Error; err != nil {
			return nil, fmt.Errorf("failed to seed conversation: %w", err)
		}
	}

	var row dbmysql.Conversation
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("conversation_key = ?", key).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock conversation: %w", err)
	}
	return row.ToModel(), nil
}

func saveConversation(tx *gorm.DB, conv *models.Conversation) error {
	row := dbmysql.ConversationFromModel(conv)
	err := tx.Model(&dbmysql.Conversation{}).
		Where("conversation_key = ?", conv.Key).
		Updates(row.UpdateColumns()).Error
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	return nil
}
