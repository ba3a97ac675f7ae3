package dbmysql

import (
	"time"

	"gosocial-messaging/internal/chat/models"
)

// Message is one row of the ledger. Rows are never updated except for the
// read flag.
type Message struct {
	ID              string     `gorm:"primaryKey;size:26"`
	ConversationKey string     `gorm:"size:129;not null;index:idx_messages_conversation_created,priority:1"`
	SenderID        string     `gorm:"size:64;not null;uniqueIndex:idx_messages_sender_client,priority:1"`
	ReceiverID      string     `gorm:"size:64;not null;index:idx_messages_receiver_read,priority:1"`
	Content         string     `gorm:"type:text;not null"`
	ClientMessageID *string    `gorm:"size:64;uniqueIndex:idx_messages_sender_client,priority:2"`
	CreatedAt       time.Time  `gorm:"type:datetime(3);not null;index:idx_messages_conversation_created,priority:2"`
	Read            bool       `gorm:"column:is_read;not null;default:false;index:idx_messages_receiver_read,priority:2"`
	ReadAt          *time.Time `gorm:"type:datetime(3)"`
}

func (Message) TableName() string { return "messages" }

func MessageFromModel(m *models.Message) *Message {
	row := &Message{
		ID:              m.ID,
		ConversationKey: m.ConversationKey,
		SenderID:        m.SenderID,
		ReceiverID:      m.ReceiverID,
		Content:         m.Content,
		CreatedAt:       m.CreatedAt,
		Read:            m.Read,
		ReadAt:          m.ReadAt,
	}
	if m.ClientMessageID != "" {
		cid := m.ClientMessageID
		row.ClientMessageID = &cid
	}
	return row
}

func (r *Message) ToModel() *models.Message {
	m := &models.Message{
		ID:              r.ID,
		ConversationKey: r.ConversationKey,
		SenderID:        r.SenderID,
		ReceiverID:      r.ReceiverID,
		Content:         r.Content,
		CreatedAt:       r.CreatedAt.UTC(),
		Read:            r.Read,
	}
	if r.ClientMessageID != nil {
		m.ClientMessageID = *r.ClientMessageID
	}
	if r.ReadAt != nil {
		at := r.ReadAt.UTC()
		m.ReadAt = &at
	}
	return m
}
