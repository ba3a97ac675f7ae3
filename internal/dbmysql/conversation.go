package dbmysql

import (
	"time"

	"gosocial-messaging/internal/chat/models"
)

// Conversation is the denormalized summary row of one pair of users.
// participant_a sorts before participant_b, so unread_a and unread_b
// always belong to a fixed side.
type Conversation struct {
	ConversationKey string `gorm:"primaryKey;size:129"`
	ParticipantA    string `gorm:"size:64;not null;index"`
	ParticipantB    string `gorm:"size:64;not null;index"`

	LastMessageID       *string    `gorm:"size:26"`
	LastSenderID        *string    `gorm:"size:64"`
	LastReceiverID      *string    `gorm:"size:64"`
	LastContent         *string    `gorm:"type:text"`
	LastClientMessageID *string    `gorm:"size:64"`
	LastCreatedAt       *time.Time `gorm:"type:datetime(3)"`
	LastRead            bool       `gorm:"not null;default:false"`
	LastReadAt          *time.Time `gorm:"type:datetime(3)"`

	UnreadA        int64     `gorm:"not null;default:0"`
	UnreadB        int64     `gorm:"not null;default:0"`
	LastActivityAt time.Time `gorm:"type:datetime(3);not null;index"`
	CreatedAt      time.Time `gorm:"type:datetime(3);not null"`
	UpdatedAt      time.Time `gorm:"type:datetime(3);not null"`
}

func (Conversation) TableName() string { return "conversations" }

func ConversationFromModel(c *models.Conversation) *Conversation {
	row := &Conversation{
		ConversationKey: c.Key,
		ParticipantA:    c.ParticipantA,
		ParticipantB:    c.ParticipantB,
		UnreadA:         c.UnreadA,
		UnreadB:         c.UnreadB,
		LastActivityAt:  c.LastActivityAt,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
	if m := c.LastMessage; m != nil {
		row.LastMessageID = strPtr(m.ID)
		row.LastSenderID = strPtr(m.SenderID)
		row.LastReceiverID = strPtr(m.ReceiverID)
		row.LastContent = strPtr(m.Content)
		if m.ClientMessageID != "" {
			row.LastClientMessageID = strPtr(m.ClientMessageID)
		}
		created := m.CreatedAt
		row.LastCreatedAt = &created
		row.LastRead = m.Read
		row.LastReadAt = m.ReadAt
	}
	return row
}

// UpdateColumns lists the columns written when a summary changes.
func (r *Conversation) UpdateColumns() map[string]interface{} {
	return map[string]interface{}{
		"last_message_id":        r.LastMessageID,
		"last_sender_id":         r.LastSenderID,
		"last_receiver_id":       r.LastReceiverID,
		"last_content":           r.LastContent,
		"last_client_message_id": r.LastClientMessageID,
		"last_created_at":        r.LastCreatedAt,
		"last_read":              r.LastRead,
		"last_read_at":           r.LastReadAt,
		"unread_a":               r.UnreadA,
		"unread_b":               r.UnreadB,
		"last_activity_at":       r.LastActivityAt,
		"updated_at":             r.UpdatedAt,
	}
}

func (r *Conversation) ToModel() *models.Conversation {
	c := &models.Conversation{
		Key:            r.ConversationKey,
		ParticipantA:   r.ParticipantA,
		ParticipantB:   r.ParticipantB,
		UnreadA:        r.UnreadA,
		UnreadB:        r.UnreadB,
		LastActivityAt: r.LastActivityAt.UTC(),
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
	if r.LastMessageID != nil && r.LastCreatedAt != nil {
		m := &models.Message{
			ID:              *r.LastMessageID,
			ConversationKey: r.ConversationKey,
			SenderID:        deref(r.LastSenderID),
			ReceiverID:      deref(r.LastReceiverID),
			Content:         deref(r.LastContent),
			ClientMessageID: deref(r.LastClientMessageID),
			CreatedAt:       r.LastCreatedAt.UTC(),
			Read:            r.LastRead,
		}
		if r.LastReadAt != nil {
			at := r.LastReadAt.UTC()
			m.ReadAt = &at
		}
		c.LastMessage = m
	}
	return c
}

func strPtr(s string) *string { return &s }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
