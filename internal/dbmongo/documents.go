package dbmongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"gosocial-messaging/internal/chat/models"
)

type MessageDocument struct {
	ID              string     `bson:"_id"`
	ConversationKey string     `bson:"conversationKey"`
	SenderID        string     `bson:"senderId"`
	ReceiverID      string     `bson:"receiverId"`
	Content         string     `bson:"content"`
	ClientMessageID string     `bson:"clientMessageId,omitempty"`
	CreatedAt       time.Time  `bson:"createdAt"`
	Read            bool       `bson:"read"`
	ReadAt          *time.Time `bson:"readAt,omitempty"`
}

func MessageDocumentFromModel(m *models.Message) *MessageDocument {
	return &MessageDocument{
		ID:              m.ID,
		ConversationKey: m.ConversationKey,
		SenderID:        m.SenderID,
		ReceiverID:      m.ReceiverID,
		Content:         m.Content,
		ClientMessageID: m.ClientMessageID,
		CreatedAt:       m.CreatedAt,
		Read:            m.Read,
		ReadAt:          m.ReadAt,
	}
}

// ToModel converts back to the domain type. BSON dates have millisecond
// precision and decode as UTC, matching how created_at is minted.
func (d *MessageDocument) ToModel() *models.Message {
	m := &models.Message{
		ID:              d.ID,
		ConversationKey: d.ConversationKey,
		SenderID:        d.SenderID,
		ReceiverID:      d.ReceiverID,
		Content:         d.Content,
		ClientMessageID: d.ClientMessageID,
		CreatedAt:       d.CreatedAt.UTC(),
		Read:            d.Read,
	}
	if d.ReadAt != nil {
		at := d.ReadAt.UTC()
		m.ReadAt = &at
	}
	return m
}

// ConversationDocument is keyed by the conversation key. participants is
// stored sorted so index lookups by either user hit the same field.
type ConversationDocument struct {
	Key           string           `bson:"_id"`
	Participants  []string         `bson:"participants"`
	LastMessage   *MessageDocument `bson:"lastMessage,omitempty"`
	UnreadA       int64            `bson:"unreadA"`
	UnreadB       int64            `bson:"unreadB"`
	LastMessageAt time.Time        `bson:"lastMessageAt"`
	CreatedAt     time.Time        `bson:"createdAt"`
	UpdatedAt     time.Time        `bson:"updatedAt"`
}

func ConversationDocumentFromModel(c *models.Conversation) *ConversationDocument {
	d := &ConversationDocument{
		Key:           c.Key,
		Participants:  []string{c.ParticipantA, c.ParticipantB},
		UnreadA:       c.UnreadA,
		UnreadB:       c.UnreadB,
		LastMessageAt: c.LastActivityAt,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
	if c.LastMessage != nil {
		d.LastMessage = MessageDocumentFromModel(c.LastMessage)
	}
	return d
}

func (d *ConversationDocument) ToModel() *models.Conversation {
	c := &models.Conversation{
		Key:            d.Key,
		UnreadA:        d.UnreadA,
		UnreadB:        d.UnreadB,
		LastActivityAt: d.LastMessageAt.UTC(),
		CreatedAt:      d.CreatedAt.UTC(),
		UpdatedAt:      d.UpdatedAt.UTC(),
	}
	if len(d.Participants) == 2 {
		c.ParticipantA, c.ParticipantB = models.CanonicalPair(d.Participants[0], d.Participants[1])
	} else if a, b, ok := models.SplitKey(d.Key); ok {
		c.ParticipantA, c.ParticipantB = a, b
	}
	if d.LastMessage != nil {
		c.LastMessage = d.LastMessage.ToModel()
	}
	return c
}

// UserDocument is the subset of the users collection the messaging
// service reads for profiles.
type UserDocument struct {
	ID       primitive.ObjectID `bson:"_id"`
	Name     string             `bson:"name"`
	Username string             `bson:"username"`
	Avatar   string             `bson:"avatar,omitempty"`
}

func (u *UserDocument) ToProfile() *models.Profile {
	return &models.Profile{
		ID:        u.ID.Hex(),
		Handle:    u.Username,
		Name:      u.Name,
		AvatarURL: u.Avatar,
	}
}
