package handler

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/types/known/timestamppb"

	"gosocial-messaging/internal/chat/models"
)

// CodecName is the content-subtype clients must request:
// application/grpc+json.
const CodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec carries the plain Go messages below over gRPC.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                               { return CodecName }

type Profile struct {
	Id        string `json:"id"`
	Handle    string `json:"handle"`
	Name      string `json:"name,omitempty"`
	AvatarUrl string `json:"avatar,omitempty"`
}

type ChatMessage struct {
	Id              string                 `json:"id"`
	ConversationKey string                 `json:"conversationKey"`
	SenderId        string                 `json:"senderId"`
	ReceiverId      string                 `json:"receiverId"`
	Content         string                 `json:"content"`
	ClientMessageId string                 `json:"clientMessageId,omitempty"`
	CreatedAt       *timestamppb.Timestamp `json:"createdAt"`
	Read            bool                   `json:"read"`
	ReadAt          *timestamppb.Timestamp `json:"readAt,omitempty"`
}

type ConversationSummary struct {
	ConversationKey string                 `json:"conversationKey"`
	Participants    []string               `json:"participants"`
	FriendId        string                 `json:"friendId"`
	Friend          *Profile               `json:"friend,omitempty"`
	LastMessage     *ChatMessage           `json:"lastMessage,omitempty"`
	UnreadCount     int64                  `json:"unreadCount"`
	LastActivityAt  *timestamppb.Timestamp `json:"lastActivityAt"`
}

type SendMessageRequest struct {
	ReceiverId      string `json:"receiverId"`
	Content         string `json:"content"`
	ClientMessageId string `json:"clientMessageId,omitempty"`
}

type SendMessageResponse struct {
	Message   *ChatMessage `json:"message"`
	Duplicate bool         `json:"duplicate"`
}

type ListMessagesRequest struct {
	FriendId string `json:"friendId"`
	Page     int32  `json:"page"`
	Limit    int32  `json:"limit"`
}

type ListMessagesResponse struct {
	Messages []*ChatMessage `json:"messages"`
	Viewer   *Profile       `json:"viewer,omitempty"`
	Friend   *Profile       `json:"friend,omitempty"`
	Page     int32          `json:"page"`
	Limit    int32          `json:"limit"`
	HasMore  bool           `json:"hasMore"`
}

type MarkReadRequest struct {
	FriendId string `json:"friendId"`
}

type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}

type ListConversationsRequest struct{}

type ListConversationsResponse struct {
	Conversations []*ConversationSummary `json:"conversations"`
	TotalUnread   int64                  `json:"totalUnread"`
}

func toProtoMessage(m *models.Message) *ChatMessage {
	if m == nil {
		return nil
	}
	var readAt *timestamppb.Timestamp
	if m.ReadAt != nil {
		readAt = timestamppb.New(*m.ReadAt)
	}
	return &ChatMessage{
		Id:              m.ID,
		ConversationKey: m.ConversationKey,
		SenderId:        m.SenderID,
		ReceiverId:      m.ReceiverID,
		Content:         m.Content,
		ClientMessageId: m.ClientMessageID,
		CreatedAt:       timestamppb.New(m.CreatedAt),
		Read:            m.Read,
		ReadAt:          readAt,
	}
}

// ToModel converts a wire message back to the domain type.
func (m *ChatMessage) ToModel() *models.Message {
	if m == nil {
		return nil
	}
	msg := &models.Message{
		ID:              m.Id,
		ConversationKey: m.ConversationKey,
		SenderID:        m.SenderId,
		ReceiverID:      m.ReceiverId,
		Content:         m.Content,
		ClientMessageID: m.ClientMessageId,
		CreatedAt:       m.CreatedAt.AsTime(),
		Read:            m.Read,
	}
	if m.ReadAt != nil {
		readAt := m.ReadAt.AsTime()
		msg.ReadAt = &readAt
	}
	return msg
}

func toProtoProfile(p *models.Profile) *Profile {
	if p == nil {
		return nil
	}
	return &Profile{Id: p.ID, Handle: p.Handle, Name: p.Name, AvatarUrl: p.AvatarURL}
}

func toProtoSummary(s *models.ConversationSummary) *ConversationSummary {
	return &ConversationSummary{
		ConversationKey: s.ConversationKey,
		Participants:    s.Participants,
		FriendId:        s.FriendID,
		Friend:          toProtoProfile(s.Friend),
		LastMessage:     toProtoMessage(s.LastMessage),
		UnreadCount:     s.UnreadCount,
		LastActivityAt:  timestamppb.New(s.LastActivityAt),
	}
}

func (p *Profile) ToModel() *models.Profile {
	if p == nil {
		return nil
	}
	return &models.Profile{ID: p.Id, Handle: p.Handle, Name: p.Name, AvatarURL: p.AvatarUrl}
}

func (s *ConversationSummary) ToModel() *models.ConversationSummary {
	if s == nil {
		return nil
	}
	return &models.ConversationSummary{
		ConversationKey: s.ConversationKey,
		Participants:    s.Participants,
		FriendID:        s.FriendId,
		Friend:          s.Friend.ToModel(),
		LastMessage:     s.LastMessage.ToModel(),
		UnreadCount:     s.UnreadCount,
		LastActivityAt:  s.LastActivityAt.AsTime(),
	}
}
