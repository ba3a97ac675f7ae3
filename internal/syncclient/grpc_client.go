package syncclient

import (
	"context"

	"gosocial-messaging/internal/chat/handler"
	"gosocial-messaging/internal/chat/models"
)

// GRPCClient serves the views over the gRPC chat service.
type GRPCClient struct {
	client *handler.ChatClient
}

func NewGRPCClient(client *handler.ChatClient) *GRPCClient {
	return &GRPCClient{client: client}
}

func (c *GRPCClient) SendMessage(ctx context.Context, receiverID, content, clientMessageID string) (*models.SendResult, error) {
	resp, err := c.client.SendMessage(ctx, &handler.SendMessageRequest{
		ReceiverId:      receiverID,
		Content:         content,
		ClientMessageId: clientMessageID,
	})
	if err != nil {
		return nil, handler.FromStatus(err)
	}
	return &models.SendResult{Message: resp.Message.ToModel(), Duplicate: resp.Duplicate}, nil
}

func (c *GRPCClient) ListMessages(ctx context.Context, friendID string, page, limit int) (*models.MessagePage, error) {
	resp, err := c.client.ListMessages(ctx, &handler.ListMessagesRequest{
		FriendId: friendID,
		Page:     int32(page),
		Limit:    int32(limit),
	})
	if err != nil {
		return nil, handler.FromStatus(err)
	}

	msgs := make([]*models.Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		msgs = append(msgs, m.ToModel())
	}
	return &models.MessagePage{
		Messages: msgs,
		Viewer:   resp.Viewer.ToModel(),
		Friend:   resp.Friend.ToModel(),
		Page:     int(resp.Page),
		Limit:    int(resp.Limit),
		HasMore:  resp.HasMore,
	}, nil
}

func (c *GRPCClient) MarkRead(ctx context.Context, friendID string) (int64, error) {
	resp, err := c.client.MarkRead(ctx, &handler.MarkReadRequest{FriendId: friendID})
	if err != nil {
		return 0, handler.FromStatus(err)
	}
	return resp.Updated, nil
}

func (c *GRPCClient) ListConversations(ctx context.Context) (*Inbox, error) {
	resp, err := c.client.ListConversations(ctx, &handler.ListConversationsRequest{})
	if err != nil {
		return nil, handler.FromStatus(err)
	}

	convs := make([]*models.ConversationSummary, 0, len(resp.Conversations))
	for _, s := range resp.Conversations {
		convs = append(convs, s.ToModel())
	}
	return &Inbox{Conversations: convs, TotalUnread: resp.TotalUnread}, nil
}
