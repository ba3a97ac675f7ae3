package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// ChatClient calls the gRPC chat service with the JSON codec and a bearer
// token in the "authorization" metadata.
type ChatClient struct {
	cc    grpc.ClientConnInterface
	token string
}

func NewChatClient(cc grpc.ClientConnInterface, token string) *ChatClient {
	return &ChatClient{cc: cc, token: token}
}

func (c *ChatClient) invoke(ctx context.Context, method string, in, out interface{}, opts ...grpc.CallOption) error {
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+ChatServiceName+"/"+method, in, out, opts...)
}

func (c *ChatClient) SendMessage(ctx context.Context, in *SendMessageRequest, opts ...grpc.CallOption) (*SendMessageResponse, error) {
	out := new(SendMessageResponse)
	if err := c.invoke(ctx, "SendMessage", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ChatClient) ListMessages(ctx context.Context, in *ListMessagesRequest, opts ...grpc.CallOption) (*ListMessagesResponse, error) {
	out := new(ListMessagesResponse)
	if err := c.invoke(ctx, "ListMessages", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ChatClient) MarkRead(ctx context.Context, in *MarkReadRequest, opts ...grpc.CallOption) (*MarkReadResponse, error) {
	out := new(MarkReadResponse)
	if err := c.invoke(ctx, "MarkRead", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ChatClient) ListConversations(ctx context.Context, in *ListConversationsRequest, opts ...grpc.CallOption) (*ListConversationsResponse, error) {
	out := new(ListConversationsResponse)
	if err := c.invoke(ctx, "ListConversations", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
