package handler

import (
	"context"

	"google.golang.org/grpc"

	"gosocial-messaging/internal/chat/models"
	"gosocial-messaging/internal/chat/service"
	"gosocial-messaging/internal/common"
	apperrors "gosocial-messaging/pkg/errors"
)

const ChatServiceName = "gosocial.messaging.v1.ChatService"

// ChatServiceServer is the server API of the gRPC chat service.
type ChatServiceServer interface {
	SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error)
	ListMessages(context.Context, *ListMessagesRequest) (*ListMessagesResponse, error)
	MarkRead(context.Context, *MarkReadRequest) (*MarkReadResponse, error)
	ListConversations(context.Context, *ListConversationsRequest) (*ListConversationsResponse, error)
}

func RegisterChatServiceServer(s grpc.ServiceRegistrar, srv ChatServiceServer) {
	s.RegisterService(&ChatServiceDesc, srv)
}

type ChatHandler struct {
	chatService service.ChatService
}

func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func viewerID(ctx context.Context) (string, error) {
	viewer, ok := common.ViewerFromContext(ctx)
	if !ok {
		return "", toStatus(apperrors.ErrMissingIdentity)
	}
	return viewer.UserID, nil
}

func (h *ChatHandler) SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageResponse, error) {
	uid, err := viewerID(ctx)
	if err != nil {
		return nil, err
	}
	res, err := h.chatService.SendMessage(ctx, uid, req.ReceiverId, req.Content, req.ClientMessageId)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SendMessageResponse{Message: toProtoMessage(res.Message), Duplicate: res.Duplicate}, nil
}

func (h *ChatHandler) ListMessages(ctx context.Context, req *ListMessagesRequest) (*ListMessagesResponse, error) {
	uid, err := viewerID(ctx)
	if err != nil {
		return nil, err
	}
	page, err := h.chatService.ListMessages(ctx, uid, req.FriendId, int(req.Page), int(req.Limit))
	if err != nil {
		return nil, toStatus(err)
	}

	msgs := make([]*ChatMessage, 0, len(page.Messages))
	for _, m := range page.Messages {
		msgs = append(msgs, toProtoMessage(m))
	}
	return &ListMessagesResponse{
		Messages: msgs,
		Viewer:   toProtoProfile(page.Viewer),
		Friend:   toProtoProfile(page.Friend),
		Page:     int32(page.Page),
		Limit:    int32(page.Limit),
		HasMore:  page.HasMore,
	}, nil
}

func (h *ChatHandler) MarkRead(ctx context.Context, req *MarkReadRequest) (*MarkReadResponse, error) {
	uid, err := viewerID(ctx)
	if err != nil {
		return nil, err
	}
	updated, err := h.chatService.MarkRead(ctx, uid, req.FriendId)
	if err != nil {
		return nil, toStatus(err)
	}
	return &MarkReadResponse{Updated: updated}, nil
}

func (h *ChatHandler) ListConversations(ctx context.Context, _ *ListConversationsRequest) (*ListConversationsResponse, error) {
	uid, err := viewerID(ctx)
	if err != nil {
		return nil, err
	}
	convs, err := h.chatService.ListConversations(ctx, uid)
	if err != nil {
		return nil, toStatus(err)
	}

	out := make([]*ConversationSummary, 0, len(convs))
	for _, c := range convs {
		out = append(out, toProtoSummary(c))
	}
	return &ListConversationsResponse{Conversations: out, TotalUnread: models.TotalUnread(convs)}, nil
}

func _ChatService_SendMessage_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SendMessageRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChatServiceServer).SendMessage(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + ChatServiceName + "/SendMessage",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ChatServiceServer).SendMessage(ctx, req.(*SendMessageRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ChatService_ListMessages_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ListMessagesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChatServiceServer).ListMessages(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + ChatServiceName + "/ListMessages",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ChatServiceServer).ListMessages(ctx, req.(*ListMessagesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ChatService_MarkRead_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(MarkReadRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChatServiceServer).MarkRead(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + ChatServiceName + "/MarkRead",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ChatServiceServer).MarkRead(ctx, req.(*MarkReadRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ChatService_ListConversations_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ListConversationsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChatServiceServer).ListConversations(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + ChatServiceName + "/ListConversations",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ChatServiceServer).ListConversations(ctx, req.(*ListConversationsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ChatServiceDesc describes the service by hand; messages travel with the
// JSON codec rather than protobuf.
var ChatServiceDesc = grpc.ServiceDesc{
	ServiceName: ChatServiceName,
	HandlerType: (*ChatServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SendMessage", Handler: _ChatService_SendMessage_Handler},
		{MethodName: "ListMessages", Handler: _ChatService_ListMessages_Handler},
		{MethodName: "MarkRead", Handler: _ChatService_MarkRead_Handler},
		{MethodName: "ListConversations", Handler: _ChatService_ListConversations_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gosocial/messaging/v1/chat",
}
