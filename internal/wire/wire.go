//go:build wireinject
// +build wireinject

package wire

import (
	"github.com/google/wire"

	"gosocial-messaging/internal/chat/handler"
	"gosocial-messaging/internal/chat/service"
)

var storageSet = wire.NewSet(
	ProvideStorage,
	ProvideRepository,
	ProvideProfiles,
)

var chatSet = wire.NewSet(
	ProvideChatConfig,
	ProvideRateLimiter,
	ProvideMetrics,
	ProvideNotifier,
	service.NewChatService,
	handler.NewHTTPHandler,
	handler.NewChatHandler,
)

func InitializeApplication() (*Application, func(), error) {
	wire.Build(
		ProvideConfig,
		ProvideLogger,
		storageSet,
		chatSet,
		ProvideAuthenticator,
		ProvideRouter,
		ProvideGRPCServer,
		wire.Struct(new(Application), "*"),
	)
	return nil, nil, nil
}
