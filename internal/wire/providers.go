package wire

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"gosocial-messaging/internal/changefeed"
	"gosocial-messaging/internal/chat/handler"
	"gosocial-messaging/internal/chat/repository"
	"gosocial-messaging/internal/common"
	"gosocial-messaging/internal/config"
	"gosocial-messaging/internal/dbmongo"
	"gosocial-messaging/internal/dbmysql"
	"gosocial-messaging/internal/metrics"
	"gosocial-messaging/internal/user"
)

type Application struct {
	Config     *config.Config
	Logger     *slog.Logger
	Router     *mux.Router
	GRPCServer *grpc.Server
}

// Storage pairs the ledger backend with the profile directory living in
// the same database.
type Storage struct {
	Repo     repository.ChatRepository
	Profiles user.ProfileDirectory
}

const startupTimeout = 10 * time.Second

func ProvideConfig() (*config.Config, error) {
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ProvideLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	logger, closeFn, err := common.NewLogger(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return logger.With("service", "messaging"), closeFn, nil
}

func ProvideChatConfig(cfg *config.Config) config.ChatConfig {
	return cfg.Chat
}

// ProvideStorage opens the backend named by STORAGE_DRIVER and prepares
// its schema.
func ProvideStorage(cfg *config.Config, logger *slog.Logger) (*Storage, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverMySQL:
		db, err := dbmysql.NewMySQL(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := dbmysql.Migrate(db); err != nil {
			dbmysql.Close(db)
			return nil, nil, err
		}
		cleanup := func() {
			if err := dbmysql.Close(db); err != nil {
				logger.Warn("failed to close MySQL", "error", err)
			}
		}
		return &Storage{
			Repo:     repository.NewChatRepository(db),
			Profiles: user.NewUserRepository(db),
		}, cleanup, nil

	case config.DriverMongo:
		client, err := dbmongo.NewMongoConnection(cfg)
		if err != nil {
			return nil, nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
		defer cancel()
		if err := client.EnsureIndexes(ctx); err != nil {
			client.Close(context.Background())
			return nil, nil, err
		}
		logger.Info("connected to MongoDB", "database", cfg.MongoDB.Database, "transactions", client.Transactions)
		cleanup := func() {
			ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
			defer cancel()
			if err := client.Close(ctx); err != nil {
				logger.Warn("failed to close MongoDB", "error", err)
			}
		}
		return &Storage{
			Repo:     repository.NewMongoChatRepository(client),
			Profiles: user.NewMongoDirectory(client),
		}, cleanup, nil

	case config.DriverMemory:
		logger.Warn("using in-memory storage, data is lost on restart")
		return &Storage{
			Repo:     repository.NewMemoryChatRepository(),
			Profiles: user.NewStaticDirectory(),
		}, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

func ProvideRepository(s *Storage) repository.ChatRepository {
	return s.Repo
}

func ProvideProfiles(s *Storage) user.ProfileDirectory {
	return s.Profiles
}

// ProvideNotifier uses Redis when enabled so every replica sees the same
// versions; a single replica can keep them in memory.
func ProvideNotifier(cfg *config.Config, logger *slog.Logger) (changefeed.Notifier, func(), error) {
	if !cfg.Redis.Enabled {
		return changefeed.NewMemoryNotifier(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("connected to Redis", "addr", cfg.Redis.Addr)

	return changefeed.NewRedisNotifier(rdb), func() { rdb.Close() }, nil
}

func ProvideMetrics() *metrics.Metrics {
	return metrics.New()
}

func ProvideRateLimiter(cfg *config.Config) *common.RateLimiter {
	return common.NewRateLimiter(cfg.Chat.SendRateLimit, cfg.Chat.SendRateWindow)
}

func ProvideAuthenticator(cfg *config.Config) *common.Authenticator {
	var tokens *common.TokenManager
	if cfg.Auth.JWTSecret != "" {
		tokens = common.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	}
	return common.NewAuthenticator(tokens, cfg.Auth.TrustHeader)
}

// ProvideRouter leaves the metrics endpoint and request metrics out when
// they are disabled.
func ProvideRouter(cfg *config.Config, h *handler.HTTPHandler, auth *common.Authenticator, m *metrics.Metrics, logger *slog.Logger) *mux.Router {
	if !cfg.Metrics.Enabled {
		m = nil
	}
	return handler.NewRouter(h, auth, m, logger, handler.WithMetricsPath(cfg.Metrics.Path))
}

func ProvideGRPCServer(h *handler.ChatHandler, auth *common.Authenticator, logger *slog.Logger) *grpc.Server {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(
		common.LoggingUnaryInterceptor(logger),
		common.AuthInterceptor(auth),
	))
	handler.RegisterChatServiceServer(s, h)
	return s
}
