package wire

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gosocial-messaging/internal/changefeed"
	"gosocial-messaging/internal/chat/handler"
	"gosocial-messaging/internal/chat/repository"
	"gosocial-messaging/internal/chat/service"
	"gosocial-messaging/internal/common"
	"gosocial-messaging/internal/config"
	"gosocial-messaging/internal/user"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{Driver: config.DriverMemory},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/internal/metrics"},
		Auth: config.AuthConfig{
			JWTSecret: "secret",
			Issuer:    "gosocial",
			TokenTTL:  time.Hour,
		},
		Chat: config.ChatConfig{
			DefaultPageSize:  50,
			MaxPageSize:      200,
			MaxContentLength: 4000,
			SendRateLimit:    30,
			SendRateWindow:   time.Minute,
		},
	}
}

func TestProvideStorage_Memory(t *testing.T) {
	s, cleanup, err := ProvideStorage(memoryConfig(), common.NopLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.IsType(t, &repository.MemoryChatRepository{}, ProvideRepository(s))
	assert.IsType(t, &user.StaticDirectory{}, ProvideProfiles(s))
}

func TestProvideStorage_UnknownDriver(t *testing.T) {
	cfg := memoryConfig()
	cfg.Storage.Driver = "sqlite"

	_, _, err := ProvideStorage(cfg, common.NopLogger())
	assert.Error(t, err)
}

func TestProvideNotifier_MemoryWhenRedisDisabled(t *testing.T) {
	n, cleanup, err := ProvideNotifier(memoryConfig(), common.NopLogger())
	require.NoError(t, err)
	defer cleanup()
	assert.IsType(t, &changefeed.MemoryNotifier{}, n)
}

func TestProvideRateLimiter(t *testing.T) {
	cfg := memoryConfig()
	assert.NotNil(t, ProvideRateLimiter(cfg))

	cfg.Chat.SendRateLimit = 0
	assert.Nil(t, ProvideRateLimiter(cfg))
}

func TestProvideAuthenticator(t *testing.T) {
	cfg := memoryConfig()
	tokens := common.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	token, err := tokens.GenerateToken("alice", "")
	require.NoError(t, err)

	viewer, err := ProvideAuthenticator(cfg).Resolve("Bearer "+token, "")
	require.NoError(t, err)
	assert.Equal(t, "alice", viewer.UserID)

	cfg.Auth.JWTSecret = ""
	cfg.Auth.TrustHeader = true
	auth := ProvideAuthenticator(cfg)
	_, err = auth.Resolve("Bearer "+token, "")
	assert.Error(t, err)
	viewer, err = auth.Resolve("", "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", viewer.UserID)
}

func TestProvideRouter_MetricsDisabled(t *testing.T) {
	cfg := memoryConfig()
	cfg.Metrics.Enabled = false
	svc := service.NewChatService(repository.NewMemoryChatRepository(), nil, nil, nil, nil, common.NopLogger(), cfg.Chat)
	router := ProvideRouter(cfg, handler.NewHTTPHandler(svc, nil, nil), ProvideAuthenticator(cfg), ProvideMetrics(), nil)

	for _, path := range []string{"/metrics", "/internal/metrics"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.NotEqual(t, http.StatusOK, rr.Code, path)
		assert.NotContains(t, rr.Body.String(), "gosocial_messaging", path)
	}
}

// Builds the same graph as the injector on the memory backend.
func TestApplicationGraph(t *testing.T) {
	cfg := memoryConfig()
	logger := common.NopLogger()

	storage, cleanup, err := ProvideStorage(cfg, logger)
	require.NoError(t, err)
	defer cleanup()
	feed, feedCleanup, err := ProvideNotifier(cfg, logger)
	require.NoError(t, err)
	defer feedCleanup()

	m := ProvideMetrics()
	svc := service.NewChatService(ProvideRepository(storage), ProvideProfiles(storage), feed,
		ProvideRateLimiter(cfg), m, logger, ProvideChatConfig(cfg))
	auth := ProvideAuthenticator(cfg)

	router := ProvideRouter(cfg, handler.NewHTTPHandler(svc, feed, logger), auth, m, logger)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/internal/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "gosocial_messaging_messages_sent_total")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	srv := ProvideGRPCServer(handler.NewChatHandler(svc), auth, logger)
	defer srv.Stop()
	info, ok := srv.GetServiceInfo()[handler.ChatServiceName]
	require.True(t, ok)
	assert.Len(t, info.Methods, 4)
}
