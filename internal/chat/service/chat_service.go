package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"gosocial-messaging/internal/changefeed"
	"gosocial-messaging/internal/chat/models"
	"gosocial-messaging/internal/chat/repository"
	"gosocial-messaging/internal/common"
	"gosocial-messaging/internal/config"
	"gosocial-messaging/internal/metrics"
	"gosocial-messaging/internal/user"
	apperrors "gosocial-messaging/pkg/errors"
)

const (
	// limiter state is pruned once every pruneEvery sends
	pruneEvery = 1024
	// feed updates outlive the request that caused them
	touchTimeout = 5 * time.Second
)

// ChatService defines the interface exposed to the handler layer
type ChatService interface {
	SendMessage(ctx context.Context, senderID, receiverID, content, clientMessageID string) (*models.SendResult, error)
	ListMessages(ctx context.Context, viewerID, friendID string, page, limit int) (*models.MessagePage, error)
	MarkRead(ctx context.Context, viewerID, friendID string) (int64, error)
	ListConversations(ctx context.Context, viewerID string) ([]*models.ConversationSummary, error)
	RebuildConversation(ctx context.Context, viewerID, friendID string) (*models.ConversationSummary, error)

	// ConversationState and InboxState fingerprint the stored pair records
	// behind ListMessages and ListConversations without reading the ledger.
	ConversationState(ctx context.Context, viewerID, friendID string) (string, error)
	InboxState(ctx context.Context, viewerID string) (string, error)
}

type chatService struct {
	repo     repository.ChatRepository
	profiles user.ProfileDirectory
	feed     changefeed.Notifier
	limiter  *common.RateLimiter
	metrics  *metrics.Metrics
	logger   *slog.Logger
	cfg      config.ChatConfig
	now      func() time.Time
	sends    atomic.Uint64
}

// Constructor used in DI/wire
func NewChatService(
	repo repository.ChatRepository,
	profiles user.ProfileDirectory,
	feed changefeed.Notifier,
	limiter *common.RateLimiter,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg config.ChatConfig,
) ChatService {
	return newChatService(repo, profiles, feed, limiter, m, logger, cfg, time.Now)
}

func newChatService(
	repo repository.ChatRepository,
	profiles user.ProfileDirectory,
	feed changefeed.Notifier,
	limiter *common.RateLimiter,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg config.ChatConfig,
	now func() time.Time,
) *chatService {
	if logger == nil {
		logger = common.NopLogger()
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 50
	}
	if cfg.MaxPageSize < cfg.DefaultPageSize {
		cfg.MaxPageSize = cfg.DefaultPageSize
	}
	return &chatService{
		repo:     repo,
		profiles: profiles,
		feed:     feed,
		limiter:  limiter,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
		now:      now,
	}
}

// SendMessage validates and stores a message and updates the pair record.
// A repeated clientMessageID from the same sender returns the stored
// message without writing anything, and doesn't count against the limit.
func (s *chatService) SendMessage(ctx context.Context, senderID, receiverID, content, clientMessageID string) (*models.SendResult, error) {
	if err := validatePair(senderID, receiverID, apperrors.ErrMissingReceiver, "receiverId"); err != nil {
		return nil, err
	}
	content, err := common.ValidateContent(content, s.cfg.MaxContentLength)
	if err != nil {
		return nil, err
	}
	clientMessageID, err = common.ValidateClientMessageID(clientMessageID)
	if err != nil {
		return nil, err
	}

	// the ledger round-trips milliseconds exactly in every backend
	now := s.now().UTC().Truncate(time.Millisecond)
	reservation := s.limiter.Reserve(senderID, now)
	if reservation == nil {
		return s.replayOverLimit(ctx, senderID, clientMessageID)
	}
	if s.sends.Add(1)%pruneEvery == 0 {
		s.limiter.Prune(now)
	}

	msg := &models.Message{
		ID:              common.NewMessageID(now),
		ConversationKey: models.ConversationKey(senderID, receiverID),
		SenderID:        senderID,
		ReceiverID:      receiverID,
		Content:         content,
		ClientMessageID: clientMessageID,
		CreatedAt:       now,
	}

	stored, duplicate, err := s.repo.AppendMessage(ctx, msg)
	if err != nil {
		reservation.Cancel(now)
		return nil, s.storageError(ctx, "send", "failed to send message", err,
			"sender_id", senderID, "receiver_id", receiverID)
	}
	if duplicate {
		reservation.Cancel(now)
	}
	return s.sent(ctx, stored, duplicate), nil
}

// replayOverLimit answers a sender that is over the limit. A retry of a
// message that is already stored still gets it back.
func (s *chatService) replayOverLimit(ctx context.Context, senderID, clientMessageID string) (*models.SendResult, error) {
	if clientMessageID != "" {
		existing, err := s.repo.FindByClientMessageID(ctx, senderID, clientMessageID)
		if err != nil {
			return nil, s.storageError(ctx, "send", "failed to send message", err,
				"sender_id", senderID, "client_message_id", clientMessageID)
		}
		if existing != nil {
			return s.sent(ctx, existing, true), nil
		}
	}
	s.metrics.ObserveFailure("send", string(apperrors.CodeRateLimited))
	return nil, apperrors.ErrTooManyMessages
}

// sent records a stored message. Duplicates touch the feed too: the first
// attempt may have stored the message and lost its own update.
func (s *chatService) sent(ctx context.Context, stored *models.Message, duplicate bool) *models.SendResult {
	s.metrics.ObserveSend(duplicate)
	s.touch(ctx,
		changefeed.ConversationTopic(stored.ConversationKey),
		changefeed.InboxTopic(stored.SenderID),
		changefeed.InboxTopic(stored.ReceiverID),
	)
	return &models.SendResult{Message: stored, Duplicate: duplicate}
}

// ListMessages returns one page of the conversation. Page 1 is the newest
// window; each page is in ascending order. Profiles are looked up while
// the ledger is read.
func (s *chatService) ListMessages(ctx context.Context, viewerID, friendID string, page, limit int) (*models.MessagePage, error) {
	if err := validatePair(viewerID, friendID, apperrors.ErrMissingFriend, "friendId"); err != nil {
		return nil, err
	}
	page, limit = s.normalizePage(page, limit)
	key := models.ConversationKey(viewerID, friendID)

	var (
		msgs     []*models.Message
		profiles map[string]*models.Profile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		// one extra row tells whether an older page exists
		msgs, err = s.repo.ListMessages(gctx, key, (page-1)*limit, limit+1)
		return err
	})
	g.Go(func() error {
		profiles = s.lookupProfiles(gctx, viewerID, friendID)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, s.storageError(ctx, "list_messages", "failed to list messages", err,
			"viewer_id", viewerID, "conversation_key", key)
	}

	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[len(msgs)-limit:]
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}

	return &models.MessagePage{
		Messages: msgs,
		Viewer:   profiles[viewerID],
		Friend:   profiles[friendID],
		Page:     page,
		Limit:    limit,
		HasMore:  hasMore,
	}, nil
}

// MarkRead flips the viewer's unread messages from friendID. It is
// idempotent and succeeds on a conversation that doesn't exist yet.
func (s *chatService) MarkRead(ctx context.Context, viewerID, friendID string) (int64, error) {
	if err := validatePair(viewerID, friendID, apperrors.ErrMissingFriend, "friendId"); err != nil {
		return 0, err
	}
	key := models.ConversationKey(viewerID, friendID)

	updated, err := s.repo.MarkRead(ctx, key, viewerID, s.now().UTC().Truncate(time.Millisecond))
	if err != nil {
		return 0, s.storageError(ctx, "mark_read", "failed to mark messages as read", err,
			"viewer_id", viewerID, "conversation_key", key)
	}
	s.metrics.ObserveMarkRead(updated)

	if updated > 0 {
		s.touch(ctx,
			changefeed.ConversationTopic(key),
			changefeed.InboxTopic(viewerID),
			changefeed.InboxTopic(friendID),
		)
	}
	return updated, nil
}

func (s *chatService) ListConversations(ctx context.Context, viewerID string) ([]*models.ConversationSummary, error) {
	if err := validateViewer(viewerID); err != nil {
		return nil, err
	}

	convs, err := s.repo.ListConversations(ctx, viewerID)
	if err != nil {
		return nil, s.storageError(ctx, "list_conversations", "failed to list conversations", err,
			"viewer_id", viewerID)
	}

	friendIDs := make([]string, 0, len(convs))
	for _, c := range convs {
		friendIDs = append(friendIDs, c.Other(viewerID))
	}
	profiles := s.lookupProfiles(ctx, friendIDs...)

	summaries := make([]*models.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		summary := c.Summary(viewerID)
		summary.Friend = profiles[summary.FriendID]
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// RebuildConversation recomputes the pair record from the ledger. Only a
// participant can ask for it, since the key is derived from the viewer.
func (s *chatService) RebuildConversation(ctx context.Context, viewerID, friendID string) (*models.ConversationSummary, error) {
	if err := validatePair(viewerID, friendID, apperrors.ErrMissingFriend, "friendId"); err != nil {
		return nil, err
	}
	key := models.ConversationKey(viewerID, friendID)

	conv, err := s.repo.RebuildConversation(ctx, key, s.now().UTC().Truncate(time.Millisecond))
	if errors.Is(err, repository.ErrConversationNotFound) {
		return nil, apperrors.ErrConversationEmpty
	}
	if err != nil {
		return nil, s.storageError(ctx, "rebuild", "failed to rebuild conversation", err,
			"viewer_id", viewerID, "conversation_key", key)
	}

	s.touch(ctx,
		changefeed.ConversationTopic(key),
		changefeed.InboxTopic(viewerID),
		changefeed.InboxTopic(friendID),
	)

	summary := conv.Summary(viewerID)
	summary.Friend = s.lookupProfiles(ctx, friendID)[friendID]
	return summary, nil
}

func (s *chatService) ConversationState(ctx context.Context, viewerID, friendID string) (string, error) {
	if err := validatePair(viewerID, friendID, apperrors.ErrMissingFriend, "friendId"); err != nil {
		return "", err
	}
	key := models.ConversationKey(viewerID, friendID)

	conv, err := s.repo.GetConversation(ctx, key)
	if errors.Is(err, repository.ErrConversationNotFound) {
		return key, nil
	}
	if err != nil {
		return "", s.storageError(ctx, "conversation_state", "failed to load conversation", err,
			"viewer_id", viewerID, "conversation_key", key)
	}
	return conv.Fingerprint(), nil
}

func (s *chatService) InboxState(ctx context.Context, viewerID string) (string, error) {
	if err := validateViewer(viewerID); err != nil {
		return "", err
	}

	convs, err := s.repo.ListConversations(ctx, viewerID)
	if err != nil {
		return "", s.storageError(ctx, "inbox_state", "failed to list conversations", err,
			"viewer_id", viewerID)
	}
	parts := make([]string, 0, len(convs))
	for _, c := range convs {
		parts = append(parts, c.Fingerprint())
	}
	return strings.Join(parts, "|"), nil
}

func (s *chatService) normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = s.cfg.DefaultPageSize
	}
	if limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}
	return page, limit
}

// lookupProfiles never fails: missing profiles only degrade the response.
func (s *chatService) lookupProfiles(ctx context.Context, ids ...string) map[string]*models.Profile {
	if s.profiles == nil || len(ids) == 0 {
		return nil
	}
	profiles, err := s.profiles.GetProfiles(ctx, ids)
	if err != nil {
		s.logger.WarnContext(ctx, "profile lookup failed", "ids", ids, "error", err)
		return nil
	}
	return profiles
}

func (s *chatService) touch(ctx context.Context, topics ...string) {
	if s.feed == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), touchTimeout)
	defer cancel()
	if err := s.feed.Touch(ctx, topics...); err != nil {
		s.logger.WarnContext(ctx, "change feed update failed", "topics", topics, "error", err)
	}
}

func (s *chatService) storageError(ctx context.Context, op, msg string, err error, attrs ...any) error {
	s.logger.ErrorContext(ctx, msg, append(attrs, "error", err)...)
	s.metrics.ObserveFailure(op, string(apperrors.CodeInternal))
	return apperrors.Storage(msg, err)
}

func validateViewer(viewerID string) error {
	if viewerID == "" {
		return apperrors.ErrMissingIdentity
	}
	return common.ValidateUserID("viewerId", viewerID)
}

// validatePair checks the viewer and the other party of a conversation.
func validatePair(viewerID, otherID string, missing error, field string) error {
	if err := validateViewer(viewerID); err != nil {
		return err
	}
	if otherID == "" {
		return missing
	}
	if err := common.ValidateUserID(field, otherID); err != nil {
		return err
	}
	if viewerID == otherID {
		if field == "receiverId" {
			return apperrors.ErrSelfConversation
		}
		return apperrors.Validation(field, "cannot open a conversation with yourself")
	}
	return nil
}
