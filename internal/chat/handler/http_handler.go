// Package handler exposes the chat service over REST and gRPC.
package handler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"gosocial-messaging/internal/changefeed"
	"gosocial-messaging/internal/chat/models"
	"gosocial-messaging/internal/chat/service"
	"gosocial-messaging/internal/common"
	"gosocial-messaging/internal/metrics"
	apperrors "gosocial-messaging/pkg/errors"
)

const (
	APIPrefix    = "/api/v1"
	maxBodyBytes = 64 << 10
)

type HTTPHandler struct {
	chatService service.ChatService
	feed        changefeed.Notifier
	logger      *slog.Logger
}

func NewHTTPHandler(chatService service.ChatService, feed changefeed.Notifier, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = common.NopLogger()
	}
	return &HTTPHandler{chatService: chatService, feed: feed, logger: logger}
}

type routerOptions struct {
	metricsPath string
}

type RouterOption func(*routerOptions)

// WithMetricsPath mounts the Prometheus endpoint at path instead of /metrics.
func WithMetricsPath(path string) RouterOption {
	return func(o *routerOptions) {
		if path != "" {
			o.metricsPath = path
		}
	}
}

// NewRouter mounts the REST API under /api/v1 behind auth, next to the
// public health and metrics endpoints. A nil m leaves metrics out.
func NewRouter(h *HTTPHandler, auth *common.Authenticator, m *metrics.Metrics, logger *slog.Logger, opts ...RouterOption) *mux.Router {
	o := routerOptions{metricsPath: "/metrics"}
	for _, opt := range opts {
		opt(&o)
	}

	router := mux.NewRouter()
	router.Use(common.CORSMiddleware)
	if logger != nil {
		router.Use(common.LoggingMiddleware(logger))
	}
	router.Use(m.Middleware)

	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	if m != nil {
		router.Handle(o.metricsPath, m.Handler()).Methods(http.MethodGet)
	}

	api := router.PathPrefix(APIPrefix).Subrouter()
	api.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	protected := api.NewRoute().Subrouter()
	protected.Use(common.HTTPAuthMiddleware(auth))
	protected.HandleFunc("/messages", h.SendMessage).Methods(http.MethodPost)
	protected.HandleFunc("/messages", h.ListMessages).Methods(http.MethodGet)
	protected.HandleFunc("/messages/mark-read", h.MarkRead).Methods(http.MethodPost)
	protected.HandleFunc("/conversations", h.ListConversations).Methods(http.MethodGet)
	protected.HandleFunc("/conversations/{friendId}/rebuild", h.RebuildConversation).Methods(http.MethodPost)

	// preflight requests never carry credentials
	router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	return router
}

type sendMessageRequest struct {
	ReceiverID      string `json:"receiverId"`
	Content         string `json:"content"`
	ClientMessageID string `json:"clientMessageId,omitempty"`
}

type markReadRequest struct {
	FriendID     string `json:"friendId"`
	OtherPartyID string `json:"otherPartyId,omitempty"`
}

type sendMessageResponse struct {
	Success bool `json:"success"`
	*models.SendResult
}

type messagePageResponse struct {
	Success bool `json:"success"`
	*models.MessagePage
}

type markReadResponse struct {
	Success bool  `json:"success"`
	Updated int64 `json:"updated"`
}

type conversationsResponse struct {
	Success       bool                          `json:"success"`
	Conversations []*models.ConversationSummary `json:"conversations"`
	TotalUnread   int64                         `json:"totalUnread"`
}

type conversationResponse struct {
	Success      bool                        `json:"success"`
	Conversation *models.ConversationSummary `json:"conversation"`
}

type errorResponse struct {
	Success bool           `json:"success"`
	Error   string         `json:"error"`
	Code    apperrors.Code `json:"code"`
	Field   string         `json:"field,omitempty"`
}

func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *HTTPHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	viewer, ok := common.ViewerFromContext(r.Context())
	if !ok {
		h.writeError(w, r, apperrors.ErrMissingIdentity)
		return
	}

	var req sendMessageRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.chatService.SendMessage(r.Context(), viewer.UserID, strings.TrimSpace(req.ReceiverID), req.Content, req.ClientMessageID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sendMessageResponse{Success: true, SendResult: res})
}

func (h *HTTPHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	viewer, ok := common.ViewerFromContext(r.Context())
	if !ok {
		h.writeError(w, r, apperrors.ErrMissingIdentity)
		return
	}

	query := r.URL.Query()
	friendID := strings.TrimSpace(query.Get("friendId"))
	page, err := queryInt(query.Get("page"), "page")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, err := queryInt(query.Get("limit"), "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// the tag is computed before the data so a concurrent write can only
	// make it older than the body, never newer
	topic := changefeed.ConversationTopic(models.ConversationKey(viewer.UserID, friendID))
	etag := h.etag(r.Context(), topic, func(ctx context.Context) (string, error) {
		return h.chatService.ConversationState(ctx, viewer.UserID, friendID)
	}, viewer.UserID, friendID, strconv.Itoa(page), strconv.Itoa(limit))
	if notModified(w, r, etag) {
		return
	}

	result, err := h.chatService.ListMessages(r.Context(), viewer.UserID, friendID, page, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	setETag(w, etag)
	writeJSON(w, http.StatusOK, messagePageResponse{Success: true, MessagePage: result})
}

func (h *HTTPHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	viewer, ok := common.ViewerFromContext(r.Context())
	if !ok {
		h.writeError(w, r, apperrors.ErrMissingIdentity)
		return
	}

	var req markReadRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	friendID := strings.TrimSpace(req.FriendID)
	if friendID == "" {
		friendID = strings.TrimSpace(req.OtherPartyID)
	}

	updated, err := h.chatService.MarkRead(r.Context(), viewer.UserID, friendID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, markReadResponse{Success: true, Updated: updated})
}

func (h *HTTPHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	viewer, ok := common.ViewerFromContext(r.Context())
	if !ok {
		h.writeError(w, r, apperrors.ErrMissingIdentity)
		return
	}

	etag := h.etag(r.Context(), changefeed.InboxTopic(viewer.UserID), func(ctx context.Context) (string, error) {
		return h.chatService.InboxState(ctx, viewer.UserID)
	}, viewer.UserID)
	if notModified(w, r, etag) {
		return
	}

	convs, err := h.chatService.ListConversations(r.Context(), viewer.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	setETag(w, etag)
	writeJSON(w, http.StatusOK, conversationsResponse{
		Success:       true,
		Conversations: convs,
		TotalUnread:   models.TotalUnread(convs),
	})
}

func (h *HTTPHandler) RebuildConversation(w http.ResponseWriter, r *http.Request) {
	viewer, ok := common.ViewerFromContext(r.Context())
	if !ok {
		h.writeError(w, r, apperrors.ErrMissingIdentity)
		return
	}

	summary, err := h.chatService.RebuildConversation(r.Context(), viewer.UserID, mux.Vars(r)["friendId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conversationResponse{Success: true, Conversation: summary})
}

// etag derives an entity tag from the topic version, the stored state
// and the request parameters. The stored state keeps a lost version bump
// from pinning an old tag. It returns "" when either can't be read; the
// response is then served without one.
func (h *HTTPHandler) etag(ctx context.Context, topic string, state func(context.Context) (string, error), parts ...string) string {
	if h.feed == nil {
		return ""
	}
	version, err := h.feed.Version(ctx, topic)
	if err != nil {
		h.logger.WarnContext(ctx, "change feed version unavailable", "topic", topic, "error", err)
		return ""
	}
	stored, err := state(ctx)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeInternal {
			h.logger.WarnContext(ctx, "stored state unavailable", "topic", topic, "error", err)
		}
		return ""
	}
	sum := sha256.Sum256([]byte(topic + "\x00" + version + "\x00" + stored + "\x00" + strings.Join(parts, "\x00")))
	return `"` + hex.EncodeToString(sum[:12]) + `"`
}

func notModified(w http.ResponseWriter, r *http.Request, etag string) bool {
	if etag == "" {
		return false
	}
	for _, candidate := range strings.Split(r.Header.Get("If-None-Match"), ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == etag || candidate == "*" {
			setETag(w, etag)
			w.WriteHeader(http.StatusNotModified)
			return true
		}
	}
	return false
}

func setETag(w http.ResponseWriter, etag string) {
	if etag == "" {
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "private, no-cache")
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.Validation("body", "request body is too large")
		}
		return apperrors.Validation("body", "invalid request body")
	}
	return nil
}

// queryInt parses an optional positive integer; empty means zero.
func queryInt(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.Validation(field, field+" must be a positive number")
	}
	return n, nil
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.CodeOf(err)
	resp := errorResponse{Success: false, Error: publicMessage(err), Code: code}
	if appErr, ok := apperrors.As(err); ok {
		resp.Field = appErr.Field
	}
	if code == apperrors.CodeInternal {
		h.logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, httpStatus(code), resp)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
