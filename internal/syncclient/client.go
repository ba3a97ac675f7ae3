// Package syncclient is the client half of the messaging protocol: an API
// client for the REST contract and the polling views built on it.
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"gosocial-messaging/internal/chat/models"
	apperrors "gosocial-messaging/pkg/errors"
)

// API is the part of the messaging service the views depend on.
type API interface {
	SendMessage(ctx context.Context, receiverID, content, clientMessageID string) (*models.SendResult, error)
	ListMessages(ctx context.Context, friendID string, page, limit int) (*models.MessagePage, error)
	MarkRead(ctx context.Context, friendID string) (int64, error)
	ListConversations(ctx context.Context) (*Inbox, error)
}

type Inbox struct {
	Conversations []*models.ConversationSummary `json:"conversations"`
	TotalUnread   int64                         `json:"totalUnread"`
}

type cachedResponse struct {
	etag string
	body []byte
}

// HTTPClient speaks the REST contract under /api/v1. GET responses that
// carry an ETag are cached and revalidated with If-None-Match, so an
// unchanged conversation costs the server a version lookup only.
type HTTPClient struct {
	baseURL     string
	token       string
	gatewayUser string
	httpClient  *http.Client

	mu    sync.Mutex
	cache map[string]cachedResponse
}

type Option func(*HTTPClient)

func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.httpClient = c }
}

// WithGatewayUser sends the viewer id in X-User-ID instead of a token, for
// deployments behind a trusted gateway.
func WithGatewayUser(userID string) Option {
	return func(h *HTTPClient) { h.gatewayUser = userID }
}

func NewHTTPClient(baseURL, token string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/") + "/api/v1",
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		cache:      make(map[string]cachedResponse),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) SendMessage(ctx context.Context, receiverID, content, clientMessageID string) (*models.SendResult, error) {
	body := map[string]string{"receiverId": receiverID, "content": content}
	if clientMessageID != "" {
		body["clientMessageId"] = clientMessageID
	}
	var out models.SendResult
	if err := c.do(ctx, http.MethodPost, "/messages", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ListMessages(ctx context.Context, friendID string, page, limit int) (*models.MessagePage, error) {
	q := url.Values{}
	q.Set("friendId", friendID)
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out models.MessagePage
	if err := c.do(ctx, http.MethodGet, "/messages?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) MarkRead(ctx context.Context, friendID string) (int64, error) {
	var out struct {
		Updated int64 `json:"updated"`
	}
	if err := c.do(ctx, http.MethodPost, "/messages/mark-read", map[string]string{"friendId": friendID}, &out); err != nil {
		return 0, err
	}
	return out.Updated, nil
}

func (c *HTTPClient) ListConversations(ctx context.Context) (*Inbox, error) {
	var out Inbox
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RebuildConversation asks the server to recompute the pair record.
func (c *HTTPClient) RebuildConversation(ctx context.Context, friendID string) (*models.ConversationSummary, error) {
	var out struct {
		Conversation *models.ConversationSummary `json:"conversation"`
	}
	if err := c.do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(friendID)+"/rebuild", nil, &out); err != nil {
		return nil, err
	}
	return out.Conversation, nil
}

type errorEnvelope struct {
	Success bool           `json:"success"`
	Error   string         `json:"error"`
	Code    apperrors.Code `json:"code"`
	Field   string         `json:"field"`
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	target := c.baseURL + path

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.gatewayUser != "" {
		req.Header.Set("X-User-ID", c.gatewayUser)
	}

	var cached cachedResponse
	if method == http.MethodGet {
		c.mu.Lock()
		cached = c.cache[target]
		c.mu.Unlock()
		if cached.etag != "" {
			req.Header.Set("If-None-Match", cached.etag)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotModified && cached.body != nil:
		raw = cached.body
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if etag := resp.Header.Get("ETag"); method == http.MethodGet && etag != "" {
			c.mu.Lock()
			c.cache[target] = cachedResponse{etag: etag, body: raw}
			c.mu.Unlock()
		}
	default:
		return decodeError(resp.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeError turns an error envelope back into an AppError so callers can
// branch on the code the server sent.
func decodeError(status int, raw []byte) error {
	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Code == "" {
		return &apperrors.AppError{
			Code:    codeForStatus(status),
			Message: fmt.Sprintf("unexpected status %d", status),
		}
	}
	return &apperrors.AppError{Code: env.Code, Message: env.Error, Field: env.Field}
}

func codeForStatus(status int) apperrors.Code {
	switch status {
	case http.StatusBadRequest:
		return apperrors.CodeInvalidArgument
	case http.StatusUnauthorized:
		return apperrors.CodeUnauthenticated
	case http.StatusNotFound:
		return apperrors.CodeNotFound
	case http.StatusTooManyRequests:
		return apperrors.CodeRateLimited
	default:
		return apperrors.CodeInternal
	}
}
