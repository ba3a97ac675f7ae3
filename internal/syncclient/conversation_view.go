package syncclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"gosocial-messaging/internal/chat/models"
	"gosocial-messaging/internal/common"
)

// ErrEmptyDraft is returned by Send for whitespace-only drafts. Nothing is
// sent to the server.
var ErrEmptyDraft = errors.New("draft is empty")

// bottomThreshold is how close, in pixels, the viewport must be to the end
// of the list for the viewer to count as at the bottom.
const bottomThreshold = 100

const markReadTimeout = 10 * time.Second

type ConversationConfig struct {
	PollInterval   time.Duration
	DedupeInterval time.Duration
	PageSize       int // 0 leaves the page size to the server
}

func DefaultConversationConfig() ConversationConfig {
	return ConversationConfig{
		PollInterval:   3 * time.Second,
		DedupeInterval: time.Second,
	}
}

// Snapshot is an immutable rendering of a conversation view.
type Snapshot struct {
	Seq            uint64
	Entries        []Entry
	Viewer         *models.Profile
	Friend         *models.Profile
	HasMore        bool
	Draft          string
	ScrollToBottom bool
	Err            error
}

// ConversationView keeps one open chat in sync with the server. Snapshots
// are delivered to the onChange callback, which must not call Close.
type ConversationView struct {
	api      API
	viewerID string
	friendID string
	cfg      ConversationConfig
	logger   *slog.Logger
	onChange func(Snapshot)
	now      func() time.Time

	mu       sync.Mutex
	load     loader
	open     bool
	cancel   context.CancelFunc
	server   []*models.Message
	local    []Entry
	viewer   *models.Profile
	friend   *models.Profile
	hasMore  bool
	draft    string
	atBottom bool
	lastErr  error
	seq      uint64

	pubMu     sync.Mutex
	published uint64

	wg sync.WaitGroup
}

func NewConversationView(api API, viewerID, friendID string, cfg ConversationConfig, logger *slog.Logger, onChange func(Snapshot)) *ConversationView {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConversationConfig().PollInterval
	}
	if logger == nil {
		logger = common.NopLogger()
	}
	return &ConversationView{
		api:      api,
		viewerID: viewerID,
		friendID: friendID,
		cfg:      cfg,
		logger:   logger.With("view", "conversation", "friend_id", friendID),
		onChange: onChange,
		now:      time.Now,
		load:     loader{dedupe: cfg.DedupeInterval},
		atBottom: true,
	}
}

// Open starts polling and marks the conversation read in the background.
func (v *ConversationView) Open(ctx context.Context) error {
	v.mu.Lock()
	if v.open {
		v.mu.Unlock()
		return nil
	}
	pollCtx, cancel := context.WithCancel(ctx)
	v.open = true
	v.cancel = cancel
	v.mu.Unlock()

	v.wg.Add(2)
	go func() {
		defer v.wg.Done()
		markCtx, cancel := context.WithTimeout(pollCtx, markReadTimeout)
		defer cancel()
		if _, err := v.api.MarkRead(markCtx, v.friendID); err != nil {
			v.logger.Warn("mark read failed", "error", err)
		}
	}()
	go func() {
		defer v.wg.Done()
		pollLoop(pollCtx, v.cfg.PollInterval, v.logger, v.Refresh)
	}()
	return nil
}

// Close stops polling. Results that arrive afterwards are dropped.
func (v *ConversationView) Close() {
	v.mu.Lock()
	if !v.open {
		v.mu.Unlock()
		return
	}
	v.open = false
	v.load.invalidate()
	cancel := v.cancel
	v.mu.Unlock()

	cancel()
	v.wg.Wait()
}

// Refresh fetches the newest window unless a fetch is already running or
// the last one is inside the dedupe window.
func (v *ConversationView) Refresh(ctx context.Context) error {
	return v.refresh(ctx, false)
}

func (v *ConversationView) refresh(ctx context.Context, force bool) error {
	v.mu.Lock()
	if !v.open {
		v.mu.Unlock()
		return ErrClosed
	}
	call, gen, kind := v.load.start(v.now(), force)
	v.mu.Unlock()

	switch kind {
	case startSkip:
		return nil
	case startJoin:
		return call.wait(ctx)
	}

	page, err := v.api.ListMessages(ctx, v.friendID, 1, v.cfg.PageSize)

	v.mu.Lock()
	if !v.load.finish(call, gen) {
		v.mu.Unlock()
		close(call.done)
		return nil
	}
	call.err = err
	snap := v.applyLocked(page, err)
	v.mu.Unlock()
	close(call.done)

	v.publish(snap)
	return err
}

// applyLocked folds a fetch result into the view. Failed entries only
// survive until the next refresh result.
func (v *ConversationView) applyLocked(page *models.MessagePage, err error) Snapshot {
	v.local = pendingOnly(v.local)
	if err != nil {
		v.lastErr = err
		return v.snapshotLocked(false)
	}

	changed := !sameWindow(v.server, page.Messages)
	v.server = page.Messages
	v.hasMore = page.HasMore
	if page.Viewer != nil {
		v.viewer = page.Viewer
	}
	if page.Friend != nil {
		v.friend = page.Friend
	}
	v.lastErr = nil

	seen := make(map[string]struct{}, len(page.Messages))
	for _, m := range page.Messages {
		if m.ClientMessageID != "" {
			seen[m.ClientMessageID] = struct{}{}
		}
	}
	kept := v.local[:0]
	for _, e := range v.local {
		if _, ok := seen[e.Message.ClientMessageID]; ok {
			continue
		}
		kept = append(kept, e)
	}
	v.local = kept

	return v.snapshotLocked(changed)
}

func pendingOnly(entries []Entry) []Entry {
	out := entries[:0]
	for _, e := range entries {
		if e.State == Pending {
			out = append(out, e)
		}
	}
	return out
}

// Send posts content optimistically. The draft is restored into the
// compose field when the server rejects the message.
func (v *ConversationView) Send(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyDraft
	}

	v.mu.Lock()
	if !v.open {
		v.mu.Unlock()
		return ErrClosed
	}
	now := v.now()
	entry := Entry{State: Pending, Message: &models.Message{
		ID:              fmt.Sprintf("temp-%d", now.UnixMilli()),
		ConversationKey: models.ConversationKey(v.viewerID, v.friendID),
		SenderID:        v.viewerID,
		ReceiverID:      v.friendID,
		Content:         content,
		ClientMessageID: uuid.NewString(),
		CreatedAt:       now,
	}}
	v.local = append(v.local, entry)
	v.draft = ""
	snap := v.snapshotLocked(true)
	v.mu.Unlock()
	v.publish(snap)

	clientID := entry.Message.ClientMessageID
	if _, err := v.api.SendMessage(ctx, v.friendID, content, clientID); err != nil {
		v.mu.Lock()
		if !v.open {
			v.mu.Unlock()
			return err
		}
		for i := range v.local {
			if v.local[i].Message.ClientMessageID == clientID {
				v.local[i].State = Failed
			}
		}
		v.draft = content
		snap := v.snapshotLocked(false)
		v.mu.Unlock()
		v.publish(snap)

		if rerr := v.refresh(ctx, true); rerr != nil && !errors.Is(rerr, ErrClosed) {
			v.logger.Debug("refetch after failed send", "error", rerr)
		}
		return err
	}

	if err := v.refresh(ctx, true); err != nil && !errors.Is(err, ErrClosed) {
		v.logger.Debug("refetch after send", "error", err)
	}
	return nil
}

// SetScroll records the viewport position reported by the UI.
func (v *ConversationView) SetScroll(top, height, client float64) {
	v.mu.Lock()
	v.atBottom = height-top-client < bottomThreshold
	v.mu.Unlock()
}

// SetDraft records the compose field text.
func (v *ConversationView) SetDraft(draft string) {
	v.mu.Lock()
	v.draft = draft
	v.mu.Unlock()
}

func (v *ConversationView) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked(false)
}

func (v *ConversationView) snapshotLocked(newData bool) Snapshot {
	v.seq++
	entries := make([]Entry, 0, len(v.server)+len(v.local))
	for _, m := range v.server {
		entries = append(entries, Entry{State: Persisted, Message: m.Clone()})
	}
	for _, e := range v.local {
		entries = append(entries, e.clone())
	}
	return Snapshot{
		Seq:            v.seq,
		Entries:        entries,
		Viewer:         v.viewer,
		Friend:         v.friend,
		HasMore:        v.hasMore,
		Draft:          v.draft,
		ScrollToBottom: newData && v.atBottom,
		Err:            v.lastErr,
	}
}

// publish hands s to the callback unless a newer snapshot already went
// out.
func (v *ConversationView) publish(s Snapshot) {
	if v.onChange == nil {
		return
	}
	v.pubMu.Lock()
	defer v.pubMu.Unlock()
	if s.Seq <= v.published {
		return
	}
	v.published = s.Seq
	v.onChange(s)
}
