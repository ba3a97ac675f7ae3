package syncclient

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gosocial-messaging/internal/chat/models"
	"gosocial-messaging/internal/common"
)

type InboxConfig struct {
	PollInterval   time.Duration
	DedupeInterval time.Duration
}

func DefaultInboxConfig() InboxConfig {
	return InboxConfig{
		PollInterval:   5 * time.Second,
		DedupeInterval: 2 * time.Second,
	}
}

type InboxSnapshot struct {
	Seq           uint64
	Conversations []*models.ConversationSummary
	TotalUnread   int64
	Err           error
}

// InboxView polls the viewer's conversation list. Each successful fetch
// replaces the list wholesale.
type InboxView struct {
	api      API
	cfg      InboxConfig
	logger   *slog.Logger
	onChange func(InboxSnapshot)
	now      func() time.Time

	mu      sync.Mutex
	load    loader
	open    bool
	cancel  context.CancelFunc
	convs   []*models.ConversationSummary
	unread  int64
	lastErr error
	seq     uint64

	pubMu     sync.Mutex
	published uint64

	wg sync.WaitGroup
}

func NewInboxView(api API, cfg InboxConfig, logger *slog.Logger, onChange func(InboxSnapshot)) *InboxView {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultInboxConfig().PollInterval
	}
	if logger == nil {
		logger = common.NopLogger()
	}
	return &InboxView{
		api:      api,
		cfg:      cfg,
		logger:   logger.With("view", "inbox"),
		onChange: onChange,
		now:      time.Now,
		load:     loader{dedupe: cfg.DedupeInterval},
	}
}

func (v *InboxView) Open(ctx context.Context) error {
	v.mu.Lock()
	if v.open {
		v.mu.Unlock()
		return nil
	}
	pollCtx, cancel := context.WithCancel(ctx)
	v.open = true
	v.cancel = cancel
	v.mu.Unlock()

	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		pollLoop(pollCtx, v.cfg.PollInterval, v.logger, v.Refresh)
	}()
	return nil
}

func (v *InboxView) Close() {
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

func (v *InboxView) Refresh(ctx context.Context) error {
	v.mu.Lock()
	if !v.open {
		v.mu.Unlock()
		return ErrClosed
	}
	call, gen, kind := v.load.start(v.now(), false)
	v.mu.Unlock()

	switch kind {
	case startSkip:
		return nil
	case startJoin:
		return call.wait(ctx)
	}

	inbox, err := v.api.ListConversations(ctx)

	v.mu.Lock()
	if !v.load.finish(call, gen) {
		v.mu.Unlock()
		close(call.done)
		return nil
	}
	call.err = err
	if err != nil {
		v.lastErr = err
	} else {
		v.convs = inbox.Conversations
		v.unread = inbox.TotalUnread
		v.lastErr = nil
	}
	snap := v.snapshotLocked()
	v.mu.Unlock()
	close(call.done)

	v.publish(snap)
	return err
}

func (v *InboxView) TotalUnread() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.unread
}

func (v *InboxView) Snapshot() InboxSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

func (v *InboxView) snapshotLocked() InboxSnapshot {
	v.seq++
	convs := make([]*models.ConversationSummary, 0, len(v.convs))
	for _, c := range v.convs {
		cp := *c
		cp.LastMessage = c.LastMessage.Clone()
		convs = append(convs, &cp)
	}
	return InboxSnapshot{
		Seq:           v.seq,
		Conversations: convs,
		TotalUnread:   v.unread,
		Err:           v.lastErr,
	}
}

func (v *InboxView) publish(s InboxSnapshot) {
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
