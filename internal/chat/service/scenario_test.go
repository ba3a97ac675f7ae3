package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gosocial-messaging/internal/changefeed"
	"gosocial-messaging/internal/chat/models"
	"gosocial-messaging/internal/chat/repository"
	"gosocial-messaging/internal/common"
	"gosocial-messaging/internal/config"
	"gosocial-messaging/internal/user"
	apperrors "gosocial-messaging/pkg/errors"
)

// stepClock advances by step on every reading.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

type harness struct {
	repo *repository.MemoryChatRepository
	feed *changefeed.MemoryNotifier
	svc  *chatService
}

func newHarness(step time.Duration) *harness {
	h := &harness{
		repo: repository.NewMemoryChatRepository(),
		feed: changefeed.NewMemoryNotifier(),
	}
	clock := &stepClock{now: fixedNow, step: step}
	profiles := user.NewStaticDirectory(
		&models.Profile{ID: "alice", Handle: "alice", Name: "Alice"},
		&models.Profile{ID: "bob", Handle: "bob", Name: "Bob"},
	)
	cfg := config.ChatConfig{DefaultPageSize: 50, MaxPageSize: 200, MaxContentLength: 4000}
	h.svc = newChatService(h.repo, profiles, h.feed, nil, nil, common.NopLogger(), cfg, clock.Now)
	return h
}

func contents(msgs []*models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestScenario_SendReadReply(t *testing.T) {
	ctx := context.Background()
	h := newHarness(time.Millisecond)

	// A sends "hi" to B
	_, err := h.svc.SendMessage(ctx, "alice", "bob", "hi", "")
	require.NoError(t, err)

	page, err := h.svc.ListMessages(ctx, "alice", "bob", 1, 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "hi", page.Messages[0].Content)
	assert.False(t, page.Messages[0].Read)
	assert.Equal(t, "Bob", page.Friend.Name)
	assert.Equal(t, "Alice", page.Viewer.Name)

	inbox, err := h.svc.ListConversations(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, int64(1), inbox[0].UnreadCount)
	assert.Equal(t, "alice", inbox[0].FriendID)

	// B marks the conversation read
	n, err := h.svc.MarkRead(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	inbox, err = h.svc.ListConversations(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(0), inbox[0].UnreadCount)

	page, err = h.svc.ListMessages(ctx, "bob", "alice", 1, 0)
	require.NoError(t, err)
	assert.True(t, page.Messages[0].Read)
	assert.NotNil(t, page.Messages[0].ReadAt)

	// A sends three in quick succession
	for _, c := range []string{"1", "2", "3"} {
		_, err := h.svc.SendMessage(ctx, "alice", "bob", c, "")
		require.NoError(t, err)
	}
	page, err = h.svc.ListMessages(ctx, "alice", "bob", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"hi", "1", "2", "3"}, contents(page.Messages))

	before, err := h.svc.ListConversations(ctx, "alice")
	require.NoError(t, err)

	// B replies
	_, err = h.svc.SendMessage(ctx, "bob", "alice", "reply", "")
	require.NoError(t, err)

	after, err := h.svc.ListConversations(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, "reply", after[0].LastMessage.Content)
	assert.True(t, after[0].LastActivityAt.After(before[0].LastActivityAt))
	assert.Equal(t, int64(1), after[0].UnreadCount)
}

func TestScenario_SameMillisecondKeepsSendOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(0)

	for i := 0; i < 20; i++ {
		_, err := h.svc.SendMessage(ctx, "alice", "bob", fmt.Sprint(i), "")
		require.NoError(t, err)
	}

	page, err := h.svc.ListMessages(ctx, "bob", "alice", 1, 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 20)
	for i, m := range page.Messages {
		assert.Equal(t, fmt.Sprint(i), m.Content)
	}
}

func TestScenario_ConcurrentSendsBothPersist(t *testing.T) {
	ctx := context.Background()
	h := newHarness(time.Millisecond)

	var wg sync.WaitGroup
	results := make([]*models.SendResult, 2)
	for i, pair := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
		wg.Add(1)
		go func(i int, from, to string) {
			defer wg.Done()
			res, err := h.svc.SendMessage(ctx, from, to, "from "+from, "")
			assert.NoError(t, err)
			results[i] = res
		}(i, pair[0], pair[1])
	}
	wg.Wait()

	page, err := h.svc.ListMessages(ctx, "alice", "bob", 1, 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)

	seen := map[string]int{}
	for _, m := range page.Messages {
		seen[m.ID]++
	}
	for _, res := range results {
		assert.Equal(t, 1, seen[res.Message.ID])
	}
	assert.True(t, page.Messages[0].Before(page.Messages[1]))
}

func TestScenario_WhitespaceHasNoEffect(t *testing.T) {
	ctx := context.Background()
	h := newHarness(time.Millisecond)
	version, _ := h.feed.Version(ctx, changefeed.InboxTopic("bob"))

	_, err := h.svc.SendMessage(ctx, "alice", "bob", "   \n\t", "")
	assert.ErrorIs(t, err, apperrors.ErrEmptyContent)

	inbox, err := h.svc.ListConversations(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, inbox)

	after, _ := h.feed.Version(ctx, changefeed.InboxTopic("bob"))
	assert.Equal(t, version, after)
}

func TestScenario_KeySymmetry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(time.Millisecond)

	_, err := h.svc.SendMessage(ctx, "bob", "alice", "one", "")
	require.NoError(t, err)
	_, err = h.svc.SendMessage(ctx, "alice", "bob", "two", "")
	require.NoError(t, err)

	fromAlice, err := h.svc.ListMessages(ctx, "alice", "bob", 1, 0)
	require.NoError(t, err)
	fromBob, err := h.svc.ListMessages(ctx, "bob", "alice", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, fromAlice.Messages, fromBob.Messages)

	convs, err := h.repo.ListConversations(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, convs, 1)
}

func TestScenario_MarkReadIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(time.Millisecond)

	n, err := h.svc.MarkRead(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Zero(t, n)

	for i := 0; i < 3; i++ {
		_, err := h.svc.SendMessage(ctx, "alice", "bob", "x", "")
		require.NoError(t, err)
	}

	n, err = h.svc.MarkRead(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	version, _ := h.feed.Version(ctx, changefeed.InboxTopic("bob"))
	n, err = h.svc.MarkRead(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Zero(t, n)

	after, _ := h.feed.Version(ctx, changefeed.InboxTopic("bob"))
	assert.Equal(t, version, after)
}

func TestScenario_ClientMessageIDDeduplicates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(time.Millisecond)

	first, err := h.svc.SendMessage(ctx, "alice", "bob", "hello", "c-1")
	require.NoError(t, err)
	retry, err := h.svc.SendMessage(ctx, "alice", "bob", "hello", "c-1")
	require.NoError(t, err)

	assert.True(t, retry.Duplicate)
	assert.Equal(t, first.Message.ID, retry.Message.ID)

	// another sender may reuse the token
	other, err := h.svc.SendMessage(ctx, "bob", "alice", "hello", "c-1")
	require.NoError(t, err)
	assert.False(t, other.Duplicate)

	inbox, err := h.svc.ListConversations(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), inbox[0].UnreadCount)
}

func TestScenario_Pagination(t *testing.T) {
	ctx := context.Background()
	h := newHarness(time.Millisecond)

	for i := 0; i < 25; i++ {
		_, err := h.svc.SendMessage(ctx, "alice", "bob", fmt.Sprint(i), "")
		require.NoError(t, err)
	}

	var got []string
	for page := 1; ; page++ {
		p, err := h.svc.ListMessages(ctx, "bob", "alice", page, 10)
		require.NoError(t, err)
		got = append(contents(p.Messages), got...)
		if !p.HasMore {
			break
		}
	}

	want := make([]string, 25)
	for i := range want {
		want[i] = fmt.Sprint(i)
	}
	assert.Equal(t, want, got)
}

func TestProperty_UnreadMatchesRecomputation(t *testing.T) {
	ctx := context.Background()
	users := []string{"alice", "bob", "carol"}
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 5; round++ {
		h := newHarness(time.Millisecond)
		for op := 0; op < 60; op++ {
			a := users[rng.Intn(len(users))]
			b := users[rng.Intn(len(users))]
			if a == b {
				continue
			}
			if rng.Intn(3) == 0 {
				_, err := h.svc.MarkRead(ctx, a, b)
				require.NoError(t, err)
				continue
			}
			_, err := h.svc.SendMessage(ctx, a, b, fmt.Sprintf("op %d", op), "")
			require.NoError(t, err)
		}

		for _, u := range users {
			convs, err := h.repo.ListConversations(ctx, u)
			require.NoError(t, err)
			for _, conv := range convs {
				msgs, err := h.repo.ListMessages(ctx, conv.Key, 0, 10000)
				require.NoError(t, err)
				want := models.BuildConversation(conv.Key, msgs, conv.CreatedAt)

				assert.Equal(t, want.UnreadFor(u), conv.UnreadFor(u), "round %d, %s in %s", round, u, conv.Key)
				assert.Equal(t, want.LastMessage.ID, conv.LastMessage.ID)
			}
		}
	}
}
