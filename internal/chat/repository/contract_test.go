package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gosocial-messaging/internal/chat/models"
)

// testRepositoryContract exercises behaviour every backend must share.
func testRepositoryContract(t *testing.T, newRepo func(t *testing.T) ChatRepository) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	seq := 0
	msg := func(from, to, content string, at time.Time) *models.Message {
		seq++
		return &models.Message{
			ID:              fmt.Sprintf("01HQ%022d", seq),
			ConversationKey: models.ConversationKey(from, to),
			SenderID:        from,
			ReceiverID:      to,
			Content:         content,
			CreatedAt:       at,
		}
	}

	t.Run("send then list in order", func(t *testing.T) {
		repo := newRepo(t)
		for i := 0; i < 5; i++ {
			from, to := "alice", "bob"
			if i%2 == 1 {
				from, to = "bob", "alice"
			}
			_, dup, err := repo.AppendMessage(ctx, msg(from, to, fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Second)))
			require.NoError(t, err)
			assert.False(t, dup)
		}

		msgs, err := repo.ListMessages(ctx, "alice:bob", 0, 10)
		require.NoError(t, err)
		require.Len(t, msgs, 5)
		for i, m := range msgs {
			assert.Equal(t, fmt.Sprintf("m%d", i), m.Content)
		}

		older, err := repo.ListMessages(ctx, "alice:bob", 2, 2)
		require.NoError(t, err)
		require.Len(t, older, 2)
		assert.Equal(t, "m1", older[0].Content)
		assert.Equal(t, "m2", older[1].Content)

		none, err := repo.ListMessages(ctx, "alice:bob", 10, 2)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("same millisecond ties break by id", func(t *testing.T) {
		repo := newRepo(t)
		second := msg("alice", "bob", "second", base)
		first := msg("alice", "bob", "first", base)
		first.ID, second.ID = second.ID, first.ID // first gets the smaller id

		_, _, err := repo.AppendMessage(ctx, second)
		require.NoError(t, err)
		_, _, err = repo.AppendMessage(ctx, first)
		require.NoError(t, err)

		msgs, err := repo.ListMessages(ctx, "alice:bob", 0, 10)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "first", msgs[0].Content)

		conv, err := repo.GetConversation(ctx, "alice:bob")
		require.NoError(t, err)
		assert.Equal(t, "second", conv.LastMessage.Content)
	})

	t.Run("pair record tracks sends and reads", func(t *testing.T) {
		repo := newRepo(t)
		_, _, err := repo.AppendMessage(ctx, msg("alice", "bob", "one", base))
		require.NoError(t, err)
		_, _, err = repo.AppendMessage(ctx, msg("alice", "bob", "two", base.Add(time.Second)))
		require.NoError(t, err)
		_, _, err = repo.AppendMessage(ctx, msg("bob", "alice", "three", base.Add(2*time.Second)))
		require.NoError(t, err)

		conv, err := repo.GetConversation(ctx, "alice:bob")
		require.NoError(t, err)
		assert.Equal(t, int64(2), conv.UnreadFor("bob"))
		assert.Equal(t, int64(1), conv.UnreadFor("alice"))
		assert.Equal(t, "three", conv.LastMessage.Content)
		assert.True(t, conv.LastActivityAt.Equal(base.Add(2*time.Second)))

		updated, err := repo.MarkRead(ctx, "alice:bob", "bob", base.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(2), updated)

		updated, err = repo.MarkRead(ctx, "alice:bob", "bob", base.Add(2*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(0), updated)

		conv, err = repo.GetConversation(ctx, "alice:bob")
		require.NoError(t, err)
		assert.Equal(t, int64(0), conv.UnreadFor("bob"))
		assert.Equal(t, int64(1), conv.UnreadFor("alice"))

		msgs, err := repo.ListMessages(ctx, "alice:bob", 0, 10)
		require.NoError(t, err)
		rebuilt := models.BuildConversation("alice:bob", msgs, base)
		assert.Equal(t, rebuilt.UnreadA, conv.UnreadA)
		assert.Equal(t, rebuilt.UnreadB, conv.UnreadB)
	})

	t.Run("mark read on a conversation that does not exist", func(t *testing.T) {
		repo := newRepo(t)
		updated, err := repo.MarkRead(ctx, "alice:zed", "alice", base)
		require.NoError(t, err)
		assert.Equal(t, int64(0), updated)

		_, err = repo.GetConversation(ctx, "alice:zed")
		assert.ErrorIs(t, err, ErrConversationNotFound)
	})

	t.Run("client message id is deduplicated per sender", func(t *testing.T) {
		repo := newRepo(t)
		first := msg("alice", "bob", "hello", base)
		first.ClientMessageID = "c-1"
		stored, dup, err := repo.AppendMessage(ctx, first)
		require.NoError(t, err)
		assert.False(t, dup)

		retry := msg("alice", "bob", "hello", base.Add(time.Second))
		retry.ClientMessageID = "c-1"
		again, dup, err := repo.AppendMessage(ctx, retry)
		require.NoError(t, err)
		assert.True(t, dup)
		assert.Equal(t, stored.ID, again.ID)

		other := msg("bob", "alice", "hello", base.Add(2*time.Second))
		other.ClientMessageID = "c-1"
		_, dup, err = repo.AppendMessage(ctx, other)
		require.NoError(t, err)
		assert.False(t, dup, "another sender may reuse the token")

		msgs, err := repo.ListMessages(ctx, "alice:bob", 0, 10)
		require.NoError(t, err)
		assert.Len(t, msgs, 2)

		conv, err := repo.GetConversation(ctx, "alice:bob")
		require.NoError(t, err)
		assert.Equal(t, int64(1), conv.UnreadFor("bob"))

		found, err := repo.FindByClientMessageID(ctx, "alice", "c-1")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, stored.ID, found.ID)

		found, err = repo.FindByClientMessageID(ctx, "carol", "c-1")
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("inbox ordering and participants", func(t *testing.T) {
		repo := newRepo(t)
		_, _, err := repo.AppendMessage(ctx, msg("alice", "bob", "old", base))
		require.NoError(t, err)
		_, _, err = repo.AppendMessage(ctx, msg("carol", "alice", "new", base.Add(time.Hour)))
		require.NoError(t, err)
		_, _, err = repo.AppendMessage(ctx, msg("bob", "carol", "elsewhere", base.Add(2*time.Hour)))
		require.NoError(t, err)

		convs, err := repo.ListConversations(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, convs, 2)
		assert.Equal(t, "alice:carol", convs[0].Key)
		assert.Equal(t, "alice:bob", convs[1].Key)

		empty, err := repo.ListConversations(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("rebuild matches incremental state", func(t *testing.T) {
		repo := newRepo(t)
		_, _, err := repo.AppendMessage(ctx, msg("alice", "bob", "one", base))
		require.NoError(t, err)
		_, _, err = repo.AppendMessage(ctx, msg("bob", "alice", "two", base.Add(time.Second)))
		require.NoError(t, err)

		before, err := repo.GetConversation(ctx, "alice:bob")
		require.NoError(t, err)

		rebuilt, err := repo.RebuildConversation(ctx, "alice:bob", base.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, before.UnreadA, rebuilt.UnreadA)
		assert.Equal(t, before.UnreadB, rebuilt.UnreadB)
		assert.Equal(t, before.LastMessage.ID, rebuilt.LastMessage.ID)

		_, err = repo.RebuildConversation(ctx, "alice:nobody", base)
		assert.ErrorIs(t, err, ErrConversationNotFound)
	})

	t.Run("concurrent sends keep counters exact", func(t *testing.T) {
		repo := newRepo(t)
		var (
			wg  sync.WaitGroup
			mu  sync.Mutex
			all []*models.Message
		)
		for i := 0; i < 20; i++ {
			mu.Lock()
			m := msg("alice", "bob", fmt.Sprintf("c%d", i), base.Add(time.Duration(i)*time.Millisecond))
			all = append(all, m)
			mu.Unlock()
		}
		for _, m := range all {
			wg.Add(1)
			go func(m *models.Message) {
				defer wg.Done()
				_, _, err := repo.AppendMessage(ctx, m)
				assert.NoError(t, err)
			}(m)
		}
		wg.Wait()

		conv, err := repo.GetConversation(ctx, "alice:bob")
		require.NoError(t, err)
		assert.Equal(t, int64(20), conv.UnreadFor("bob"))
		assert.Equal(t, "c19", conv.LastMessage.Content)
	})
}
