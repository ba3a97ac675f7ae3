package repository

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"gosocial-messaging/internal/config"
	"gosocial-messaging/internal/dbmongo"
)

func messageDoc(id, from, to, content string, at time.Time, read bool) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "conversationKey", Value: "alice:bob"},
		{Key: "senderId", Value: from},
		{Key: "receiverId", Value: to},
		{Key: "content", Value: content},
		{Key: "createdAt", Value: at},
		{Key: "read", Value: read},
	}
}

func mockRepo(mt *mtest.T) ChatRepository {
	return NewMongoChatRepository(&dbmongo.MongoClient{Client: mt.Client, Database: mt.DB})
}

func TestMongoChatRepository_Mocked(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ns := "gosocial.messages"

	mt.Run("list messages returns ascending order", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			messageDoc("01HQ0000000000000000000002", "bob", "alice", "second", t0.Add(time.Second), false),
			messageDoc("01HQ0000000000000000000001", "alice", "bob", "first", t0, true),
		))

		msgs, err := mockRepo(mt).ListMessages(context.Background(), "alice:bob", 0, 2)
		require.NoError(mt, err)
		require.Len(mt, msgs, 2)
		assert.Equal(mt, "first", msgs[0].Content)
		assert.Equal(mt, "second", msgs[1].Content)
		assert.True(mt, msgs[0].Read)
		assert.Equal(mt, time.UTC, msgs[0].CreatedAt.Location())

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		assert.Equal(mt, "find", started.CommandName)
	})

	mt.Run("known client message id short-circuits", func(mt *mtest.T) {
		stored := append(messageDoc("01HQ0000000000000000000001", "alice", "bob", "hi", t0, false),
			bson.E{Key: "clientMessageId", Value: "c-1"})
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, stored))

		retry := newMessage("01HQ0000000000000000000009", "alice", "bob", "hi", t0.Add(time.Second))
		retry.ClientMessageID = "c-1"
		got, dup, err := mockRepo(mt).AppendMessage(context.Background(), retry)
		require.NoError(mt, err)
		assert.True(mt, dup)
		assert.Equal(mt, "01HQ0000000000000000000001", got.ID)
		assert.Len(mt, mt.GetAllStartedEvents(), 1, "no writes after a duplicate hit")
	})

	mt.Run("find by client message id", func(mt *mtest.T) {
		stored := append(messageDoc("01HQ0000000000000000000001", "alice", "bob", "hi", t0, false),
			bson.E{Key: "clientMessageId", Value: "c-1"})
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, stored),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch),
		)

		repo := mockRepo(mt)
		found, err := repo.FindByClientMessageID(context.Background(), "alice", "c-1")
		require.NoError(mt, err)
		require.NotNil(mt, found)
		assert.Equal(mt, "c-1", found.ClientMessageID)

		found, err = repo.FindByClientMessageID(context.Background(), "alice", "c-2")
		require.NoError(mt, err)
		assert.Nil(mt, found)
	})

	mt.Run("append inserts then recomputes the pair record", func(mt *mtest.T) {
		latest := messageDoc("01HQ0000000000000000000001", "alice", "bob", "hi", t0, false)
		// insert, newest, oldest, unread per side, upsert
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, latest),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, latest),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "n", Value: int64(0)}}),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "n", Value: int64(1)}}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 0}),
		)

		stored, dup, err := mockRepo(mt).AppendMessage(context.Background(),
			newMessage("01HQ0000000000000000000001", "alice", "bob", "hi", t0))
		require.NoError(mt, err)
		assert.False(mt, dup)
		assert.Equal(mt, "hi", stored.Content)

		var names []string
		for _, e := range mt.GetAllStartedEvents() {
			names = append(names, e.CommandName)
		}
		assert.Equal(mt, []string{"insert", "find", "find", "aggregate", "aggregate", "update"}, names)
	})

	mt.Run("mark read with nothing to flip skips the rebuild", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(0, "gosocial.conversations", mtest.FirstBatch, bson.D{
				{Key: "_id", Value: "alice:bob"},
				{Key: "participants", Value: bson.A{"alice", "bob"}},
				{Key: "unreadA", Value: int64(0)},
				{Key: "unreadB", Value: int64(0)},
				{Key: "lastMessageAt", Value: t0},
			}),
		)

		updated, err := mockRepo(mt).MarkRead(context.Background(), "alice:bob", "bob", t0)
		require.NoError(mt, err)
		assert.Equal(mt, int64(0), updated)
		assert.Len(mt, mt.GetAllStartedEvents(), 2)
	})

	mt.Run("missing conversation", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "gosocial.conversations", mtest.FirstBatch))

		_, err := mockRepo(mt).GetConversation(context.Background(), "alice:zed")
		assert.ErrorIs(mt, err, ErrConversationNotFound)
	})

	mt.Run("server error surfaces", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code: 11600, Name: "InterruptedAtShutdown", Message: "shutting down",
		}))

		_, err := mockRepo(mt).ListConversations(context.Background(), "alice")
		assert.Error(mt, err)
	})
}

// TestMongoChatRepository_Contract runs the shared contract against a live
// server; each subtest gets its own database.
func TestMongoChatRepository_Contract(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("set MONGO_URI to run against a live MongoDB")
	}

	n := 0
	testRepositoryContract(t, func(t *testing.T) ChatRepository {
		n++
		cfg := &config.Config{MongoDB: config.MongoDBConfig{
			URI:      uri,
			Database: fmt.Sprintf("gosocial_test_%d_%d", time.Now().UnixNano(), n),
		}}
		client, err := dbmongo.NewMongoConnection(cfg)
		require.NoError(t, err)
		require.NoError(t, client.EnsureIndexes(context.Background()))
		t.Cleanup(func() {
			_ = client.Database.Drop(context.Background())
			_ = client.Close(context.Background())
		})
		return NewMongoChatRepository(client)
	})
}
