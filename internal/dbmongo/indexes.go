package dbmongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageIndexes back the history query, the unread scan of mark-read and
// per-sender idempotency. The idempotency index only covers documents that
// carry a client message id.
func MessageIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "conversationKey", Value: 1}, {Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}},
			Options: options.Index().SetName("conversation_created"),
		},
		{
			Keys:    bson.D{{Key: "senderId", Value: 1}},
			Options: options.Index().SetName("sender"),
		},
		{
			Keys:    bson.D{{Key: "conversationKey", Value: 1}, {Key: "receiverId", Value: 1}, {Key: "read", Value: 1}},
			Options: options.Index().SetName("conversation_receiver_read"),
		},
		{
			Keys: bson.D{{Key: "senderId", Value: 1}, {Key: "clientMessageId", Value: 1}},
			Options: options.Index().
				SetName("sender_client_message").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"clientMessageId": bson.M{"$type": "string"}}),
		},
	}
}

func ConversationIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "participants", Value: 1}, {Key: "lastMessageAt", Value: -1}},
			Options: options.Index().SetName("participants_last_message"),
		},
		{
			Keys:    bson.D{{Key: "lastMessageAt", Value: -1}},
			Options: options.Index().SetName("last_message"),
		},
	}
}

// EnsureIndexes creates the indexes of both collections. Creating an
// existing index with the same keys and options is a no-op on the server.
func (mc *MongoClient) EnsureIndexes(ctx context.Context) error {
	if _, err := mc.Messages().Indexes().CreateMany(ctx, MessageIndexes()); err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}
	if _, err := mc.Conversations().Indexes().CreateMany(ctx, ConversationIndexes()); err != nil {
		return fmt.Errorf("failed to create conversation indexes: %w", err)
	}
	return nil
}
