// Package dbmongo holds the MongoDB connection, collection names and the
// document shapes of the messaging backend.
package dbmongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"gosocial-messaging/internal/config"
)

const (
	MessagesCollection      = "messages"
	ConversationsCollection = "conversations"
	UsersCollection         = "users"
)

type MongoClient struct {
	Client   *mongo.Client
	Database *mongo.Database
	// Transactions is set when multi-document transactions are available
	// (replica set or sharded cluster) and enabled in config.
	Transactions bool
}

func NewMongoConnection(c *config.Config) (*MongoClient, error) {
	uri := c.GetMongoURI()
	clientOptions := options.Client().ApplyURI(uri)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoClient{
		Client:       client,
		Database:     client.Database(c.MongoDB.Database),
		Transactions: c.MongoDB.Transactions,
	}, nil
}

func (mc *MongoClient) Messages() *mongo.Collection {
	return mc.Database.Collection(MessagesCollection)
}

func (mc *MongoClient) Conversations() *mongo.Collection {
	return mc.Database.Collection(ConversationsCollection)
}

func (mc *MongoClient) Users() *mongo.Collection {
	return mc.Database.Collection(UsersCollection)
}

func (mc *MongoClient) Close(ctx context.Context) error {
	return mc.Client.Disconnect(ctx)
}
