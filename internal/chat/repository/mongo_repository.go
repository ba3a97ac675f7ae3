package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gosocial-messaging/internal/chat/models"
	"gosocial-messaging/internal/dbmongo"
)

type mongoChatRepo struct {
	client        *dbmongo.MongoClient
	messages      *mongo.Collection
	conversations *mongo.Collection
}

// NewMongoChatRepository returns the MongoDB-backed repository. The pair
// record is recomputed from the ledger after every write. With
// transactions enabled both steps commit together; otherwise the record
// converges on the next write to the pair.
func NewMongoChatRepository(client *dbmongo.MongoClient) ChatRepository {
	return &mongoChatRepo{
		client:        client,
		messages:      client.Messages(),
		conversations: client.Conversations(),
	}
}

// inTx runs fn in a session transaction when enabled, directly otherwise.
func (r *mongoChatRepo) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if !r.client.Transactions {
		return fn(ctx)
	}

	session, err := r.client.Client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func (r *mongoChatRepo) AppendMessage(ctx context.Context, msg *models.Message) (*models.Message, bool, error) {
	var (
		stored    *models.Message
		duplicate bool
	)

	err := r.inTx(ctx, func(ctx context.Context) error {
		if msg.ClientMessageID != "" {
			existing, err := r.findByClientID(ctx, msg.SenderID, msg.ClientMessageID)
			if err != nil {
				return err
			}
			if existing != nil {
				stored, duplicate = existing, true
				return nil
			}
		}

		if _, err := r.messages.InsertOne(ctx, dbmongo.MessageDocumentFromModel(msg)); err != nil {
			if msg.ClientMessageID != "" && mongo.IsDuplicateKeyError(err) {
				return errClientIDRace
			}
			return fmt.Errorf("failed to insert message: %w", err)
		}

		if _, err := r.rebuild(ctx, msg.ConversationKey, msg.CreatedAt); err != nil {
			return err
		}
		stored = msg.Clone()
		return nil
	})

	if errors.Is(err, errClientIDRace) {
		existing, lookupErr := r.findByClientID(ctx, msg.SenderID, msg.ClientMessageID)
		if lookupErr != nil {
			return nil, false, lookupErr
		}
		if existing == nil {
			return nil, false, fmt.Errorf("failed to insert message: %w", err)
		}
		return existing, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return stored, duplicate, nil
}

func (r *mongoChatRepo) ListMessages(ctx context.Context, conversationKey string, offset, limit int) ([]*models.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := r.messages.Find(ctx, bson.M{"conversationKey": conversationKey}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []*dbmongo.MessageDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}

	msgs := make([]*models.Message, len(docs))
	for i, doc := range docs {
		msgs[i] = doc.ToModel()
	}
	reverse(msgs)
	return msgs, nil
}

func (r *mongoChatRepo) MarkRead(ctx context.Context, conversationKey, viewerID string, at time.Time) (int64, error) {
	var updated int64

	err := r.inTx(ctx, func(ctx context.Context) error {
		res, err := r.messages.UpdateMany(ctx,
			bson.M{"conversationKey": conversationKey, "receiverId": viewerID, "read": false},
			bson.M{"$set": bson.M{"read": true, "readAt": at}},
		)
		if err != nil {
			return fmt.Errorf("failed to mark messages read: %w", err)
		}
		updated = res.ModifiedCount

		if updated == 0 {
			conv, err := r.GetConversation(ctx, conversationKey)
			if errors.Is(err, ErrConversationNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if conv.UnreadFor(viewerID) == 0 {
				return nil
			}
		}

		_, err = r.rebuild(ctx, conversationKey, at)
		if errors.Is(err, ErrConversationNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

func (r *mongoChatRepo) GetConversation(ctx context.Context, conversationKey string) (*models.Conversation, error) {
	var doc dbmongo.ConversationDocument
	err := r.conversations.FindOne(ctx, bson.M{"_id": conversationKey}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch conversation: %w", err)
	}
	return doc.ToModel(), nil
}

func (r *mongoChatRepo) ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "lastMessageAt", Value: -1}, {Key: "_id", Value: 1}})

	cursor, err := r.conversations.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch conversations: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []*dbmongo.ConversationDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %w", err)
	}

	convs := make([]*models.Conversation, len(docs))
	for i, doc := range docs {
		convs[i] = doc.ToModel()
	}
	return convs, nil
}

func (r *mongoChatRepo) RebuildConversation(ctx context.Context, conversationKey string, now time.Time) (*models.Conversation, error) {
	var rebuilt *models.Conversation
	err := r.inTx(ctx, func(ctx context.Context) error {
		var err error
		rebuilt, err = r.rebuild(ctx, conversationKey, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rebuilt, nil
}

// rebuild recomputes the pair record with indexed queries instead of
// loading the whole ledger: newest and oldest message plus one unread
// count per side.
func (r *mongoChatRepo) rebuild(ctx context.Context, key string, now time.Time) (*models.Conversation, error) {
	a, b, ok := models.SplitKey(key)
	if !ok {
		return nil, fmt.Errorf("invalid conversation key %q", key)
	}

	latest, err := r.edgeMessage(ctx, key, -1)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, ErrConversationNotFound
	}
	oldest, err := r.edgeMessage(ctx, key, 1)
	if err != nil {
		return nil, err
	}

	conv := models.NewConversation(a, b, now)
	if conv.UnreadA, err = r.countUnread(ctx, key, conv.ParticipantA); err != nil {
		return nil, err
	}
	if conv.UnreadB, err = r.countUnread(ctx, key, conv.ParticipantB); err != nil {
		return nil, err
	}
	conv.LastMessage = latest
	conv.LastActivityAt = latest.CreatedAt
	if oldest != nil {
		conv.CreatedAt = oldest.CreatedAt
	}

	_, err = r.conversations.ReplaceOne(ctx,
		bson.M{"_id": key},
		dbmongo.ConversationDocumentFromModel(conv),
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to store conversation: %w", err)
	}
	return conv, nil
}

func (r *mongoChatRepo) edgeMessage(ctx context.Context, key string, direction int) (*models.Message, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: direction}, {Key: "_id", Value: direction}})

	var doc dbmongo.MessageDocument
	err := r.messages.FindOne(ctx, bson.M{"conversationKey": key}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return doc.ToModel(), nil
}

func (r *mongoChatRepo) countUnread(ctx context.Context, key, receiverID string) (int64, error) {
	n, err := r.messages.CountDocuments(ctx, bson.M{"conversationKey": key, "receiverId": receiverID, "read": false})
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return n, nil
}

func (r *mongoChatRepo) FindByClientMessageID(ctx context.Context, senderID, clientMessageID string) (*models.Message, error) {
	return r.findByClientID(ctx, senderID, clientMessageID)
}

func (r *mongoChatRepo) findByClientID(ctx context.Context, senderID, clientMessageID string) (*models.Message, error) {
	var doc dbmongo.MessageDocument
	err := r.messages.FindOne(ctx, bson.M{"senderId": senderID, "clientMessageId": clientMessageID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up client message id: %w", err)
	}
	return doc.ToModel(), nil
}
