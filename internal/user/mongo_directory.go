package user

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gosocial-messaging/internal/chat/models"
	"gosocial-messaging/internal/dbmongo"
)

type mongoDirectory struct {
	users *mongo.Collection
}

// NewMongoDirectory reads profiles from the users collection, whose ids
// are ObjectID hex strings.
func NewMongoDirectory(client *dbmongo.MongoClient) ProfileDirectory {
	return &mongoDirectory{users: client.Users()}
}

func (d *mongoDirectory) GetProfiles(ctx context.Context, ids []string) (map[string]*models.Profile, error) {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			continue
		}
		oids = append(oids, oid)
	}

	profiles := make(map[string]*models.Profile, len(oids))
	if len(oids) == 0 {
		return profiles, nil
	}

	opts := options.Find().SetProjection(bson.M{"name": 1, "username": 1, "avatar": 1})
	cursor, err := d.users.Find(ctx, bson.M{"_id": bson.M{"$in": oids}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch users: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []*dbmongo.UserDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	for _, doc := range docs {
		p := doc.ToProfile()
		profiles[p.ID] = p
	}
	return profiles, nil
}
