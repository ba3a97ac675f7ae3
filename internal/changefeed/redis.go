package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	versionPrefix = "dm:version:" // dm:version:{topic} - counter
	notifyPrefix  = "dm:notify:"  // dm:notify:{userId} - pub/sub channel
)

// RedisNotifier stores versions as Redis counters so every replica of the
// service agrees on them. Inbox changes are also published on the owner's
// notify channel.
type RedisNotifier struct {
	rdb *redis.Client
}

func NewRedisNotifier(rdb *redis.Client) *RedisNotifier {
	return &RedisNotifier{rdb: rdb}
}

type notification struct {
	Type    string `json:"type"`
	Topic   string `json:"topic"`
	Version int64  `json:"version"`
}

func (n *RedisNotifier) Touch(ctx context.Context, topics ...string) error {
	if len(topics) == 0 {
		return nil
	}

	pipe := n.rdb.TxPipeline()
	incrs := make([]*redis.IntCmd, len(topics))
	for i, topic := range topics {
		incrs[i] = pipe.Incr(ctx, versionPrefix+topic)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to bump versions: %w", err)
	}

	for i, topic := range topics {
		user, ok := InboxOwner(topic)
		if !ok {
			continue
		}
		payload, _ := json.Marshal(notification{Type: "inbox_updated", Topic: topic, Version: incrs[i].Val()})
		if err := n.rdb.Publish(ctx, notifyPrefix+user, payload).Err(); err != nil {
			return fmt.Errorf("failed to publish notification: %w", err)
		}
	}
	return nil
}

func (n *RedisNotifier) Version(ctx context.Context, topic string) (string, error) {
	v, err := n.rdb.Get(ctx, versionPrefix+topic).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read version: %w", err)
	}
	return v, nil
}

// Subscribe listens for inbox notifications of userID. The caller closes
// the returned subscription.
func (n *RedisNotifier) Subscribe(ctx context.Context, userID string) *redis.PubSub {
	return n.rdb.Subscribe(ctx, notifyPrefix+userID)
}
