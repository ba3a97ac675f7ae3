package changefeed

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryNotifier keeps versions in process. The epoch makes versions from
// a previous process never equal the ones handed out by this one, so a
// restarted server can't answer 304 to a stale client.
type MemoryNotifier struct {
	mu       sync.Mutex
	epoch    string
	versions map[string]uint64
}

func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{
		epoch:    strconv.FormatInt(time.Now().UnixNano(), 36),
		versions: make(map[string]uint64),
	}
}

func (n *MemoryNotifier) Touch(ctx context.Context, topics ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, topic := range topics {
		n.versions[topic]++
	}
	return nil
}

func (n *MemoryNotifier) Version(ctx context.Context, topic string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	n.mu.Lock()
	v := n.versions[topic]
	n.mu.Unlock()
	return n.epoch + "." + strconv.FormatUint(v, 10), nil
}
