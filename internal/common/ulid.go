package common

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// message ids are ULIDs: lexicographic order follows creation time, and the
// monotonic entropy keeps ids minted in the same millisecond strictly increasing.
var (
	idMu      sync.Mutex
	idEntropy io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// NewMessageID mints an id for a message created at now.
func NewMessageID(now time.Time) string {
	idMu.Lock()
	defer idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), idEntropy).String()
}

// IsMessageID reports whether s parses as a message id.
func IsMessageID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
