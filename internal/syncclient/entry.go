package syncclient

import "gosocial-messaging/internal/chat/models"

// EntryState tells a server-confirmed message apart from local ones.
type EntryState int

const (
	Persisted EntryState = iota
	Pending
	Failed
)

func (s EntryState) String() string {
	switch s {
	case Persisted:
		return "persisted"
	case Pending:
		return "pending"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Entry is one row of a conversation window.
type Entry struct {
	State   EntryState
	Message *models.Message
}

func (e Entry) clone() Entry {
	return Entry{State: e.State, Message: e.Message.Clone()}
}

// sameWindow reports whether two server windows show the same messages
// with the same read state.
func sameWindow(a, b []*models.Message) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Read != b[i].Read {
			return false
		}
	}
	return true
}
