package common

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gosocial-messaging/internal/config"
	apperrors "gosocial-messaging/pkg/errors"
)

func TestNewMessageID_MonotonicWithinMillisecond(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	ids := make([]string, 100)
	for i := range ids {
		ids[i] = NewMessageID(now)
	}

	assert.True(t, sort.StringsAreSorted(ids))
	for i := 1; i < len(ids); i++ {
		assert.NotEqual(t, ids[i-1], ids[i])
	}
	assert.True(t, IsMessageID(ids[0]))
	assert.False(t, IsMessageID("temp-123"))
}

func TestNewMessageID_OrdersByTime(t *testing.T) {
	earlier := NewMessageID(time.UnixMilli(1_700_000_000_000))
	later := NewMessageID(time.UnixMilli(1_700_000_000_001))
	assert.Less(t, earlier, later)
}

func TestValidateUserID(t *testing.T) {
	tests := []struct {
		name        string
		id          string
		expectError bool
	}{
		{name: "opaque id", id: "64b7f0c2e4b0a1a2b3c4d5e6"},
		{name: "numeric", id: "42"},
		{name: "empty", id: "", expectError: true},
		{name: "separator", id: "a:b", expectError: true},
		{name: "whitespace", id: "a b", expectError: true},
		{name: "too long", id: strings.Repeat("x", MaxUserIDLength+1), expectError: true},
		{name: "max length", id: strings.Repeat("x", MaxUserIDLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUserID("receiverId", tt.id)
			if tt.expectError {
				require.Error(t, err)
				appErr, ok := apperrors.As(err)
				require.True(t, ok)
				assert.Equal(t, "receiverId", appErr.Field)
				assert.True(t, errors.Is(err, apperrors.ErrValidation))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateContent(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		max      int
		expected string
		err      error
	}{
		{name: "trimmed", content: "  hi  ", max: 10, expected: "hi"},
		{name: "whitespace only", content: " \n\t ", max: 10, err: apperrors.ErrEmptyContent},
		{name: "empty", content: "", max: 10, err: apperrors.ErrEmptyContent},
		{name: "counts runes", content: "héllo", max: 5, expected: "héllo"},
		{name: "too long", content: "hello!", max: 5, err: apperrors.ErrContentTooLong},
		{name: "default max", content: strings.Repeat("a", DefaultMaxContentLength+1), err: apperrors.ErrContentTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateContent(tt.content, tt.max)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestValidateClientMessageID(t *testing.T) {
	id, err := ValidateClientMessageID("  c-1  ")
	require.NoError(t, err)
	assert.Equal(t, "c-1", id)

	id, err = ValidateClientMessageID("")
	require.NoError(t, err)
	assert.Empty(t, id)

	_, err = ValidateClientMessageID(strings.Repeat("x", MaxClientMessageIDLength+1))
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, rl.Allow("alice", now))
	assert.True(t, rl.Allow("alice", now.Add(time.Second)))
	assert.False(t, rl.Allow("alice", now.Add(2*time.Second)))
	assert.True(t, rl.Allow("bob", now.Add(2*time.Second)), "keys are independent")

	// one event is earned back every window/limit
	assert.False(t, rl.Allow("alice", now.Add(20*time.Second)))
	assert.True(t, rl.Allow("alice", now.Add(time.Minute+time.Millisecond)))

	rl.Prune(now.Add(time.Minute + 2*time.Millisecond))
	assert.Contains(t, rl.limiters, "alice", "alice has not refilled yet")
	assert.NotContains(t, rl.limiters, "bob", "bob is back to a full bucket")

	rl.Prune(now.Add(10 * time.Minute))
	assert.Empty(t, rl.limiters)
}

func TestRateLimiter_ReserveAndCancel(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	res := rl.Reserve("alice", now)
	require.NotNil(t, res)
	assert.Nil(t, rl.Reserve("alice", now), "over the limit")

	// a cancelled event is given back
	res.Cancel(now)
	res = rl.Reserve("alice", now)
	assert.NotNil(t, res)
	assert.False(t, rl.Allow("alice", now))
}

func TestRateLimiter_NilAllowsEverything(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	assert.Nil(t, rl)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("alice", time.Now()))
		res := rl.Reserve("alice", time.Now())
		require.NotNil(t, res)
		res.Cancel(time.Now())
	}
	rl.Prune(time.Now())
}

func TestNewLogger(t *testing.T) {
	logger, closeFn, err := NewLogger(config.LoggingConfig{Level: "debug", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)
	defer closeFn()
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))

	path := filepath.Join(t.TempDir(), "svc.log")
	logger, closeFn, err = NewLogger(config.LoggingConfig{Level: "warn", OutputPath: path})
	require.NoError(t, err)
	defer closeFn()
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))

	_, _, err = NewLogger(config.LoggingConfig{OutputPath: filepath.Join(t.TempDir(), "missing", "svc.log")})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("whatever"))
}
