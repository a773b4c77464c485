package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFeed_OrdersByCreatedAt(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	in := []Message{
		{ID: "c", CreatedAt: base.Add(2 * time.Second)},
		{ID: "a", CreatedAt: base},
		{ID: "b", CreatedAt: base.Add(time.Second)},
	}

	feed := NewFeed(in)

	require.Len(t, feed, 3)
	assert.Equal(t, []string{"a", "b", "c"}, ids(feed))
	assert.Equal(t, "c", in[0].ID, "input must not be reordered")
}

func TestNewFeed_TiesKeepArrivalOrder(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	feed := NewFeed([]Message{
		{ID: "late", CreatedAt: at.Add(time.Minute)},
		{ID: "first", CreatedAt: at},
		{ID: "second", CreatedAt: at},
		{ID: "third", CreatedAt: at},
	})

	assert.Equal(t, []string{"first", "second", "third", "late"}, ids(feed))
}

func TestFeed_CloneAndLast(t *testing.T) {
	var empty Feed
	assert.Nil(t, empty.Clone())
	_, ok := empty.Last()
	assert.False(t, ok)

	feed := Feed{{ID: "1"}, {ID: "2"}}
	clone := feed.Clone()
	clone[0].ID = "changed"
	assert.Equal(t, "1", feed[0].ID)

	last, ok := feed.Last()
	require.True(t, ok)
	assert.Equal(t, "2", last.ID)
}

func TestSession(t *testing.T) {
	var s Session
	assert.False(t, s.Authenticated())
	assert.Empty(t, s.Email())

	s = Session{Identity: &Identity{UID: "u1", Email: "ana@fidoo.io"}, Token: "tok"}
	assert.True(t, s.Authenticated())
	assert.Equal(t, "ana@fidoo.io", s.Email())
}

func TestSendError(t *testing.T) {
	tests := []struct {
		name string
		err  *SendError
		want string
	}{
		{"status and reason", &SendError{Status: 500, Reason: "boom"}, "send failed: HTTP 500: boom"},
		{"status only", &SendError{Status: 403}, "send failed: HTTP 403"},
		{"transport", &SendError{Err: errors.New("dial tcp: refused")}, "send failed: dial tcp: refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
			assert.ErrorIs(t, tt.err, ErrSendFailed)
		})
	}

	cause := errors.New("reset")
	wrapped := fmt.Errorf("composer: %w", &SendError{Err: cause})
	assert.ErrorIs(t, wrapped, cause)
	var se *SendError
	require.ErrorAs(t, wrapped, &se)
}

func TestSubscriptionError(t *testing.T) {
	cause := errors.New("connection lost")
	err := &SubscriptionError{Collection: "messages", Err: cause}

	assert.Contains(t, err.Error(), "messages")
	assert.ErrorIs(t, err, ErrSubscription)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrSendFailed)
}

func ids(feed Feed) []string {
	out := make([]string, len(feed))
	for i, m := range feed {
		out[i] = m.ID
	}
	return out
}
