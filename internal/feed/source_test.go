package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fidoochat/internal/domain"
)

func TestChangeSource_SnapshotPerChange(t *testing.T) {
	changes := make(chan struct{})
	var loads atomic.Int32

	src := &ChangeSource{
		name: "test",
		load: func(_ context.Context, collection string) ([]domain.Message, error) {
			n := loads.Add(1)
			assert.Equal(t, "messages", collection)
			out := make([]domain.Message, n)
			for i := range out {
				out[i] = msg(fmt.Sprint(i), time.Duration(i)*time.Second)
			}
			return out, nil
		},
		changes: func(context.Context) (<-chan struct{}, error) { return changes, nil },
		log:     zap.NewNop(),
	}

	snapshots := make(chan []domain.Message, 4)
	stop := src.Listen(context.Background(), DefaultQuery("messages"),
		func(m []domain.Message) { snapshots <- m },
		func(err error) { t.Errorf("unexpected error: %v", err) },
	)

	require.Len(t, <-snapshots, 1, "initial snapshot")
	changes <- struct{}{}
	require.Len(t, <-snapshots, 2)
	changes <- struct{}{}
	require.Len(t, <-snapshots, 3)

	stop()
	assert.EqualValues(t, 3, loads.Load())
}

func TestChangeSource_SubscribeError(t *testing.T) {
	boom := errors.New("no route to host")
	src := &ChangeSource{
		name:    "test",
		load:    func(context.Context, string) ([]domain.Message, error) { return nil, nil },
		changes: func(context.Context) (<-chan struct{}, error) { return nil, boom },
		log:     zap.NewNop(),
	}

	errs := make(chan error, 1)
	stop := src.Listen(context.Background(), DefaultQuery("messages"),
		func([]domain.Message) { t.Error("no snapshot expected") },
		func(err error) { errs <- err },
	)
	defer stop()

	err := <-errs
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "test subscribe")
}

func TestChangeSource_LoadErrorThenRecovery(t *testing.T) {
	changes := make(chan struct{})
	var calls atomic.Int32
	src := &ChangeSource{
		name: "test",
		load: func(context.Context, string) ([]domain.Message, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("timeout")
			}
			return []domain.Message{msg("a", 0)}, nil
		},
		changes: func(context.Context) (<-chan struct{}, error) { return changes, nil },
		log:     zap.NewNop(),
	}

	errs := make(chan error, 1)
	snapshots := make(chan []domain.Message, 1)
	stop := src.Listen(context.Background(), DefaultQuery("messages"),
		func(m []domain.Message) { snapshots <- m },
		func(err error) { errs <- err },
	)
	defer stop()

	require.EqualError(t, <-errs, "timeout")
	changes <- struct{}{}
	assert.Len(t, <-snapshots, 1)
}

func TestChangeSource_ClosedChangeStream(t *testing.T) {
	changes := make(chan struct{})
	close(changes)
	src := &ChangeSource{
		name:    "test",
		load:    func(context.Context, string) ([]domain.Message, error) { return nil, nil },
		changes: func(context.Context) (<-chan struct{}, error) { return changes, nil },
		log:     zap.NewNop(),
	}

	errs := make(chan error, 1)
	stop := src.Listen(context.Background(), DefaultQuery("messages"),
		func([]domain.Message) {},
		func(err error) { errs <- err },
	)
	defer stop()

	assert.ErrorIs(t, <-errs, errChangesClosed)
}

const atomFeed = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>messages</title>
  <id>urn:fidoo:messages</id>
  <updated>2025-03-01T12:00:05Z</updated>
  <entry>
    <id>m2</id>
    <title>second</title>
    <content type="text">¿todo bien?</content>
    <published>2025-03-01T12:00:05Z</published>
    <updated>2025-03-01T12:00:05Z</updated>
    <author><name>u2</name><email>luis@fidoo.io</email></author>
  </entry>
  <entry>
    <id>m1</id>
    <title>first</title>
    <content type="text">hola</content>
    <published>2025-03-01T12:00:00Z</published>
    <updated>2025-03-01T12:00:00Z</updated>
    <author><name>u1</name><email>ana@fidoo.io</email></author>
  </entry>
</feed>`

func TestPollSource_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/feeds/lobby.atom", r.URL.Path)
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(atomFeed))
	}))
	defer srv.Close()

	src := NewPollSource(srv.URL+"/feeds/{collection}.atom", time.Hour, zap.NewNop())
	msgs, err := src.Fetch(context.Background(), "lobby")
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	feed := domain.NewFeed(msgs)
	assert.Equal(t, domain.Message{
		ID:          "m1",
		Text:        "hola",
		AuthorID:    "u1",
		AuthorLabel: "ana@fidoo.io",
		CreatedAt:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}, feed[0])
	assert.Equal(t, "m2", feed[1].ID)
}

func TestPollSource_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	src := NewPollSource(srv.URL, time.Hour, zap.NewNop())
	_, err := src.Fetch(context.Background(), "messages")
	assert.EqualError(t, err, "HTTP 502")
}

func TestPollSource_ListenFeedsStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(atomFeed))
	}))
	defer srv.Close()

	store := NewStore(NewPollSource(srv.URL, time.Hour, zap.NewNop()), DefaultQuery("messages"), zap.NewNop())
	sub := store.Subscribe()

	select {
	case f := <-sub.Updates():
		assert.Equal(t, []string{"m1", "m2"}, feedIDs(f))
	case <-time.After(5 * time.Second):
		t.Fatal("no snapshot from poll source")
	}

	sub.Cancel()
	assert.Len(t, store.Feed(), 2)
}

func TestGenerateIDFallback(t *testing.T) {
	id := generateID("seed")
	assert.Len(t, id, 12)
	assert.Equal(t, id, generateID("seed"))
}
