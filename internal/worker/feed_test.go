package worker

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"fidoochat/internal/domain"
	"fidoochat/internal/feed"
	"fidoochat/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type pushSource struct {
	mu sync.Mutex
	fn func([]domain.Message)
}

func (p *pushSource) Listen(_ context.Context, _ feed.Query, onSnapshot func([]domain.Message), _ func(error)) func() {
	p.mu.Lock()
	p.fn = onSnapshot
	p.mu.Unlock()
	return func() {}
}

func (p *pushSource) push(msgs ...domain.Message) {
	p.mu.Lock()
	fn := p.fn
	p.mu.Unlock()
	fn(msgs)
}

type textRenderer struct{}

func (textRenderer) RenderFeed(w io.Writer, f domain.Feed, me string) error {
	for _, m := range f {
		who := m.AuthorLabel
		if who == me {
			who = "me"
		}
		fmt.Fprintf(w, "%s:%s;", who, m.Text)
	}
	return nil
}

type recorder struct {
	ch chan string
}

func (r *recorder) Broadcast(msg string) { r.ch <- msg }

func TestFeedRenderer_BroadcastsEverySnapshot(t *testing.T) {
	src := &pushSource{}
	store := feed.NewStore(src, feed.DefaultQuery("messages"), zap.NewNop())
	sub := store.Subscribe()

	sess := session.New(zap.NewNop())
	sess.OnAuthChanged(&domain.Identity{UID: "u1", Email: "ana@fidoo.io"}, "tok")

	rec := &recorder{ch: make(chan string, 4)}
	w := NewFeedRenderer(sub, sess, textRenderer{}, rec, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	src.push(
		domain.Message{ID: "2", Text: "hola", AuthorLabel: "luis@fidoo.io", CreatedAt: at.Add(time.Second)},
		domain.Message{ID: "1", Text: "buenas", AuthorLabel: "ana@fidoo.io", CreatedAt: at},
	)

	select {
	case got := <-rec.ch:
		assert.Equal(t, "me:buenas;luis@fidoo.io:hola;", got)
	case <-time.After(5 * time.Second):
		t.Fatal("nothing broadcast")
	}

	cancel()
	require.NoError(t, <-done)
	sub.Cancel()
}

func TestFeedRenderer_StopsWhenSubscriptionCancelled(t *testing.T) {
	src := &pushSource{}
	store := feed.NewStore(src, feed.DefaultQuery("messages"), zap.NewNop())
	sub := store.Subscribe()

	rec := &recorder{ch: make(chan string, 1)}
	w := NewFeedRenderer(sub, session.New(zap.NewNop()), textRenderer{}, rec, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- w.Start(context.Background()) }()

	sub.Cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("renderer did not stop")
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, strings.Repeat("a", 3)+"...", truncate("aaaaaa", 3))
}
