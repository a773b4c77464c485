package worker

import (
	"bytes"
	"context"
	"io"

	"go.uber.org/zap"

	"fidoochat/internal/domain"
	"fidoochat/internal/feed"
	"fidoochat/internal/session"
)

type Broadcaster interface {
	Broadcast(msg string)
}

// Renderer turns a feed into the HTML fragment pushed to browsers. me is
// the signed-in email, used to tell own messages apart.
type Renderer interface {
	RenderFeed(w io.Writer, f domain.Feed, me string) error
}

// FeedRenderer pushes every snapshot of a subscription to the browsers.
type FeedRenderer struct {
	sub         *feed.Subscription
	session     session.View
	renderer    Renderer
	broadcaster Broadcaster
	log         *zap.Logger
}

func NewFeedRenderer(sub *feed.Subscription, sess session.View, r Renderer, b Broadcaster, log *zap.Logger) *FeedRenderer {
	return &FeedRenderer{
		sub:         sub,
		session:     sess,
		renderer:    r,
		broadcaster: b,
		log:         log.Named("renderer"),
	}
}

// Start runs until ctx is done or the subscription is cancelled.
func (w *FeedRenderer) Start(ctx context.Context) error {
	updates := w.sub.Updates()
	errs := w.sub.Errors()

	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-updates:
			if !ok {
				return nil
			}
			w.handleFeed(f)
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			w.log.Debug("feed stale", zap.Error(err))
		}
	}
}

func (w *FeedRenderer) handleFeed(f domain.Feed) {
	if last, ok := f.Last(); ok {
		w.log.Debug("received", zap.Int("messages", f.Len()), zap.String("last", truncate(last.Text, 60)))
	}

	var buf bytes.Buffer
	if err := w.renderer.RenderFeed(&buf, f, w.session.Current().Email()); err != nil {
		w.log.Error("render feed", zap.Error(err))
		return
	}
	w.broadcaster.Broadcast(buf.String())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
