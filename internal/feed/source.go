package feed

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"fidoochat/internal/domain"
)

var errChangesClosed = errors.New("change stream closed")

// Query names the remote collection. Results are always ascending by
// creation time.
type Query struct {
	Collection string
	OrderBy    string
}

func DefaultQuery(collection string) Query {
	if collection == "" {
		collection = "messages"
	}
	return Query{Collection: collection, OrderBy: "createdAt"}
}

// Source is a remote ordered collection. Every change produces a full
// snapshot; there are no diffs. The returned stop func releases the
// subscription and returns once no more callbacks will run.
type Source interface {
	Listen(ctx context.Context, q Query, onSnapshot func([]domain.Message), onError func(error)) (stop func())
}

// ChangeSource re-reads the whole collection whenever its change stream
// fires.
type ChangeSource struct {
	name    string
	load    func(ctx context.Context, collection string) ([]domain.Message, error)
	changes func(ctx context.Context) (<-chan struct{}, error)
	log     *zap.Logger
}

func (s *ChangeSource) Listen(ctx context.Context, q Query, onSnapshot func([]domain.Message), onError func(error)) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		// Subscribe first so a change landing during the initial read
		// triggers another one.
		changes, err := s.changes(ctx)
		if err != nil {
			if ctx.Err() == nil {
				onError(fmt.Errorf("%s subscribe: %w", s.name, err))
			}
			return
		}

		s.log.Debug("listening", zap.String("collection", q.Collection))
		watch(ctx, changes, func(ctx context.Context) ([]domain.Message, error) {
			return s.load(ctx, q.Collection)
		}, onSnapshot, onError)
	}()

	return func() {
		cancel()
		<-done
	}
}

// watch delivers one snapshot up front and one per signal on changes until
// ctx is done.
func watch[T any](
	ctx context.Context,
	changes <-chan T,
	fetch func(context.Context) ([]domain.Message, error),
	onSnapshot func([]domain.Message),
	onError func(error),
) {
	load := func() {
		msgs, err := fetch(ctx)
		if err != nil {
			if ctx.Err() == nil {
				onError(err)
			}
			return
		}
		onSnapshot(msgs)
	}

	load()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				if ctx.Err() == nil {
					onError(errChangesClosed)
				}
				return
			}
			load()
		}
	}
}
