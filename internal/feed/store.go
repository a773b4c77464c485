package feed

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"fidoochat/internal/domain"
)

// Store keeps a read-only mirror of a remote collection. However many
// subscriptions are open, at most one Source listen is active; it is
// released when the last subscription is cancelled.
type Store struct {
	src   Source
	query Query
	log   *zap.Logger

	mu     sync.Mutex
	feed   domain.Feed
	loaded bool
	subs   map[*Subscription]struct{}
	gen    uint64
	stop   func()
}

func NewStore(src Source, q Query, log *zap.Logger) *Store {
	return &Store{
		src:   src,
		query: q,
		log:   log.Named("feed"),
		subs:  make(map[*Subscription]struct{}),
	}
}

// Subscription is one consumer's handle on the store.
type Subscription struct {
	store   *Store
	updates chan domain.Feed
	errs    chan error
	once    sync.Once
}

// Updates carries every snapshot, newest only if the reader falls behind.
// It is closed by Cancel.
func (s *Subscription) Updates() <-chan domain.Feed { return s.updates }

// Errors carries transport failures. Delivery is best effort.
func (s *Subscription) Errors() <-chan error { return s.errs }

// Cancel releases the subscription. Calling it more than once is a no-op.
func (s *Subscription) Cancel() {
	s.once.Do(func() { s.store.release(s) })
}

func (s *Subscription) offer(f domain.Feed) {
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- f:
	default:
	}
}

// Subscribe opens the remote subscription if none is active, or joins the
// active one. A joining subscriber gets the last snapshot right away.
func (s *Store) Subscribe() *Subscription {
	sub := &Subscription{
		store:   s,
		updates: make(chan domain.Feed, 1),
		errs:    make(chan error, 8),
	}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	if len(s.subs) > 1 {
		if s.loaded {
			sub.offer(s.feed.Clone())
		}
		s.mu.Unlock()
		return sub
	}
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	stopSource := s.src.Listen(ctx, s.query,
		func(msgs []domain.Message) { s.apply(gen, msgs) },
		func(err error) { s.fail(gen, err) },
	)
	stop := func() {
		cancel()
		stopSource()
	}

	s.mu.Lock()
	if s.gen != gen {
		// Cancelled while Listen was starting.
		s.mu.Unlock()
		stop()
		return sub
	}
	s.stop = stop
	s.mu.Unlock()

	s.log.Info("subscribed", zap.String("collection", s.query.Collection))
	return sub
}

// Feed returns a copy of the last snapshot. It stays in place after
// errors and after the last subscription is cancelled.
func (s *Store) Feed() domain.Feed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feed.Clone()
}

func (s *Store) apply(gen uint64, msgs []domain.Message) {
	feed := domain.NewFeed(msgs)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || len(s.subs) == 0 {
		return
	}

	s.feed = feed
	s.loaded = true
	for sub := range s.subs {
		sub.offer(feed.Clone())
	}

	s.log.Debug("snapshot", zap.Int("messages", len(feed)))
}

func (s *Store) fail(gen uint64, err error) {
	serr := &domain.SubscriptionError{Collection: s.query.Collection, Err: err}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		return
	}

	s.log.Error("subscription error, keeping last feed", zap.Error(serr), zap.Int("messages", len(s.feed)))
	for sub := range s.subs {
		select {
		case sub.errs <- serr:
		default:
		}
	}
}

func (s *Store) release(sub *Subscription) {
	s.mu.Lock()
	delete(s.subs, sub)
	close(sub.updates)
	close(sub.errs)

	var stop func()
	if len(s.subs) == 0 {
		s.gen++
		stop = s.stop
		s.stop = nil
	}
	s.mu.Unlock()

	if stop != nil {
		stop()
		s.log.Info("unsubscribed", zap.String("collection", s.query.Collection))
	}
}
