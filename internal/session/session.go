package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"fidoochat/internal/auth"
	"fidoochat/internal/domain"
)

// View is the read-only side of the session handed to consumers.
type View interface {
	Current() domain.Session
	Loading() bool
	Ready() <-chan struct{}
}

// Store mirrors the auth provider into local state. It is the only writer
// of the session; everything else reads through View.
type Store struct {
	log *zap.Logger

	mu      sync.RWMutex
	current domain.Session
	loading bool

	ready     chan struct{}
	readyOnce sync.Once
}

func New(log *zap.Logger) *Store {
	return &Store{
		log:     log.Named("session"),
		loading: true,
		ready:   make(chan struct{}),
	}
}

// OnAuthChanged replaces the session. A nil identity means signed out; an
// identity without a token is recorded as signed out.
func (s *Store) OnAuthChanged(identity *domain.Identity, token string) {
	next := domain.Session{}
	if identity != nil && token != "" {
		id := *identity
		next = domain.Session{Identity: &id, Token: token}
	}

	s.mu.Lock()
	s.current = next
	s.loading = false
	s.mu.Unlock()

	s.readyOnce.Do(func() { close(s.ready) })

	if next.Authenticated() {
		s.log.Info("signed in", zap.String("email", next.Email()))
	} else {
		s.log.Info("signed out")
	}
}

func (s *Store) Current() domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur := s.current
	if cur.Identity != nil {
		id := *cur.Identity
		cur.Identity = &id
	}
	return cur
}

// Loading reports whether the provider has not answered yet. Loading is not
// signed out.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Ready is closed after the first auth callback.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// Wait blocks until the first auth callback has been applied.
func (s *Store) Wait(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Bind listens to the provider until the returned func is called. The token
// is fetched before the identity is published, so a signed-in session always
// carries one.
func (s *Store) Bind(ctx context.Context, p auth.Provider) func() {
	return p.OnAuthStateChanged(func(u *auth.User) {
		if u == nil {
			s.OnAuthChanged(nil, "")
			return
		}

		token, err := p.IDToken(ctx, false)
		if err != nil {
			s.log.Error("fetch id token", zap.String("email", u.Email), zap.Error(err))
			s.OnAuthChanged(nil, "")
			return
		}

		s.OnAuthChanged(u.Identity(), token)
	})
}
