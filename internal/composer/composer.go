package composer

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fidoochat/internal/backend"
	"fidoochat/internal/domain"
	"fidoochat/internal/session"
)

// Sender posts one message to the backend.
type Sender interface {
	PostMessage(ctx context.Context, token, text, idempotencyKey string) (*backend.Reply, error)
}

// Composer owns the draft and the send flow. It never adds the sent message
// to the feed; it shows up with the next snapshot.
type Composer struct {
	session session.View
	sender  Sender
	log     *zap.Logger
	newKey  func() string

	mu       sync.Mutex
	draft    string
	inFlight bool

	// The key survives failed attempts at the same text so a resend can be
	// deduplicated by the backend.
	keyText string
	key     string
}

func New(sess session.View, sender Sender, log *zap.Logger) *Composer {
	return &Composer{
		session: sess,
		sender:  sender,
		log:     log.Named("composer"),
		newKey:  uuid.NewString,
	}
}

func (c *Composer) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
}

func (c *Composer) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Sending reports whether a send is in flight.
func (c *Composer) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Submit sends the current draft with the current session token.
func (c *Composer) Submit(ctx context.Context) error {
	return c.Send(ctx, c.Draft(), c.session.Current().Token)
}

// Send validates and posts draftText. Checks run in order: session, empty
// text (a silent no-op), token. Only one send may be in flight; overlapping
// calls fail with domain.ErrSendInFlight. The draft is cleared only after
// the backend answers 2xx, and only if it still holds the sent text.
func (c *Composer) Send(ctx context.Context, draftText, token string) error {
	if !c.session.Current().Authenticated() {
		return domain.ErrUnauthenticated
	}

	text := strings.TrimSpace(draftText)
	if text == "" {
		return nil
	}

	if token == "" {
		return domain.ErrMissingToken
	}

	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return domain.ErrSendInFlight
	}
	c.inFlight = true
	if c.keyText != text || c.key == "" {
		c.keyText = text
		c.key = c.newKey()
	}
	key := c.key
	c.mu.Unlock()

	reply, err := c.sender.PostMessage(ctx, token, text, key)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false

	if err != nil {
		if !errors.Is(err, domain.ErrSendFailed) {
			err = &domain.SendError{Err: err}
		}
		c.log.Warn("send failed, keeping draft", zap.Error(err), zap.String("idempotency_key", key))
		return err
	}

	// Text typed while the POST was pending stays.
	if strings.TrimSpace(c.draft) == text {
		c.draft = ""
	}
	c.key = ""
	c.keyText = ""

	var answer string
	if reply != nil {
		answer = reply.Reply
	}
	c.log.Info("message sent", zap.String("reply", answer), zap.String("idempotency_key", key))
	return nil
}
