package auth

import (
	"context"
	"errors"

	"fidoochat/internal/domain"
)

var ErrNotSignedIn = errors.New("auth: no signed-in user")

// User is the provider's view of the signed-in account.
type User struct {
	UID   string
	Email string
}

func (u *User) Identity() *domain.Identity {
	if u == nil {
		return nil
	}
	return &domain.Identity{UID: u.UID, Email: u.Email}
}

// Provider is the external identity service. Listeners receive nil on
// sign-out and are called once with the current state when registered.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*User, error)
	SignOut(ctx context.Context) error
	CurrentUser() *User
	IDToken(ctx context.Context, forceRefresh bool) (string, error)
	OnAuthStateChanged(fn func(*User)) (unsubscribe func())
}
