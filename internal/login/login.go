package login

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"fidoochat/internal/auth"
)

// Verifier checks an identity token with the backend.
type Verifier interface {
	VerifyToken(ctx context.Context, token string) error
}

type Flow struct {
	provider auth.Provider
	verifier Verifier
	log      *zap.Logger
}

func New(p auth.Provider, v Verifier, log *zap.Logger) *Flow {
	return &Flow{provider: p, verifier: v, log: log.Named("login")}
}

// Login signs in and has the backend verify the resulting token. A rejected
// token signs the user back out.
func (f *Flow) Login(ctx context.Context, email, password string) (*auth.User, error) {
	user, err := f.provider.SignIn(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}

	token, err := f.provider.IDToken(ctx, false)
	if err != nil {
		f.signOut(ctx)
		return nil, fmt.Errorf("id token: %w", err)
	}

	if err := f.verifier.VerifyToken(ctx, token); err != nil {
		f.log.Warn("backend rejected token", zap.String("email", user.Email), zap.Error(err))
		f.signOut(ctx)
		return nil, err
	}

	f.log.Info("login ok", zap.String("email", user.Email))
	return user, nil
}

func (f *Flow) Logout(ctx context.Context) error {
	if err := f.provider.SignOut(ctx); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	f.log.Info("logged out")
	return nil
}

func (f *Flow) signOut(ctx context.Context) {
	if err := f.provider.SignOut(ctx); err != nil {
		f.log.Error("sign out after failed login", zap.Error(err))
	}
}
