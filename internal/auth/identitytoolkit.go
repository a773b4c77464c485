package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const tokenSkew = 30 * time.Second

// IdentityToolkit signs users in with email and password against the
// Identity Toolkit REST API. Tokens live in memory; with a TokenStore the
// refresh token also outlives the process.
type IdentityToolkit struct {
	apiKey        string
	endpoint      string
	tokenEndpoint string
	client        *http.Client
	store         TokenStore
	now           func() time.Time

	// notifyMu orders state changes with their notifications, so listeners
	// see sign-ins and sign-outs in the order they happened.
	notifyMu sync.Mutex

	mu           sync.Mutex
	user         *User
	idToken      string
	refreshToken string
	expiresAt    time.Time

	listenersMu sync.Mutex
	listeners   map[int]func(*User)
	nextID      int
}

type Option func(*IdentityToolkit)

func WithTokenStore(s TokenStore) Option {
	return func(p *IdentityToolkit) { p.store = s }
}

func NewIdentityToolkit(apiKey, endpoint, tokenEndpoint string, timeout time.Duration, opts ...Option) *IdentityToolkit {
	p := &IdentityToolkit{
		apiKey:        apiKey,
		endpoint:      strings.TrimRight(endpoint, "/"),
		tokenEndpoint: strings.TrimRight(tokenEndpoint, "/"),
		client:        &http.Client{Timeout: timeout},
		now:           time.Now,
		listeners:     make(map[int]func(*User)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Restore signs back in from the token store, if one is set and holds a
// session. It returns nil when there is nothing to restore. The ID token is
// fetched lazily by the first IDToken call.
func (p *IdentityToolkit) Restore() (*User, error) {
	if p.store == nil {
		return nil, nil
	}
	stored, err := p.store.Load()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if stored == nil {
		return nil, nil
	}

	user := &User{UID: stored.UID, Email: stored.Email}

	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()

	p.mu.Lock()
	p.user = user
	p.idToken = ""
	p.refreshToken = stored.RefreshToken
	p.expiresAt = time.Time{}
	p.mu.Unlock()

	p.notify(user)
	return user, nil
}

// APIError is the provider's error envelope, e.g. INVALID_PASSWORD.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("identity provider: HTTP %d: %s", e.Status, e.Message)
}

func (p *IdentityToolkit) SignIn(ctx context.Context, email, password string) (*User, error) {
	var resp struct {
		LocalID      string `json:"localId"`
		Email        string `json:"email"`
		IDToken      string `json:"idToken"`
		RefreshToken string `json:"refreshToken"`
		ExpiresIn    string `json:"expiresIn"`
	}

	endpoint := p.endpoint + "/v1/accounts:signInWithPassword?key=" + url.QueryEscape(p.apiKey)
	err := p.postJSON(ctx, endpoint, map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return nil, err
	}

	user := &User{UID: resp.LocalID, Email: resp.Email}

	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()

	if p.store != nil {
		err := p.store.Save(StoredSession{UID: user.UID, Email: user.Email, RefreshToken: resp.RefreshToken})
		if err != nil {
			return nil, fmt.Errorf("save session: %w", err)
		}
	}

	p.mu.Lock()
	p.user = user
	p.idToken = resp.IDToken
	p.refreshToken = resp.RefreshToken
	p.expiresAt = p.now().Add(parseExpiresIn(resp.ExpiresIn))
	p.mu.Unlock()

	p.notify(user)
	return user, nil
}

// SignOut forgets the session in memory and in the token store.
func (p *IdentityToolkit) SignOut(_ context.Context) error {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()

	p.mu.Lock()
	wasSignedIn := p.user != nil
	p.user = nil
	p.idToken = ""
	p.refreshToken = ""
	p.expiresAt = time.Time{}
	p.mu.Unlock()

	if wasSignedIn {
		p.notify(nil)
	}

	if p.store != nil {
		if err := p.store.Clear(); err != nil {
			return fmt.Errorf("clear session: %w", err)
		}
	}
	return nil
}

func (p *IdentityToolkit) CurrentUser() *User {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.user == nil {
		return nil
	}
	u := *p.user
	return &u
}

// IDToken returns the cached token, refreshing it when it is about to
// expire or when forceRefresh is set.
func (p *IdentityToolkit) IDToken(ctx context.Context, forceRefresh bool) (string, error) {
	p.mu.Lock()
	if p.user == nil {
		p.mu.Unlock()
		return "", ErrNotSignedIn
	}
	if !forceRefresh && p.idToken != "" && p.now().Add(tokenSkew).Before(p.expiresAt) {
		tok := p.idToken
		p.mu.Unlock()
		return tok, nil
	}
	refresh := p.refreshToken
	p.mu.Unlock()

	var resp struct {
		IDToken      string `json:"id_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    string `json:"expires_in"`
		UserID       string `json:"user_id"`
	}

	endpoint := p.tokenEndpoint + "/v1/token?key=" + url.QueryEscape(p.apiKey)
	if err := p.postJSON(ctx, endpoint, map[string]any{
		"grant_type":    "refresh_token",
		"refresh_token": refresh,
	}, &resp); err != nil {
		return "", fmt.Errorf("refresh token: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.user == nil {
		return "", ErrNotSignedIn
	}
	p.idToken = resp.IDToken
	if resp.RefreshToken != "" && resp.RefreshToken != p.refreshToken {
		p.refreshToken = resp.RefreshToken
		if p.store != nil {
			err := p.store.Save(StoredSession{UID: p.user.UID, Email: p.user.Email, RefreshToken: p.refreshToken})
			if err != nil {
				return "", fmt.Errorf("save session: %w", err)
			}
		}
	}
	p.expiresAt = p.now().Add(parseExpiresIn(resp.ExpiresIn))
	return p.idToken, nil
}

// OnAuthStateChanged registers fn and calls it with the current user.
// Listeners run one notification at a time and must not sign in or out.
func (p *IdentityToolkit) OnAuthStateChanged(fn func(*User)) func() {
	p.notifyMu.Lock()
	p.listenersMu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.listenersMu.Unlock()

	fn(p.CurrentUser())
	p.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.listenersMu.Lock()
			delete(p.listeners, id)
			p.listenersMu.Unlock()
		})
	}
}

// notify must be called with notifyMu held.
func (p *IdentityToolkit) notify(u *User) {
	p.listenersMu.Lock()
	fns := make([]func(*User), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.listenersMu.Unlock()

	for _, fn := range fns {
		if u == nil {
			fn(nil)
			continue
		}
		cp := *u
		fn(&cp)
	}
}

func (p *IdentityToolkit) postJSON(ctx context.Context, endpoint string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error.Message}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func parseExpiresIn(s string) time.Duration {
	secs, err := strconv.Atoi(s)
	if err != nil || secs <= 0 {
		return time.Hour
	}
	return time.Duration(secs) * time.Second
}
