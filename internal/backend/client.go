package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"fidoochat/internal/domain"
)

const IdempotencyHeader = "Idempotency-Key"

// Reply is the backend's answer to a posted message.
type Reply struct {
	Reply string `json:"reply"`
}

type Client struct {
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log.Named("backend") }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// New fails with domain.ErrConfigurationMissing when baseURL is empty.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, domain.ErrConfigurationMissing
	}

	c := &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// PostMessage sends one chat message. Any 2xx counts as delivered; other
// statuses and transport failures come back as *domain.SendError.
func (c *Client) PostMessage(ctx context.Context, token, text, idempotencyKey string) (*Reply, error) {
	body, err := json.Marshal(map[string]string{"message": text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/message", bytes.NewReader(body))
	if err != nil {
		return nil, &domain.SendError{Err: err}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if idempotencyKey != "" {
		req.Header.Set(IdempotencyHeader, idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &domain.SendError{Err: err}
	}
	defer resp.Body.Close()

	if !success(resp.StatusCode) {
		return nil, &domain.SendError{Status: resp.StatusCode, Reason: readReason(resp.Body)}
	}

	var reply Reply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		c.log.Warn("undecodable reply", zap.Int("status", resp.StatusCode), zap.Error(err))
		return &Reply{}, nil
	}

	c.log.Debug("message accepted", zap.String("reply", reply.Reply))
	return &reply, nil
}

// VerifyToken asks the backend to accept token. There is no request body.
func (c *Client) VerifyToken(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/verify", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("verify token: %w", err)
	}
	defer resp.Body.Close()

	if !success(resp.StatusCode) {
		return fmt.Errorf("%w: HTTP %d", domain.ErrTokenRejected, resp.StatusCode)
	}
	return nil
}

func success(status int) bool {
	return status >= 200 && status < 300
}

func readReason(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	var envelope struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &envelope) == nil && envelope.Error != "" {
		return envelope.Error
	}
	return strings.TrimSpace(string(b))
}
