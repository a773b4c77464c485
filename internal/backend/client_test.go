package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fidoochat/internal/domain"
)

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New("   ")
	assert.ErrorIs(t, err, domain.ErrConfigurationMissing)
}

func TestPostMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/message", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "key-1", r.Header.Get(IdempotencyHeader))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"message": "hola"}, body)

		_ = json.NewEncoder(w).Encode(map[string]string{"reply": "recibido"})
	}))
	defer srv.Close()

	c, err := New(srv.URL + "/")
	require.NoError(t, err)

	reply, err := c.PostMessage(context.Background(), "tok-1", "hola", "key-1")
	require.NoError(t, err)
	assert.Equal(t, "recibido", reply.Reply)
}

func TestPostMessage_AcceptsAny2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)

	reply, err := c.PostMessage(context.Background(), "tok", "hi", "")
	require.NoError(t, err)
	assert.Empty(t, reply.Reply)
}

func TestPostMessage_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"token expired"}`)
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)

	_, err = c.PostMessage(context.Background(), "tok", "hi", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSendFailed)

	var se *domain.SendError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Status)
	assert.Equal(t, "token expired", se.Reason)
}

func TestPostMessage_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := New(url)
	require.NoError(t, err)

	_, err = c.PostMessage(context.Background(), "tok", "hi", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSendFailed)

	var se *domain.SendError
	require.ErrorAs(t, err, &se)
	assert.Zero(t, se.Status)
	assert.NotNil(t, se.Err)
}

func TestVerifyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/verify", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		b, _ := io.ReadAll(r.Body)
		assert.Empty(t, b)

		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)

	require.NoError(t, c.VerifyToken(context.Background(), "good"))

	err = c.VerifyToken(context.Background(), "bad")
	assert.ErrorIs(t, err, domain.ErrTokenRejected)
	assert.Contains(t, err.Error(), "403")
}
