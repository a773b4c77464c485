package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// StoredSession is what survives a process restart. The ID token is not
// kept; it is refreshed on first use.
type StoredSession struct {
	UID          string `json:"uid"`
	Email        string `json:"email"`
	RefreshToken string `json:"refreshToken"`
}

// TokenStore persists the signed-in session between runs.
type TokenStore interface {
	Load() (*StoredSession, error)
	Save(s StoredSession) error
	Clear() error
}

// FileTokenStore keeps the session as a JSON file readable only by the
// current user.
type FileTokenStore struct {
	path string
}

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// DefaultSessionPath is fidoochat/session.json under the user config dir.
func DefaultSessionPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "fidoochat", "session.json"), nil
}

func (s *FileTokenStore) Path() string { return s.path }

// Load returns nil, nil when nothing is stored.
func (s *FileTokenStore) Load() (*StoredSession, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var stored StoredSession
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if stored.RefreshToken == "" {
		return nil, nil
	}
	return &stored, nil
}

func (s *FileTokenStore) Save(stored StoredSession) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileTokenStore) Clear() error {
	err := os.Remove(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
