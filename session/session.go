// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/danielhkuo/quickly-form/models"
)

var ErrNoSession = errors.New("not logged in")

// Session holds the signed-in identity and its tokens. Changes are written
// through to the backing Store when one is set.
type Session struct {
	mu           sync.RWMutex
	identity     models.User
	accessToken  string
	refreshToken string
	store        Store
}

// New returns an empty session persisted to store. store may be nil.
func New(store Store) *Session {
	return &Session{store: store}
}

// Load reads a session from store. A missing file yields an empty session.
func Load(store Store) (*Session, error) {
	s := New(store)
	data, err := store.Load()
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	s.identity = data.User
	s.accessToken = data.AccessToken
	s.refreshToken = data.RefreshToken
	return s, nil
}

func (s *Session) Identity() models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

func (s *Session) LoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken != ""
}

// SignIn replaces identity and tokens, as after a login.
func (s *Session) SignIn(user models.User, accessToken, refreshToken string) error {
	s.mu.Lock()
	s.identity = user
	s.accessToken = accessToken
	s.refreshToken = refreshToken
	s.mu.Unlock()
	return s.persist()
}

// UpdateTokens stores refreshed tokens. An empty refreshToken keeps the
// current one.
func (s *Session) UpdateTokens(accessToken, refreshToken string) error {
	s.mu.Lock()
	s.accessToken = accessToken
	if refreshToken != "" {
		s.refreshToken = refreshToken
	}
	s.mu.Unlock()
	return s.persist()
}

// Clear forgets identity and tokens and removes the stored copy.
func (s *Session) Clear() error {
	s.mu.Lock()
	s.identity = models.User{}
	s.accessToken = ""
	s.refreshToken = ""
	s.mu.Unlock()

	if s.store == nil {
		return nil
	}
	return s.store.Clear()
}

// AccessTokenExpiry reads the exp claim from the access token without
// verifying the signature. ok is false when there is no token or no exp.
func (s *Session) AccessTokenExpiry() (exp time.Time, ok bool) {
	tok := s.AccessToken()
	if tok == "" {
		return time.Time{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return time.Time{}, false
	}
	nd, err := claims.GetExpirationTime()
	if err != nil || nd == nil {
		return time.Time{}, false
	}
	return nd.Time, true
}

func (s *Session) persist() error {
	if s.store == nil {
		return nil
	}
	s.mu.RLock()
	data := Data{User: s.identity, AccessToken: s.accessToken, RefreshToken: s.refreshToken}
	s.mu.RUnlock()
	return s.store.Save(data)
}

// Data is the persisted form of a session.
type Data struct {
	User         models.User `json:"user"`
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
}

type Store interface {
	Load() (Data, error)
	Save(Data) error
	Clear() error
}

// FileStore keeps the session as JSON in a single file readable only by the
// current user.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// DefaultPath returns the session file under the user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config dir: %w", err)
	}
	return filepath.Join(dir, "quickly-form", "session.json"), nil
}

func (f *FileStore) Load() (Data, error) {
	var data Data
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return data, err
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return data, fmt.Errorf("failed to parse session file %s: %w", f.Path, err)
	}
	return data, nil
}

func (f *FileStore) Save(data Data) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}

	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := os.Rename(tmp, f.Path); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

func (f *FileStore) Clear() error {
	err := os.Remove(f.Path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}
