// Package session keeps the signed-in user and bearer token in the local store.
package session

import (
	"context"
	"errors"

	"minilink/internal/storage"
)

// ErrNotSignedIn is returned when a token is requested without a session.
var ErrNotSignedIn = errors.New("not signed in")

// State is the persisted session.
type State struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Token  string `json:"token"`
}

var sessionKey = storage.NewKey[*State](storage.KeyAuthSession, nil)

// Store persists the current session.
type Store struct {
	store storage.Store
}

// New returns a session store over s.
func New(s storage.Store) *Store {
	return &Store{store: s}
}

// Login replaces the current session.
func (s *Store) Login(ctx context.Context, st State) error {
	return sessionKey.Save(ctx, s.store, &st)
}

// Logout forgets the session. Engagement and profile state are kept.
func (s *Store) Logout(ctx context.Context) error {
	return sessionKey.Clear(ctx, s.store)
}

// Current returns the session, or nil when signed out.
func (s *Store) Current(ctx context.Context) (*State, error) {
	st, err := sessionKey.Load(ctx, s.store)
	if errors.Is(err, storage.ErrCorrupt) {
		return nil, nil
	}
	return st, err
}

// Token returns the bearer token of the current session.
func (s *Store) Token(ctx context.Context) (string, error) {
	st, err := s.Current(ctx)
	if err != nil {
		return "", err
	}
	if st == nil || st.Token == "" {
		return "", ErrNotSignedIn
	}
	return st.Token, nil
}
