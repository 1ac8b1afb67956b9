// Package storage is the durable client-side key-value substrate shared by the
// engagement overlay, the local post collection, the profile overlay and the
// auth session.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Key names. Every persisted value lives under exactly one of these.
const (
	KeyEngagementLikes      = "engagement-likes"
	KeyEngagementLikedFlags = "engagement-liked-flags"
	KeyEngagementComments   = "engagement-comments"
	KeyLocalPosts           = "local-posts"
	KeyProfileMetadata      = "profile-metadata"
	KeyAuthSession          = "auth-session"

	// Legacy keys, read once and folded into KeyLocalPosts.
	KeyLegacyMyPosts   = "my-posts-mirror"
	KeyLegacyFeedCache = "feed-posts-cache"
)

var (
	// ErrCorrupt is returned when a stored value cannot be decoded into its key's type.
	ErrCorrupt = errors.New("stored value is corrupt")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store is closed")
)

// Store is a synchronous, string-keyed get/set interface over one shared namespace.
// A missing key is reported through ok == false, never as an error.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Key binds a key name to the Go type stored under it.
type Key[T any] struct {
	name  string
	empty func() T
}

// NewKey declares a typed key. empty builds the value returned when nothing is stored.
func NewKey[T any](name string, empty func() T) Key[T] {
	if empty == nil {
		empty = func() T {
			var zero T
			return zero
		}
	}
	return Key[T]{name: name, empty: empty}
}

// Name returns the key name.
func (k Key[T]) Name() string { return k.name }

// Load reads and decodes the value. Absence yields the key's empty value.
// A value that fails to decode yields the empty value and an error wrapping ErrCorrupt.
func (k Key[T]) Load(ctx context.Context, s Store) (T, error) {
	raw, ok, err := s.Get(ctx, k.name)
	if err != nil {
		return k.empty(), fmt.Errorf("load %s: %w", k.name, err)
	}
	if !ok || raw == "" || raw == "null" {
		return k.empty(), nil
	}

	v := k.empty()
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return k.empty(), fmt.Errorf("%w: %s: %v", ErrCorrupt, k.name, err)
	}
	return v, nil
}

// Save replaces the whole stored value.
func (k Key[T]) Save(ctx context.Context, s Store, v T) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", k.name, err)
	}
	if err := s.Set(ctx, k.name, string(b)); err != nil {
		return fmt.Errorf("save %s: %w", k.name, err)
	}
	return nil
}

// Clear removes the stored value.
func (k Key[T]) Clear(ctx context.Context, s Store) error {
	if err := s.Delete(ctx, k.name); err != nil {
		return fmt.Errorf("clear %s: %w", k.name, err)
	}
	return nil
}

// Exists reports whether anything is stored under the key.
func (k Key[T]) Exists(ctx context.Context, s Store) (bool, error) {
	_, ok, err := s.Get(ctx, k.name)
	return ok, err
}
