// Package profile keeps the user's profile metadata as one self-contained local
// record. Attached images are stored inline as data URLs.
package profile

import (
	"context"
	"errors"
	"log/slog"

	"minilink/internal/notifications"
	"minilink/internal/observability"
	"minilink/internal/session"
	"minilink/internal/storage"
)

// Metadata is the locally owned profile record.
type Metadata struct {
	Name         string `json:"name"`
	Surname      string `json:"surname"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Description  string `json:"description"`
	CoverImage   string `json:"coverImage"`
	ProfileImage string `json:"profileImage"`
}

var metadataKey = storage.NewKey[*Metadata](storage.KeyProfileMetadata, nil)

// Store loads and saves the profile record.
type Store struct {
	store    storage.Store
	maxBytes int64
	bus      *notifications.Bus
	logger   *slog.Logger
}

// New returns a profile store. maxImageBytes <= 0 uses DefaultMaxImageBytes. bus may be nil.
func New(s storage.Store, maxImageBytes int64, bus *notifications.Bus) *Store {
	if maxImageBytes <= 0 {
		maxImageBytes = DefaultMaxImageBytes
	}
	return &Store{
		store:    s,
		maxBytes: maxImageBytes,
		bus:      bus,
		logger:   observability.Component("profile"),
	}
}

// Load returns the stored record. ok is false when nothing has been saved or
// the stored record is unreadable.
func (s *Store) Load(ctx context.Context) (*Metadata, bool, error) {
	m, err := metadataKey.Load(ctx, s.store)
	if errors.Is(err, storage.ErrCorrupt) {
		s.logger.WarnContext(ctx, "ignoring corrupt profile record", slog.String("error", err.Error()))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return m, m != nil, nil
}

// Save replaces the stored record.
func (s *Store) Save(ctx context.Context, m Metadata) error {
	if err := metadataKey.Save(ctx, s.store, &m); err != nil {
		return err
	}
	if s.bus != nil {
		s.bus.Publish(ctx, notifications.Event{Topic: notifications.TopicProfile, Kind: notifications.KindChanged})
	}
	return nil
}

// Current returns the stored record, or Defaults(st) when there is none.
func (s *Store) Current(ctx context.Context, st *session.State) (Metadata, error) {
	m, ok, err := s.Load(ctx)
	if err != nil {
		return Metadata{}, err
	}
	if !ok {
		return Defaults(st), nil
	}
	return *m, nil
}

// Defaults pre-fills a new profile from the signed-in user.
func Defaults(st *session.State) Metadata {
	if st == nil {
		return Metadata{}
	}
	return Metadata{Name: st.Name, Email: st.Email}
}
