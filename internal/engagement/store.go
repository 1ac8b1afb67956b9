// Package engagement persists the client-owned like counts, liked flags and
// comment lists, each as one whole mapping keyed by post id.
package engagement

import (
	"context"
	"errors"
	"log/slog"

	"minilink/internal/observability"
	"minilink/internal/storage"
)

var (
	likesKey = storage.NewKey(storage.KeyEngagementLikes, func() map[string]int {
		return map[string]int{}
	})
	likedKey = storage.NewKey(storage.KeyEngagementLikedFlags, func() map[string]bool {
		return map[string]bool{}
	})
	commentsKey = storage.NewKey(storage.KeyEngagementComments, func() map[string][]string {
		return map[string][]string{}
	})
)

// Entry is the engagement overlay for one post.
type Entry struct {
	LikeCount int      `json:"likeCount"`
	LikedByMe bool     `json:"likedByMe"`
	Comments  []string `json:"comments"`
}

// Store reads and writes the three engagement mappings.
// Loads never fail on absence; a corrupt mapping is logged and treated as empty.
type Store struct {
	store  storage.Store
	logger *slog.Logger
}

// New returns a Store over s.
func New(s storage.Store) *Store {
	return &Store{store: s, logger: observability.Component("engagement")}
}

// LoadLikes returns the like-count mapping.
func (s *Store) LoadLikes(ctx context.Context) (map[string]int, error) {
	return load(ctx, s, likesKey)
}

// SaveLikes replaces the like-count mapping.
func (s *Store) SaveLikes(ctx context.Context, m map[string]int) error {
	return likesKey.Save(ctx, s.store, m)
}

// LoadLiked returns the liked-flag mapping.
func (s *Store) LoadLiked(ctx context.Context) (map[string]bool, error) {
	return load(ctx, s, likedKey)
}

// SaveLiked replaces the liked-flag mapping.
func (s *Store) SaveLiked(ctx context.Context, m map[string]bool) error {
	return likedKey.Save(ctx, s.store, m)
}

// LoadComments returns the comments mapping.
func (s *Store) LoadComments(ctx context.Context) (map[string][]string, error) {
	return load(ctx, s, commentsKey)
}

// SaveComments replaces the comments mapping.
func (s *Store) SaveComments(ctx context.Context, m map[string][]string) error {
	return commentsKey.Save(ctx, s.store, m)
}

func load[T any](ctx context.Context, s *Store, key storage.Key[T]) (T, error) {
	v, err := key.Load(ctx, s.store)
	if errors.Is(err, storage.ErrCorrupt) {
		s.logger.WarnContext(ctx, "resetting corrupt engagement mapping",
			slog.String("key", key.Name()),
			slog.String("error", err.Error()),
		)
		return v, nil
	}
	return v, err
}

// Snapshot holds all three mappings for one read-modify-write cycle.
type Snapshot struct {
	Likes    map[string]int
	Liked    map[string]bool
	Comments map[string][]string
}

// Snapshot loads all three mappings.
func (s *Store) Snapshot(ctx context.Context) (Snapshot, error) {
	likes, err := s.LoadLikes(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	liked, err := s.LoadLiked(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	comments, err := s.LoadComments(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Likes: likes, Liked: liked, Comments: comments}, nil
}

// Entry returns the entry for id, filling defaults for anything missing.
// A negative stored count reads as zero.
func (snap Snapshot) Entry(id string) Entry {
	e := Entry{
		LikeCount: max(snap.Likes[id], 0),
		LikedByMe: snap.Liked[id],
		Comments:  []string{},
	}
	if c := snap.Comments[id]; len(c) > 0 {
		e.Comments = append(e.Comments, c...)
	}
	return e
}

// Entry loads the current entry for one post.
func (s *Store) Entry(ctx context.Context, id string) (Entry, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return Entry{}, err
	}
	return snap.Entry(id), nil
}
