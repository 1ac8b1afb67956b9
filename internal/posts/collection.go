// Package posts keeps the single local collection of post references. The
// "my posts" list and the feed cache are both views over it, so a removal is
// one write and one change event.
package posts

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"minilink/internal/feedsource"
	"minilink/internal/notifications"
	"minilink/internal/observability"
	"minilink/internal/storage"

	"github.com/google/uuid"
)

// LocalIDPrefix marks ids assigned on this device for posts without a server id.
const LocalIDPrefix = "local-"

// Ref is one locally known post.
type Ref struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	AuthorID   string    `json:"authorId,omitempty"`
	AuthorName string    `json:"authorName,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	Mine       bool      `json:"mine,omitempty"`
	// Seq orders the user's own posts, newest highest.
	Seq int64 `json:"seq,omitempty"`
}

// MyPost is an entry of the "my posts" view.
type MyPost struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

var refsKey = storage.NewKey(storage.KeyLocalPosts, func() []Ref { return []Ref{} })

// Collection is the authoritative local post list.
type Collection struct {
	mu     sync.Mutex
	store  storage.Store
	bus    *notifications.Bus
	logger *slog.Logger
}

// Open returns the collection over s, folding any legacy mirror or feed cache
// keys into it first. bus may be nil.
func Open(ctx context.Context, s storage.Store, bus *notifications.Bus) (*Collection, error) {
	c := &Collection{
		store:  s,
		bus:    bus,
		logger: observability.Component("posts"),
	}
	if err := c.migrate(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Collection) load(ctx context.Context) ([]Ref, error) {
	refs, err := refsKey.Load(ctx, c.store)
	if errors.Is(err, storage.ErrCorrupt) {
		c.logger.WarnContext(ctx, "resetting corrupt post collection", slog.String("error", err.Error()))
		return refs, nil
	}
	return refs, err
}

// Record prepends a post authored by the current user. An empty id gets a
// local one. Recording a known id moves it to the front and marks it mine.
func (c *Collection) Record(ctx context.Context, id, content string) (MyPost, error) {
	if id == "" {
		id = newLocalID()
	}

	c.mu.Lock()
	refs, err := c.load(ctx)
	if err != nil {
		c.mu.Unlock()
		return MyPost{}, err
	}

	ref := Ref{ID: id, Content: content, CreatedAt: time.Now().UTC()}
	if i := indexOf(refs, id); i >= 0 {
		ref = refs[i]
		if content != "" {
			ref.Content = content
		}
		refs = slices.Delete(refs, i, i+1)
	}
	ref.Mine = true
	ref.Seq = nextSeq(refs)
	refs = slices.Insert(refs, 0, ref)

	err = refsKey.Save(ctx, c.store, refs)
	c.mu.Unlock()
	if err != nil {
		return MyPost{}, err
	}

	c.publish(ctx, notifications.KindAdded, id)
	return MyPost{ID: ref.ID, Content: ref.Content}, nil
}

// List returns the user's own posts, newest first.
func (c *Collection) List(ctx context.Context) ([]MyPost, error) {
	c.mu.Lock()
	refs, err := c.load(ctx)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	mine := make([]Ref, 0, len(refs))
	for _, r := range refs {
		if r.Mine {
			mine = append(mine, r)
		}
	}
	slices.SortStableFunc(mine, func(a, b Ref) int {
		return cmp.Compare(b.Seq, a.Seq)
	})

	out := make([]MyPost, 0, len(mine))
	for _, r := range mine {
		out = append(out, MyPost{ID: r.ID, Content: r.Content})
	}
	return out, nil
}

// Cached returns every locally known post in feed order.
func (c *Collection) Cached(ctx context.Context) ([]Ref, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(ctx)
}

// Contains reports whether id is in the collection.
func (c *Collection) Contains(ctx context.Context, id string) (bool, error) {
	refs, err := c.Cached(ctx)
	if err != nil {
		return false, err
	}
	return indexOf(refs, id) >= 0, nil
}

// Merge replaces the feed cache with the server's posts, in server order,
// followed by the user's posts the server did not return. The mine flag of
// known posts is kept. Merge publishes nothing; the caller owns the refresh.
func (c *Collection) Merge(ctx context.Context, server []feedsource.Post) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	refs, err := c.load(ctx)
	if err != nil {
		return err
	}
	known := make(map[string]Ref, len(refs))
	for _, r := range refs {
		known[r.ID] = r
	}

	merged := make([]Ref, 0, len(server)+len(refs))
	seen := make(map[string]bool, len(server))
	for _, p := range server {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		prev := known[p.ID]
		merged = append(merged, Ref{
			ID:         p.ID,
			Content:    p.Content,
			AuthorID:   p.AuthorID,
			AuthorName: p.AuthorName,
			CreatedAt:  p.CreatedAt,
			Mine:       prev.Mine,
			Seq:        prev.Seq,
		})
	}
	for _, r := range refs {
		if r.Mine && !seen[r.ID] {
			merged = append(merged, r)
		}
	}

	return refsKey.Save(ctx, c.store, merged)
}

// Remove drops id from the collection, and so from both views, and publishes
// one change event. An unknown id is a no-op that publishes nothing.
func (c *Collection) Remove(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	refs, err := c.load(ctx)
	if err != nil {
		c.mu.Unlock()
		return false, err
	}
	i := indexOf(refs, id)
	if i < 0 {
		c.mu.Unlock()
		return false, nil
	}
	refs = slices.Delete(refs, i, i+1)
	err = refsKey.Save(ctx, c.store, refs)
	c.mu.Unlock()
	if err != nil {
		return false, err
	}

	c.publish(ctx, notifications.KindRemoved, id)
	return true, nil
}

func (c *Collection) publish(ctx context.Context, kind notifications.Kind, ids ...string) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(ctx, notifications.Event{Topic: notifications.TopicPosts, Kind: kind, IDs: ids})
}

func indexOf(refs []Ref, id string) int {
	return slices.IndexFunc(refs, func(r Ref) bool { return r.ID == id })
}

func nextSeq(refs []Ref) int64 {
	var top int64
	for _, r := range refs {
		top = max(top, r.Seq)
	}
	return top + 1
}

func newLocalID() string {
	return LocalIDPrefix + uuid.NewString()
}

// IsLocalID reports whether id was assigned on this device.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}
