// Package feed merges the server's post list with the local engagement overlay
// and is the single place where likes and comments are changed.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"minilink/internal/engagement"
	"minilink/internal/feedsource"
	"minilink/internal/notifications"
	"minilink/internal/observability"
	"minilink/internal/posts"

	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrFetchFailure wraps a failed remote fetch. Local state is left untouched.
	ErrFetchFailure = errors.New("fetch failed")
	// ErrEmptyInput rejects blank comments and posts.
	ErrEmptyInput = feedsource.ErrEmptyInput
)

// ViewPost is a server post combined with its local engagement.
type ViewPost struct {
	feedsource.Post
	engagement.Entry
	CommentsVisible bool   `json:"commentsVisible"`
	AvatarColor     string `json:"avatarColor"`
	Mine            bool   `json:"mine"`
}

// Reconciler serializes every read-modify-write of the engagement mappings.
// Remote calls run outside its lock.
type Reconciler struct {
	mu         sync.Mutex
	source     feedsource.Source
	engagement *engagement.Store
	posts      *posts.Collection
	bus        *notifications.Bus

	visible map[string]bool
	last    []ViewPost

	unsubscribe []func()
	logger      *slog.Logger
}

// New builds a reconciler. bus may be nil.
func New(source feedsource.Source, eng *engagement.Store, coll *posts.Collection, bus *notifications.Bus) *Reconciler {
	r := &Reconciler{
		source:     source,
		engagement: eng,
		posts:      coll,
		bus:        bus,
		visible:    map[string]bool{},
		logger:     observability.Component("feed"),
	}
	if bus != nil {
		r.unsubscribe = append(r.unsubscribe,
			bus.Subscribe(notifications.TopicPosts, r.onPostsChanged),
			bus.Subscribe(notifications.TopicEngagement, r.onEngagementChanged),
		)
	}
	return r
}

// Close stops listening for change events.
func (r *Reconciler) Close() {
	for _, cancel := range r.unsubscribe {
		cancel()
	}
	r.unsubscribe = nil
}

// Refresh fetches the feed and overlays local engagement. Ids seen for the
// first time get a zero like count that is written back at once, so the likes
// mapping is rewritten on every successful refresh. When the fetch fails
// nothing is written and the last good view is returned with ErrFetchFailure.
// After a successful fetch the feed cache is written before the likes mapping;
// when that first write fails neither is changed.
func (r *Reconciler) Refresh(ctx context.Context) (views []ViewPost, err error) {
	start := time.Now()
	span, ctx := observability.StartSpan(ctx, "feed.refresh")
	outcome := "ok"
	defer func() {
		observability.FeedRefreshes.WithLabelValues(outcome).Inc()
		observability.FeedRefreshLatency.Observe(time.Since(start).Seconds())
		span.End(err)
	}()

	server, err := r.source.List(ctx)
	if err != nil {
		outcome = "fetch_failure"
		r.logger.WarnContext(ctx, "feed refresh failed", slog.String("error", err.Error()))
		return r.Last(), fmt.Errorf("%w: %w", ErrFetchFailure, err)
	}
	span.AddAttributes(attribute.Int("feed.posts", len(server)))

	r.mu.Lock()
	defer r.mu.Unlock()

	views, err = r.reconcile(ctx, server)
	if err != nil {
		outcome = "store_failure"
		r.logger.ErrorContext(ctx, "feed reconcile failed", slog.String("error", err.Error()))
		return slices.Clone(r.last), err
	}
	r.last = views
	return slices.Clone(views), nil
}

func (r *Reconciler) reconcile(ctx context.Context, server []feedsource.Post) ([]ViewPost, error) {
	snap, err := r.engagement.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	// The feed cache is merged first so a failed merge leaves the likes
	// mapping untouched.
	if err := r.posts.Merge(ctx, server); err != nil {
		return nil, err
	}
	mine, err := r.mineSet(ctx)
	if err != nil {
		return nil, err
	}

	seeded := 0
	for _, p := range server {
		if _, ok := snap.Likes[p.ID]; !ok {
			snap.Likes[p.ID] = 0
			seeded++
		}
	}
	if err := r.engagement.SaveLikes(ctx, snap.Likes); err != nil {
		return nil, err
	}
	observability.SeededEntries.Add(float64(seeded))

	views := make([]ViewPost, 0, len(server))
	for _, p := range server {
		views = append(views, ViewPost{
			Post:            p,
			Entry:           snap.Entry(p.ID),
			CommentsVisible: r.visible[p.ID],
			AvatarColor:     AvatarColor(p.AuthorID),
			Mine:            mine[p.ID],
		})
	}

	r.logger.DebugContext(ctx, "feed refreshed",
		slog.Int("posts", len(views)),
		slog.Int("seeded", seeded),
	)
	return views, nil
}

func (r *Reconciler) mineSet(ctx context.Context) (map[string]bool, error) {
	refs, err := r.posts.Cached(ctx)
	if err != nil {
		return nil, err
	}
	mine := make(map[string]bool)
	for _, ref := range refs {
		if ref.Mine {
			mine[ref.ID] = true
		}
	}
	return mine, nil
}

// ToggleLike flips the liked flag of postID and moves the count one step in
// the same direction. The count never drops below zero.
func (r *Reconciler) ToggleLike(ctx context.Context, postID string) (engagement.Entry, error) {
	r.mu.Lock()
	entry, err := r.toggleLike(ctx, postID)
	r.mu.Unlock()
	if err != nil {
		return engagement.Entry{}, err
	}
	r.publishEngagement(ctx, postID)
	return entry, nil
}

func (r *Reconciler) toggleLike(ctx context.Context, postID string) (engagement.Entry, error) {
	snap, err := r.engagement.Snapshot(ctx)
	if err != nil {
		return engagement.Entry{}, err
	}

	prevLikes := maps.Clone(snap.Likes)
	count := max(snap.Likes[postID], 0)
	liked := !snap.Liked[postID]
	if liked {
		count++
	} else {
		count = max(count-1, 0)
	}
	snap.Likes[postID] = count
	snap.Liked[postID] = liked

	if err := r.engagement.SaveLikes(ctx, snap.Likes); err != nil {
		return engagement.Entry{}, err
	}
	if err := r.engagement.SaveLiked(ctx, snap.Liked); err != nil {
		if rbErr := r.engagement.SaveLikes(ctx, prevLikes); rbErr != nil {
			r.logger.ErrorContext(ctx, "like count rollback failed",
				slog.String("post_id", postID),
				slog.String("error", rbErr.Error()),
			)
		}
		return engagement.Entry{}, err
	}

	kind := "unlike"
	if liked {
		kind = "like"
	}
	observability.EngagementMutations.WithLabelValues(kind).Inc()

	entry := snap.Entry(postID)
	r.applyEntry(postID, entry)
	return entry, nil
}

// AddComment appends the trimmed text to the comments of postID. Blank text
// returns ErrEmptyInput and writes nothing. The comment list collapses after
// a successful add.
func (r *Reconciler) AddComment(ctx context.Context, postID, text string) (engagement.Entry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return engagement.Entry{}, ErrEmptyInput
	}

	r.mu.Lock()
	entry, err := r.addComment(ctx, postID, text)
	r.mu.Unlock()
	if err != nil {
		return engagement.Entry{}, err
	}
	r.publishEngagement(ctx, postID)
	return entry, nil
}

func (r *Reconciler) addComment(ctx context.Context, postID, text string) (engagement.Entry, error) {
	snap, err := r.engagement.Snapshot(ctx)
	if err != nil {
		return engagement.Entry{}, err
	}
	snap.Comments[postID] = append(snap.Comments[postID], text)
	if err := r.engagement.SaveComments(ctx, snap.Comments); err != nil {
		return engagement.Entry{}, err
	}
	observability.EngagementMutations.WithLabelValues("comment").Inc()

	delete(r.visible, postID)
	entry := snap.Entry(postID)
	r.applyEntry(postID, entry)
	return entry, nil
}

// ToggleCommentsVisible flips whether the comments of postID are shown.
// The flag lives only as long as this Reconciler.
func (r *Reconciler) ToggleCommentsVisible(postID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	shown := !r.visible[postID]
	if shown {
		r.visible[postID] = true
	} else {
		delete(r.visible, postID)
	}
	for i := range r.last {
		if r.last[i].ID == postID {
			r.last[i].CommentsVisible = shown
		}
	}
	return shown
}

// Submit creates a post, records it as the user's own and refreshes the feed.
// When only the refresh fails, the created post is returned with the error.
func (r *Reconciler) Submit(ctx context.Context, content string) (feedsource.Post, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return feedsource.Post{}, ErrEmptyInput
	}

	created, err := r.source.Create(ctx, content)
	if err != nil {
		return feedsource.Post{}, err
	}
	observability.PostsCreated.Inc()

	if _, err := r.posts.Record(ctx, created.ID, created.Content); err != nil {
		return created, err
	}
	if _, err := r.Refresh(ctx); err != nil {
		return created, err
	}
	return created, nil
}

// Entry returns the current engagement of one post without changing anything.
func (r *Reconciler) Entry(ctx context.Context, postID string) (engagement.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engagement.Entry(ctx, postID)
}

// CommentsVisible reports the transient visibility flag of postID.
func (r *Reconciler) CommentsVisible(postID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.visible[postID]
}

// Last returns the most recent successfully reconciled view.
func (r *Reconciler) Last() []ViewPost {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.last)
}

func (r *Reconciler) applyEntry(postID string, entry engagement.Entry) {
	for i := range r.last {
		if r.last[i].ID == postID {
			r.last[i].Entry = entry
			r.last[i].CommentsVisible = r.visible[postID]
		}
	}
}

func (r *Reconciler) publishEngagement(ctx context.Context, postID string) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(ctx, notifications.Event{
		Topic: notifications.TopicEngagement,
		Kind:  notifications.KindChanged,
		IDs:   []string{postID},
	})
}

func (r *Reconciler) onPostsChanged(_ context.Context, ev notifications.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Kind {
	case notifications.KindRemoved:
		r.last = slices.DeleteFunc(r.last, func(v ViewPost) bool {
			return slices.Contains(ev.IDs, v.ID)
		})
	case notifications.KindAdded:
		for i := range r.last {
			if slices.Contains(ev.IDs, r.last[i].ID) {
				r.last[i].Mine = true
			}
		}
	}
}

// onEngagementChanged re-reads entries changed by another process.
// Local changes are already applied.
func (r *Reconciler) onEngagementChanged(ctx context.Context, ev notifications.Event) {
	if ev.Origin == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, err := r.engagement.Snapshot(ctx)
	if err != nil {
		r.logger.WarnContext(ctx, "re-read engagement failed", slog.String("error", err.Error()))
		return
	}
	for _, id := range ev.IDs {
		r.applyEntry(id, snap.Entry(id))
	}
}
