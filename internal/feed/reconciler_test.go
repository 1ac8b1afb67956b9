package feed

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"minilink/internal/engagement"
	"minilink/internal/feedsource"
	"minilink/internal/notifications"
	"minilink/internal/posts"
	"minilink/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t1 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// stubSource is an in-memory post API.
type stubSource struct {
	posts     []feedsource.Post
	listErr   error
	createErr error
	lists     int
}

func (s *stubSource) List(context.Context) ([]feedsource.Post, error) {
	s.lists++
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]feedsource.Post(nil), s.posts...), nil
}

func (s *stubSource) Create(_ context.Context, content string) (feedsource.Post, error) {
	if s.createErr != nil {
		return feedsource.Post{}, s.createErr
	}
	p := feedsource.Post{
		ID:         fmt.Sprintf("%d", len(s.posts)+1),
		Content:    content,
		AuthorID:   "me",
		AuthorName: "Me",
		CreatedAt:  time.Now().UTC(),
	}
	s.posts = append([]feedsource.Post{p}, s.posts...)
	return p, nil
}

type fixture struct {
	src     *stubSource
	backing storage.Store
	eng     *engagement.Store
	coll    *posts.Collection
	bus     *notifications.Bus
	rec     *Reconciler
}

func newFixture(t *testing.T, server ...feedsource.Post) *fixture {
	t.Helper()
	backing, err := storage.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = backing.Close() })

	bus := notifications.NewBus(nil)
	coll, err := posts.Open(context.Background(), backing, bus)
	require.NoError(t, err)

	f := &fixture{
		src:     &stubSource{posts: server},
		backing: backing,
		eng:     engagement.New(backing),
		coll:    coll,
		bus:     bus,
	}
	f.rec = New(f.src, f.eng, coll, bus)
	t.Cleanup(f.rec.Close)
	return f
}

func (f *fixture) raw(t *testing.T, key string) (string, bool) {
	t.Helper()
	v, ok, err := f.backing.Get(context.Background(), key)
	require.NoError(t, err)
	return v, ok
}

func TestRefresh_FreshFeedLoad(t *testing.T) {
	f := newFixture(t, feedsource.Post{ID: "1", Content: "hello", CreatedAt: t1})

	views, err := f.rec.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 1)

	assert.Equal(t, "1", views[0].ID)
	assert.Equal(t, "hello", views[0].Content)
	assert.Equal(t, engagement.Entry{LikeCount: 0, LikedByMe: false, Comments: []string{}}, views[0].Entry)
	assert.Equal(t, AvatarColor(""), views[0].AvatarColor)

	likes, ok := f.raw(t, storage.KeyEngagementLikes)
	require.True(t, ok)
	assert.JSONEq(t, `{"1":0}`, likes)
}

func TestRefresh_SeedingIsIdempotent(t *testing.T) {
	f := newFixture(t,
		feedsource.Post{ID: "2", Content: "b"},
		feedsource.Post{ID: "1", Content: "a"},
	)
	ctx := context.Background()

	_, err := f.rec.ToggleLike(ctx, "1")
	require.NoError(t, err)

	first, err := f.rec.Refresh(ctx)
	require.NoError(t, err)
	snap1, err := f.eng.Snapshot(ctx)
	require.NoError(t, err)

	second, err := f.rec.Refresh(ctx)
	require.NoError(t, err)
	snap2, err := f.eng.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, snap1, snap2)
	assert.Equal(t, first, second)
	assert.Equal(t, map[string]int{"1": 1, "2": 0}, snap2.Likes)
}

func TestRefresh_FailedFetchPreservesState(t *testing.T) {
	f := newFixture(t, feedsource.Post{ID: "1", Content: "a"})
	ctx := context.Background()

	require.NoError(t, f.eng.SaveLikes(ctx, map[string]int{"1": 3}))
	good, err := f.rec.Refresh(ctx)
	require.NoError(t, err)
	likesBefore, _ := f.raw(t, storage.KeyEngagementLikes)
	postsBefore, _ := f.raw(t, storage.KeyLocalPosts)

	f.src.listErr = &feedsource.Error{Op: "list posts", Err: feedsource.ErrTransport}
	f.src.posts = append(f.src.posts, feedsource.Post{ID: "9"})

	views, err := f.rec.Refresh(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetchFailure)
	assert.ErrorIs(t, err, feedsource.ErrTransport)
	assert.Equal(t, good, views)

	likesAfter, _ := f.raw(t, storage.KeyEngagementLikes)
	assert.JSONEq(t, `{"1":3}`, likesAfter)
	assert.Equal(t, likesBefore, likesAfter)
	postsAfter, _ := f.raw(t, storage.KeyLocalPosts)
	assert.Equal(t, postsBefore, postsAfter)
	assert.Equal(t, good, f.rec.Last())
}

func TestRefresh_FailedFirstFetchWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.src.listErr = &feedsource.Error{Op: "list posts", Status: 401, Err: feedsource.ErrAuthFailure}

	views, err := f.rec.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrFetchFailure)
	assert.ErrorIs(t, err, feedsource.ErrAuthFailure)
	assert.Empty(t, views)

	for _, key := range []string{storage.KeyEngagementLikes, storage.KeyEngagementLikedFlags, storage.KeyEngagementComments, storage.KeyLocalPosts} {
		_, ok := f.raw(t, key)
		assert.False(t, ok, key)
	}
}

// failingSets rejects writes to one key once armed.
type failingSets struct {
	storage.Store
	key   string
	armed bool
}

func (f *failingSets) Set(ctx context.Context, key, value string) error {
	if f.armed && key == f.key {
		return errors.New("disk full")
	}
	return f.Store.Set(ctx, key, value)
}

func TestRefresh_FailedMergeLeavesLikesUntouched(t *testing.T) {
	backing, err := storage.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = backing.Close() })
	store := &failingSets{Store: backing, key: storage.KeyLocalPosts}

	ctx := context.Background()
	bus := notifications.NewBus(nil)
	coll, err := posts.Open(ctx, store, bus)
	require.NoError(t, err)
	src := &stubSource{posts: []feedsource.Post{{ID: "1", Content: "a"}, {ID: "2", Content: "b"}}}
	rec := New(src, engagement.New(store), coll, bus)
	t.Cleanup(rec.Close)

	store.armed = true
	views, err := rec.Refresh(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrFetchFailure)
	assert.Empty(t, views)

	for _, key := range []string{storage.KeyEngagementLikes, storage.KeyLocalPosts} {
		_, ok, err := backing.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, key)
	}

	store.armed = false
	views, err = rec.Refresh(ctx)
	require.NoError(t, err)
	assert.Len(t, views, 2)
}

func TestToggleLike_LikeThenUnlike(t *testing.T) {
	f := newFixture(t, feedsource.Post{ID: "1"})
	ctx := context.Background()
	_, err := f.rec.Refresh(ctx)
	require.NoError(t, err)

	e, err := f.rec.ToggleLike(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 1, e.LikeCount)
	assert.True(t, e.LikedByMe)

	e, err = f.rec.ToggleLike(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 0, e.LikeCount)
	assert.False(t, e.LikedByMe)

	stored, err := f.eng.Entry(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, e, stored)
}

func TestToggleLike_PairIsNoop(t *testing.T) {
	tests := []struct {
		name  string
		likes map[string]int
		liked map[string]bool
	}{
		{"fresh", map[string]int{}, map[string]bool{}},
		{"liked", map[string]int{"p": 4}, map[string]bool{"p": true}},
		{"not liked", map[string]int{"p": 7}, map[string]bool{"p": false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			require.NoError(t, f.eng.SaveLikes(ctx, tt.likes))
			require.NoError(t, f.eng.SaveLiked(ctx, tt.liked))

			before, err := f.eng.Entry(ctx, "p")
			require.NoError(t, err)

			_, err = f.rec.ToggleLike(ctx, "p")
			require.NoError(t, err)
			after, err := f.rec.ToggleLike(ctx, "p")
			require.NoError(t, err)

			assert.Equal(t, before.LikeCount, after.LikeCount)
			assert.Equal(t, before.LikedByMe, after.LikedByMe)
		})
	}
}

func TestToggleLike_CountNeverNegative(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		e, err := f.rec.ToggleLike(ctx, "p")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, e.LikeCount, 0)
		assert.Equal(t, i%2 == 0, e.LikedByMe)
	}

	// A corrupted pairing still floors at zero.
	require.NoError(t, f.eng.SaveLikes(ctx, map[string]int{"q": 0}))
	require.NoError(t, f.eng.SaveLiked(ctx, map[string]bool{"q": true}))
	e, err := f.rec.ToggleLike(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, engagement.Entry{LikeCount: 0, LikedByMe: false, Comments: []string{}}, e)

	require.NoError(t, f.eng.SaveLikes(ctx, map[string]int{"r": -5}))
	e, err = f.rec.ToggleLike(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, 1, e.LikeCount)
}

func TestAddComment_AppendOnlyAndTrimmed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, blank := range []string{"", "   ", "\t\n"} {
		_, err := f.rec.AddComment(ctx, "p", blank)
		assert.ErrorIs(t, err, ErrEmptyInput)
	}
	_, ok := f.raw(t, storage.KeyEngagementComments)
	assert.False(t, ok)

	e, err := f.rec.AddComment(ctx, "p", " hi ")
	require.NoError(t, err)
	assert.Equal(t, []string{"hi"}, e.Comments)

	e, err = f.rec.AddComment(ctx, "p", "second")
	require.NoError(t, err)
	assert.Equal(t, []string{"hi", "second"}, e.Comments)

	raw, _ := f.raw(t, storage.KeyEngagementComments)
	assert.JSONEq(t, `{"p":["hi","second"]}`, raw)
}

func TestMutations_IsolatedAcrossPosts(t *testing.T) {
	f := newFixture(t, feedsource.Post{ID: "A"}, feedsource.Post{ID: "B"})
	ctx := context.Background()
	_, err := f.rec.Refresh(ctx)
	require.NoError(t, err)

	before, err := f.eng.Entry(ctx, "B")
	require.NoError(t, err)

	_, err = f.rec.ToggleLike(ctx, "A")
	require.NoError(t, err)
	_, err = f.rec.AddComment(ctx, "A", "only A")
	require.NoError(t, err)
	f.rec.ToggleCommentsVisible("A")

	after, err := f.eng.Entry(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.False(t, f.rec.CommentsVisible("B"))

	last := f.rec.Last()
	require.Len(t, last, 2)
	assert.Equal(t, 1, last[0].LikeCount)
	assert.True(t, last[0].CommentsVisible)
	assert.Equal(t, before, last[1].Entry)
}

func TestToggleCommentsVisible_TransientOnly(t *testing.T) {
	f := newFixture(t, feedsource.Post{ID: "1"})
	ctx := context.Background()
	_, err := f.rec.Refresh(ctx)
	require.NoError(t, err)

	assert.True(t, f.rec.ToggleCommentsVisible("1"))
	assert.True(t, f.rec.Last()[0].CommentsVisible)
	assert.False(t, f.rec.ToggleCommentsVisible("1"))
	assert.True(t, f.rec.ToggleCommentsVisible("1"))

	// Adding a comment collapses the list.
	_, err = f.rec.AddComment(ctx, "1", "x")
	require.NoError(t, err)
	assert.False(t, f.rec.CommentsVisible("1"))

	f.rec.ToggleCommentsVisible("1")
	fresh := New(f.src, f.eng, f.coll, nil)
	assert.False(t, fresh.CommentsVisible("1"))
	views, err := fresh.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, views[0].CommentsVisible)
}

func TestSubmit_CreatesRecordsAndRefreshes(t *testing.T) {
	f := newFixture(t, feedsource.Post{ID: "1", Content: "older"})
	ctx := context.Background()

	created, err := f.rec.Submit(ctx, "  new post ")
	require.NoError(t, err)
	assert.Equal(t, "new post", created.Content)

	mine, err := f.coll.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []posts.MyPost{{ID: created.ID, Content: "new post"}}, mine)

	last := f.rec.Last()
	require.Len(t, last, 2)
	assert.Equal(t, created.ID, last[0].ID)
	assert.True(t, last[0].Mine)
	assert.False(t, last[1].Mine)
}

func TestSubmit_Failures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.rec.Submit(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyInput)

	f.src.createErr = &feedsource.Error{Op: "create post", Status: 500, Err: feedsource.ErrServerFailure}
	_, err = f.rec.Submit(ctx, "hello")
	assert.ErrorIs(t, err, feedsource.ErrServerFailure)
	mine, err := f.coll.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, mine)

	// Created remotely but the follow-up refresh failed.
	f.src.createErr = nil
	f.src.listErr = errors.New("connection reset")
	created, err := f.rec.Submit(ctx, "hello")
	assert.ErrorIs(t, err, ErrFetchFailure)
	assert.NotEmpty(t, created.ID)
	mine, err = f.coll.List(ctx)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestRemove_DropsPostFromLastView(t *testing.T) {
	f := newFixture(t, feedsource.Post{ID: "1"}, feedsource.Post{ID: "2"})
	ctx := context.Background()
	_, err := f.rec.Refresh(ctx)
	require.NoError(t, err)

	var events int
	f.bus.Subscribe(notifications.TopicPosts, func(context.Context, notifications.Event) { events++ })

	removed, err := f.coll.Remove(ctx, "1")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, 1, events)

	last := f.rec.Last()
	require.Len(t, last, 1)
	assert.Equal(t, "2", last[0].ID)
}

func TestRemoteEngagementChangeIsApplied(t *testing.T) {
	f := newFixture(t, feedsource.Post{ID: "1"})
	ctx := context.Background()
	_, err := f.rec.Refresh(ctx)
	require.NoError(t, err)

	// Another process wrote to the shared store and relayed the change.
	require.NoError(t, f.eng.SaveLikes(ctx, map[string]int{"1": 5}))
	require.NoError(t, f.eng.SaveLiked(ctx, map[string]bool{"1": true}))
	f.bus.Publish(ctx, notifications.Event{
		Topic:  notifications.TopicEngagement,
		Kind:   notifications.KindChanged,
		IDs:    []string{"1"},
		Origin: "other-process",
	})

	last := f.rec.Last()
	require.Len(t, last, 1)
	assert.Equal(t, 5, last[0].LikeCount)
	assert.True(t, last[0].LikedByMe)
}
