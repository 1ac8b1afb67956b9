package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"minilink/internal/cache"
	"minilink/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostRepository_Create(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	post := &models.Post{Content: "Content", UserID: 7}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "posts"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	err := repo.Create(ctx, post)
	assert.NoError(t, err)
	assert.Equal(t, uint(1), post.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func seedUser(t *testing.T, repo UserRepository, name, email string) *models.User {
	t.Helper()
	u := &models.User{Name: name, Email: email, Password: "hash"}
	require.NoError(t, repo.Create(context.Background(), u))
	return u
}

func TestPostRepository_ListNewestFirstWithAuthor(t *testing.T) {
	db := setupSQLiteDB(t)
	users := NewUserRepository(db)
	posts := NewPostRepository(db)
	ctx := context.Background()

	ada := seedUser(t, users, "Ada", "ada@example.com")
	bob := seedUser(t, users, "Bob", "bob@example.com")

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, posts.Create(ctx, &models.Post{Content: "first", UserID: ada.ID, CreatedAt: base}))
	require.NoError(t, posts.Create(ctx, &models.Post{Content: "second", UserID: bob.ID, CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, posts.Create(ctx, &models.Post{Content: "third", UserID: ada.ID, CreatedAt: base.Add(2 * time.Minute)}))

	list, err := posts.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "third", list[0].Content)
	assert.Equal(t, "second", list[1].Content)
	assert.Equal(t, "first", list[2].Content)
	assert.Equal(t, "Bob", list[1].User.Name)
	assert.Equal(t, "Ada", list[2].User.Name)
}

func TestPostRepository_ListEmpty(t *testing.T) {
	db := setupSQLiteDB(t)
	list, err := NewPostRepository(db).List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestPostRepository_GetByID(t *testing.T) {
	db := setupSQLiteDB(t)
	users := NewUserRepository(db)
	posts := NewPostRepository(db)
	ctx := context.Background()

	ada := seedUser(t, users, "Ada", "ada@example.com")
	p := &models.Post{Content: "hello", UserID: ada.ID}
	require.NoError(t, posts.Create(ctx, p))

	got, err := posts.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)
	assert.Equal(t, "Ada", got.User.Name)

	_, err = posts.GetByID(ctx, 9999)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeNotFound, appErr.Code)
}

func TestPostRepository_CreateInvalidatesCachedList(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cache.SetClient(rdb)
	t.Cleanup(func() { cache.SetClient(nil) })

	db := setupSQLiteDB(t)
	users := NewUserRepository(db)
	posts := NewPostRepository(db)
	ctx := context.Background()

	ada := seedUser(t, users, "Ada", "ada@example.com")
	require.NoError(t, posts.Create(ctx, &models.Post{Content: "one", UserID: ada.ID}))

	list, err := posts.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, mr.Exists(cache.PostsListKey))

	// A warm cache answers without touching the database.
	cached, err := posts.List(ctx)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "one", cached[0].Content)
	assert.Equal(t, "Ada", cached[0].User.Name)

	require.NoError(t, posts.Create(ctx, &models.Post{Content: "two", UserID: ada.ID}))
	assert.False(t, mr.Exists(cache.PostsListKey))

	list, err = posts.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
