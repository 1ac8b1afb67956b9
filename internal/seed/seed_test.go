package seed

import (
	"context"
	"testing"
	"time"
	"unicode/utf8"

	"minilink/internal/config"
	"minilink/internal/database"
	"minilink/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(&config.Config{DBDriver: "sqlite", DBPath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestSeeder_Run(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	s := NewSeeder(db, Options{Users: 3, Posts: 20, MaxDays: 2, Seed: 42})

	sum, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Users: 3, Posts: 20}, sum)

	var users []models.User
	require.NoError(t, db.Order("id").Find(&users).Error)
	require.Len(t, users, 3)
	assert.Equal(t, DemoEmail(1), users[0].Email)
	assert.NotEmpty(t, users[0].Name)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(users[0].Password), []byte(DemoPassword)))

	var posts []models.Post
	require.NoError(t, db.Find(&posts).Error)
	require.Len(t, posts, 20)
	oldest := time.Now().Add(-49 * time.Hour)
	for _, p := range posts {
		assert.NotEmpty(t, p.Content)
		assert.LessOrEqual(t, utf8.RuneCountInString(p.Content), models.MaxPostContentLength)
		assert.True(t, p.CreatedAt.After(oldest), "created %s", p.CreatedAt)
		assert.Contains(t, []uint{users[0].ID, users[1].ID, users[2].ID}, p.UserID)
	}
}

func TestSeeder_ClearAll(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	s := NewSeeder(db, Options{Users: 2, Posts: 5, Seed: 7})
	_, err := s.Run(ctx)
	require.NoError(t, err)

	require.NoError(t, s.ClearAll(ctx))

	var users, posts int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	require.NoError(t, db.Model(&models.Post{}).Count(&posts).Error)
	assert.Zero(t, users)
	assert.Zero(t, posts)
}

func TestSeeder_NoUsersIsNoop(t *testing.T) {
	db := setupDB(t)
	sum, err := NewSeeder(db, Options{Posts: 10}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{}, sum)
}
