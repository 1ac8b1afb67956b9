// Package seed creates demo users and posts for development databases.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"minilink/internal/cache"
	"minilink/internal/models"
	"minilink/internal/observability"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DemoPassword is the password of every seeded user.
const DemoPassword = "password123"

// Options controls how much data the Seeder creates.
type Options struct {
	Users   int
	Posts   int
	MaxDays int   // posts are spread over this many days back from now
	Seed    int64 // 0 picks a time-based seed
}

// Summary reports what a run created.
type Summary struct {
	Users int
	Posts int
}

// Seeder populates a database with fake users and posts.
type Seeder struct {
	db     *gorm.DB
	opts   Options
	faker  *gofakeit.Faker
	now    func() time.Time
	logger *slog.Logger
}

// NewSeeder binds a Seeder to db.
func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	if opts.MaxDays <= 0 {
		opts.MaxDays = 30
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Seeder{
		db:     db,
		opts:   opts,
		faker:  gofakeit.New(seed),
		now:    time.Now,
		logger: observability.Component("seed"),
	}
}

// DemoEmail is the login address of the i-th seeded user, counting from 1.
func DemoEmail(i int) string {
	return fmt.Sprintf("demo%d@minilink.test", i)
}

// ClearAll removes every post and user.
func (s *Seeder) ClearAll(ctx context.Context) error {
	db := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
	if err := db.Delete(&models.Post{}).Error; err != nil {
		return fmt.Errorf("clear posts: %w", err)
	}
	if err := db.Delete(&models.User{}).Error; err != nil {
		return fmt.Errorf("clear users: %w", err)
	}
	cache.InvalidatePostsList(ctx)
	s.logger.InfoContext(ctx, "cleared posts and users")
	return nil
}

// Run creates opts.Users users and distributes opts.Posts posts among them.
func (s *Seeder) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	if s.opts.Users <= 0 {
		return sum, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), bcrypt.DefaultCost)
	if err != nil {
		return sum, fmt.Errorf("hash demo password: %w", err)
	}

	users := make([]*models.User, 0, s.opts.Users)
	for i := 1; i <= s.opts.Users; i++ {
		users = append(users, &models.User{
			Name:     s.faker.Name(),
			Email:    DemoEmail(i),
			Password: string(hash),
		})
	}
	if err := s.db.WithContext(ctx).CreateInBatches(users, 100).Error; err != nil {
		return sum, fmt.Errorf("create users: %w", err)
	}
	sum.Users = len(users)

	if s.opts.Posts > 0 {
		posts := make([]*models.Post, 0, s.opts.Posts)
		for i := 0; i < s.opts.Posts; i++ {
			author := users[s.faker.Number(0, len(users)-1)]
			posts = append(posts, &models.Post{
				Content:   s.content(),
				UserID:    author.ID,
				CreatedAt: s.createdAt(),
			})
		}
		if err := s.db.WithContext(ctx).CreateInBatches(posts, 100).Error; err != nil {
			return sum, fmt.Errorf("create posts: %w", err)
		}
		sum.Posts = len(posts)
	}

	cache.InvalidatePostsList(ctx)
	s.logger.InfoContext(ctx, "seeded demo data",
		slog.Int("users", sum.Users),
		slog.Int("posts", sum.Posts),
	)
	return sum, nil
}

func (s *Seeder) content() string {
	var text string
	switch s.faker.Number(0, 2) {
	case 0:
		text = s.faker.Sentence(s.faker.Number(4, 14))
	case 1:
		text = s.faker.Paragraph(1, s.faker.Number(2, 4), s.faker.Number(6, 12), " ")
	default:
		text = s.faker.HipsterSentence(s.faker.Number(5, 12))
	}
	if r := []rune(text); len(r) > models.MaxPostContentLength {
		text = string(r[:models.MaxPostContentLength])
	}
	return text
}

func (s *Seeder) createdAt() time.Time {
	back := time.Duration(s.faker.Number(0, s.opts.MaxDays*24*60)) * time.Minute
	return s.now().Add(-back).UTC()
}
