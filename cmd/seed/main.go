// Command seed fills the API database with demo users and posts.
package main

import (
	"context"
	"flag"
	"log"

	"minilink/internal/cache"
	"minilink/internal/config"
	"minilink/internal/database"
	"minilink/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 10, "Number of users to create")
	numPosts := flag.Int("posts", 50, "Number of posts to create")
	maxDays := flag.Int("days", 30, "Spread posts over this many days")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	fakerSeed := flag.Int64("seed", 0, "Random seed (0 picks one)")
	flag.Parse()

	log.Printf("Seeding %d users, %d posts, clean=%v", *numUsers, *numPosts, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	// Seeding drops the cached post list when Redis is reachable.
	cache.InitRedis(cfg.RedisURL)

	ctx := context.Background()
	s := seed.NewSeeder(db, seed.Options{
		Users:   *numUsers,
		Posts:   *numPosts,
		MaxDays: *maxDays,
		Seed:    *fakerSeed,
	})

	if *shouldClean {
		if err := s.ClearAll(ctx); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	sum, err := s.Run(ctx)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Created %d users and %d posts", sum.Users, sum.Posts)
	if sum.Users > 0 {
		log.Printf("Sign in as %s ... %s with password %q", seed.DemoEmail(1), seed.DemoEmail(sum.Users), seed.DemoPassword)
	}
}
