// Package service holds the server's business rules between handlers and repositories.
package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"minilink/internal/models"
	"minilink/internal/repository"
)

type PostService struct {
	postRepo repository.PostRepository
}

type CreatePostInput struct {
	UserID  uint
	Content string
}

func NewPostService(postRepo repository.PostRepository) *PostService {
	return &PostService{postRepo: postRepo}
}

// CreatePost validates and stores a post, then returns it with its author loaded.
func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, models.NewValidationError("Content is required")
	}
	if utf8.RuneCountInString(content) > models.MaxPostContentLength {
		return nil, models.NewValidationError(
			fmt.Sprintf("Content too long (max %d characters)", models.MaxPostContentLength))
	}
	if in.UserID == 0 {
		return nil, models.NewUnauthorizedError("Authentication required")
	}

	post := &models.Post{
		Content: content,
		UserID:  in.UserID,
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, models.NewInternalError(err)
	}

	created, err := s.postRepo.GetByID(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ListPosts returns every post, newest first.
func (s *PostService) ListPosts(ctx context.Context) ([]*models.Post, error) {
	return s.postRepo.List(ctx)
}
