package models

import (
	"encoding/json"
	"time"
)

// MaxPostContentLength bounds post content in characters.
const MaxPostContentLength = 5000

// Post is a short text post. Posts are immutable once created.
type Post struct {
	ID        uint      `gorm:"primaryKey"`
	Content   string    `gorm:"type:text;not null"`
	UserID    uint      `gorm:"not null;index"`
	User      User      `gorm:"foreignKey:UserID"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

// PostAuthor is the denormalized author of a post.
type PostAuthor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PostResponse is the wire shape of a post.
type PostResponse struct {
	ID        string     `json:"id"`
	Content   string     `json:"content"`
	Author    PostAuthor `json:"author"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Response converts p to its wire shape.
func (p Post) Response() PostResponse {
	return PostResponse{
		ID:      FormatID(p.ID),
		Content: p.Content,
		Author: PostAuthor{
			ID:   FormatID(p.UserID),
			Name: p.User.Name,
		},
		CreatedAt: p.CreatedAt.UTC(),
	}
}

// MarshalJSON writes the wire shape.
func (p Post) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Response())
}

// UnmarshalJSON reads the wire shape back, as the posts list cache stores it.
func (p *Post) UnmarshalJSON(data []byte) error {
	var r PostResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	id, err := parseID(r.ID)
	if err != nil {
		return err
	}
	userID, err := parseID(r.Author.ID)
	if err != nil {
		return err
	}
	*p = Post{
		ID:        id,
		Content:   r.Content,
		UserID:    userID,
		User:      User{ID: userID, Name: r.Author.Name},
		CreatedAt: r.CreatedAt,
	}
	return nil
}
