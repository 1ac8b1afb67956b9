// Package models contains the persisted server-side entities.
package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// User is an account that can author posts.
type User struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	Email     string `gorm:"uniqueIndex;not null"`
	Password  string `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserResponse is the public shape of a user. Ids are strings on the wire.
type UserResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// MarshalJSON never exposes the password hash.
func (u User) MarshalJSON() ([]byte, error) {
	return json.Marshal(UserResponse{
		ID:    FormatID(u.ID),
		Name:  u.Name,
		Email: u.Email,
	})
}

// FormatID renders a numeric key as the opaque string clients see.
func FormatID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func parseID(s string) (uint, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(v), nil
}
