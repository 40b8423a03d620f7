package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an account row. Demo users are created by username only and carry
// no credentials; email users have a bcrypt password hash.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Username     string    `gorm:"size:255;uniqueIndex;not null" json:"username"`
	FullName     string    `gorm:"size:255" json:"full_name"`
	AvatarURL    string    `gorm:"size:512" json:"avatar_url"`
	Email        *string   `gorm:"size:255;uniqueIndex" json:"email,omitempty"`
	PasswordHash *string   `gorm:"size:255" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
