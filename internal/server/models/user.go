package models

import (
	"time"

	"github.com/dmitrijs2005/tokenguard/internal/token"
	"github.com/google/uuid"
)

// User is a persisted account. AccessToken is the token currently issued
// for the user; PreviousAccessToken is the one it replaced, kept so that
// concurrent refreshes of the same old token can converge.
type User struct {
	ID                  uuid.UUID `db:"id"`
	Email               string    `db:"email"`
	FirstName           *string   `db:"first_name"`
	LastName            *string   `db:"last_name"`
	LanguageCode        string    `db:"language_code"`
	PasswordHash        string    `db:"password_hash"`
	PasswordSalt        string    `db:"password_salt"`
	AccessToken         string    `db:"access_token"`
	PreviousAccessToken *string   `db:"previous_access_token"`
	CreatedAt           time.Time `db:"created_at"`
	UpdatedAt           time.Time `db:"updated_at"`
}

// Identity returns the token identity for u.
func (u *User) Identity() token.Identity {
	return token.Identity{
		UserID:    u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}
