package types

import "time"

// UserIdentity represents a registered user as held by the identity store.
type UserIdentity struct {
	ID           int64     `json:"id" example:"1"`                    // Assigned by the store, never reused.
	Username     string    `json:"username" example:"alice"`          // Unique, immutable.
	Email        string    `json:"email" example:"alice@example.com"` // Unique.
	PasswordHash string    `json:"-"`                                 // Hashed password (never exposed).
	IsActive     bool      `json:"-"`                                 // Defaults to true on creation.
	CreatedAt    time.Time `json:"-"`                                 // Set by the database.
}

// NewUser carries the fields needed to insert a user. PasswordHash must already be hashed.
type NewUser struct {
	Username     string
	Email        string
	PasswordHash string
}

// AccessToken is the credential returned by a successful login.
type AccessToken struct {
	AccessToken string    `json:"access_token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	TokenType   string    `json:"token_type" example:"bearer"`
	ExpiresAt   time.Time `json:"-"`
}
