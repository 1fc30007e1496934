package domain

import "time"

// UserRecord is the public record of an identity-provider account.
type UserRecord struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	Provider    string    `json:"provider"` // "password", "google" or "apple"
	CreatedAt   time.Time `json:"created_at"`
}

// Account is an email/password account held by the identity provider.
type Account struct {
	ID           string    `bson:"_id,omitempty"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password_hash"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}
