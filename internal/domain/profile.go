// Package domain defines the bot's shared types, error kinds, and repositories.
package domain

import "time"

// Profile links a Telegram user to their affiliate-system identity.
type Profile struct {
	UserID          int64     `bson:"user_id" json:"user_id"`
	Email           string    `bson:"email" json:"email"`
	AffiliateUserID string    `bson:"affiliate_user_id" json:"affiliate_user_id"`
	RegisteredAt    time.Time `bson:"registered_at,omitempty" json:"registered_at,omitempty"`
}

// Account is a user record owned by the affiliate system. The bot only reads it
// to resolve an email to an affiliate user id.
type Account struct {
	AffiliateUserID string `bson:"affiliate_user_id" json:"affiliate_user_id"`
	Email           string `bson:"email" json:"email"`
}
