// Package session stores per-user conversation state for the shop flow.
package session

import (
	"context"
	"errors"
	"time"
)

// State is where a user is in the registration and link flow.
type State string

const (
	StateNotStarted      State = "NOT_STARTED"
	StateCommandReceived State = "COMMAND_RECEIVED"
	StateNotRegistered   State = "NOT_REGISTERED"
	StateRegistered      State = "REGISTERED"
)

// Session is the conversation state of one Telegram user.
type Session struct {
	UserID int64 `json:"user_id"`
	State  State `json:"state"`
	// AwaitingEmail routes the user's next free-text message to email handling.
	AwaitingEmail bool `json:"awaiting_email"`
	// PendingMerchant is the merchant to link once registration completes.
	PendingMerchant string    `json:"pending_merchant,omitempty"`
	EmailAttempts   int       `json:"email_attempts"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// New returns a fresh NOT_STARTED session for userID.
func New(userID int64) *Session {
	return &Session{UserID: userID, State: StateNotStarted}
}

// Store persists sessions keyed by Telegram user id. Writes are last-write-wins;
// concurrent updates for the same user are not serialized.
type Store interface {
	// Get returns the session for userID, or nil when none exists.
	Get(ctx context.Context, userID int64) (*Session, error)
	// Set creates or overwrites the session and stamps UpdatedAt.
	Set(ctx context.Context, s *Session) error
	// Delete removes the session; deleting a missing session is not an error.
	Delete(ctx context.Context, userID int64) error
	// Close releases the store's resources.
	Close() error
}

// Common errors for session store operations.
var (
	ErrInvalidConfig    = errors.New("invalid session store configuration")
	ErrInvalidStoreType = errors.New("invalid session store type")
	ErrInvalidSession   = errors.New("session requires a user id")
	ErrClosed           = errors.New("session store is closed")
)
