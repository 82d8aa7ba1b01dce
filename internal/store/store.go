package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// User represents a registered user.
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Chat pairs exactly two users. The core resolves "the other participant"
// from User1ID/User2ID and never mutates a chat.
type Chat struct {
	ID        string
	User1ID   string
	User2ID   string
	CreatedAt time.Time
}

// Message is a persisted chat message. Immutable once created.
type Message struct {
	ID        string
	ChatID    string
	SenderID  string
	Content   string
	CreatedAt time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, email, username, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByIdentifier retrieves a user by email or username.
	GetUserByIdentifier(ctx context.Context, identifier string) (*User, error)
}

// ChatStore handles chat persistence.
type ChatStore interface {
	// CreateChat creates a chat pairing two users.
	CreateChat(ctx context.Context, user1ID, user2ID string) (*Chat, error)

	// GetChatByID retrieves a chat by ID.
	GetChatByID(ctx context.Context, id string) (*Chat, error)

	// GetChatBetween retrieves the chat pairing the two users, in either order.
	GetChatBetween(ctx context.Context, userID, otherUserID string) (*Chat, error)

	// ListChatsForUser lists chats the user participates in, newest first.
	ListChatsForUser(ctx context.Context, userID string) ([]*Chat, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage persists a message, assigning its ID and creation time.
	CreateMessage(ctx context.Context, chatID, senderID, content string) (*Message, error)

	// ListChatMessages returns the most recent limit messages of a chat in
	// ascending creation order.
	ListChatMessages(ctx context.Context, chatID string, limit int) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ChatStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
