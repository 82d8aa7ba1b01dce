package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/duochat/duochat-server/internal/store"
)

// Schema creates the tables the server needs. Applied on startup; every
// statement is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chats (
	id         TEXT PRIMARY KEY,
	user1_id   TEXT NOT NULL REFERENCES users(id),
	user2_id   TEXT NOT NULL REFERENCES users(id),
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	chat_id    TEXT NOT NULL REFERENCES chats(id),
	sender_id  TEXT NOT NULL REFERENCES users(id),
	content    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_messages_chat_created ON messages(chat_id, created_at);
CREATE INDEX IF NOT EXISTS idx_chats_users ON chats(user1_id, user2_id);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(Schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply an alternate schema or seed rows.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, email, username, passwordHash string) (*store.User, error) {
	id := uuid.NewString()
	query := `
		INSERT INTO users (id, email, username, password_hash)
		VALUES (?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, id, email, username, passwordHash); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	query := `
		SELECT id, email, username, password_hash, created_at
		FROM users
		WHERE id = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByIdentifier retrieves a user by email or username.
func (s *SQLiteStore) GetUserByIdentifier(ctx context.Context, identifier string) (*store.User, error) {
	query := `
		SELECT id, email, username, password_hash, created_at
		FROM users
		WHERE email = ? OR username = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, identifier, identifier))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*store.User, error) {
	var user store.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

// ==== ChatStore implementation ====

// CreateChat creates a chat pairing two users.
func (s *SQLiteStore) CreateChat(ctx context.Context, user1ID, user2ID string) (*store.Chat, error) {
	id := uuid.NewString()
	query := `
		INSERT INTO chats (id, user1_id, user2_id)
		VALUES (?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, id, user1ID, user2ID); err != nil {
		return nil, fmt.Errorf("insert chat: %w", err)
	}

	return s.GetChatByID(ctx, id)
}

// GetChatByID retrieves a chat by ID.
func (s *SQLiteStore) GetChatByID(ctx context.Context, id string) (*store.Chat, error) {
	query := `
		SELECT id, user1_id, user2_id, created_at
		FROM chats
		WHERE id = ?
	`
	return s.scanChat(s.db.QueryRowContext(ctx, query, id))
}

// GetChatBetween retrieves the chat pairing the two users, in either order.
func (s *SQLiteStore) GetChatBetween(ctx context.Context, userID, otherUserID string) (*store.Chat, error) {
	query := `
		SELECT id, user1_id, user2_id, created_at
		FROM chats
		WHERE (user1_id = ? AND user2_id = ?) OR (user1_id = ? AND user2_id = ?)
	`
	return s.scanChat(s.db.QueryRowContext(ctx, query, userID, otherUserID, otherUserID, userID))
}

// ListChatsForUser lists chats the user participates in, newest first.
func (s *SQLiteStore) ListChatsForUser(ctx context.Context, userID string) ([]*store.Chat, error) {
	query := `
		SELECT id, user1_id, user2_id, created_at
		FROM chats
		WHERE user1_id = ? OR user2_id = ?
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer rows.Close()

	chats := make([]*store.Chat, 0)
	for rows.Next() {
		var chat store.Chat
		if err := rows.Scan(&chat.ID, &chat.User1ID, &chat.User2ID, &chat.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, &chat)
	}
	return chats, rows.Err()
}

func (s *SQLiteStore) scanChat(row *sql.Row) (*store.Chat, error) {
	var chat store.Chat
	err := row.Scan(&chat.ID, &chat.User1ID, &chat.User2ID, &chat.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query chat: %w", err)
	}
	return &chat, nil
}

// ==== MessageStore implementation ====

// CreateMessage persists a message, assigning its ID and creation time.
// The timestamp is set here rather than by the column default: CURRENT_TIMESTAMP
// has second resolution, which is too coarse to keep replay order for
// messages sent in quick succession.
func (s *SQLiteStore) CreateMessage(ctx context.Context, chatID, senderID, content string) (*store.Message, error) {
	id := uuid.NewString()
	query := `
		INSERT INTO messages (id, chat_id, sender_id, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, id, chatID, senderID, content, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	getQuery := `
		SELECT id, chat_id, sender_id, content, created_at
		FROM messages
		WHERE id = ?
	`
	var msg store.Message
	err := s.db.QueryRowContext(ctx, getQuery, id).Scan(
		&msg.ID,
		&msg.ChatID,
		&msg.SenderID,
		&msg.Content,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("query message: %w", err)
	}
	return &msg, nil
}

// ListChatMessages returns the most recent limit messages of a chat in
// ascending creation order. The inner select picks the newest rows; the
// outer one restores replay order.
func (s *SQLiteStore) ListChatMessages(ctx context.Context, chatID string, limit int) ([]*store.Message, error) {
	query := `
		SELECT id, chat_id, sender_id, content, created_at FROM (
			SELECT id, chat_id, sender_id, content, created_at
			FROM messages
			WHERE chat_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)
		ORDER BY created_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0)
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.SenderID, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}
