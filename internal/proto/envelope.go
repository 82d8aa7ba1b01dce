package proto

import (
	"encoding/json"
	"time"
)

// Envelope types exchanged over a live connection. The set is closed;
// anything else is answered with an error envelope.
const (
	TypeChat       = "chat"
	TypeJoin       = "join"
	TypeTyping     = "typing"
	TypeOnline     = "online"
	TypeConnection = "connection"
	TypeError      = "error"
)

// Close codes sent when the server terminates a connection. The 4xxx range
// is reserved for application use by the WebSocket protocol.
const (
	CloseSuperseded     = 4000
	CloseAuthRequired   = 4001
	CloseInvalidAuth    = 4002
	CloseInvalidMessage = 4003
	CloseInternalError  = 4500
)

// Inbound is the envelope for frames coming from the client. Payload is left
// raw so each handler decodes only its own shape.
type Inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Outbound is the envelope for frames sent to the client.
type Outbound struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Message is a persisted chat message as it appears on the wire.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChatPayload is a chat message from the client.
type ChatPayload struct {
	ChatID   string `json:"chatId"`
	Content  string `json:"content"`
	SenderID string `json:"senderId"`
}

// ChatEvent carries a persisted message to a recipient.
type ChatEvent struct {
	ChatID  string  `json:"chatId"`
	Message Message `json:"message"`
}

// JoinPayload requests history replay for a chat.
type JoinPayload struct {
	ChatID string `json:"chatId"`
}

// TypingPayload is a typing signal, both directions.
type TypingPayload struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// OnlineQuery polls for another user's presence.
type OnlineQuery struct {
	UserID      string `json:"userId"`
	OtherUserID string `json:"otherUserId"`
}

// OnlineStatus answers an OnlineQuery on the polling connection.
type OnlineStatus struct {
	Online   bool   `json:"online"`
	LastSeen string `json:"lastSeen,omitempty"`
}

// ConnectionStatus is sent once after successful authentication.
type ConnectionStatus struct {
	Status string `json:"status"`
	UserID string `json:"userId"`
}

// ErrorPayload describes a protocol or handler failure. The connection
// stays open after one of these.
type ErrorPayload struct {
	Message string `json:"message"`
}

// ErrorEnvelope builds an error envelope with the given human-readable message.
func ErrorEnvelope(msg string) Outbound {
	return Outbound{Type: TypeError, Payload: ErrorPayload{Message: msg}}
}
