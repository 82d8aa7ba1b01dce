package client

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/duochat/duochat-server/internal/proto"
)

// Status is the session's connection state.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "Disconnected"
	case StatusConnecting:
		return "Connecting"
	case StatusConnected:
		return "Connected"
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

var (
	// ErrNotConnected is returned by sends while the session is not Connected.
	// Sends are rejected, never queued.
	ErrNotConnected = errors.New("not connected")
	// ErrClosed is returned once the session has been closed for good.
	ErrClosed = errors.New("session closed")
)

const (
	defaultReconnectAttempts = 5
	defaultReconnectDelay    = 3 * time.Second
	defaultTypingWindow      = 2 * time.Second
)

// Config configures a client session.
type Config struct {
	// URL is the server's WebSocket endpoint, e.g. ws://host:8080/ws.
	URL string
	// Token is the bearer credential passed as a connection parameter.
	Token string
	// OnEnvelope receives every inbound envelope. Optional.
	OnEnvelope func(proto.Inbound)

	// AutoReconnect schedules a reconnect after a fixed delay whenever the
	// connection drops, up to ReconnectAttempts consecutive failures.
	AutoReconnect     bool
	ReconnectAttempts int
	ReconnectDelay    time.Duration

	// TypingWindow is how long after the last Typing call the session
	// reports "typing stopped" on its own.
	TypingWindow time.Duration

	Logger *zerolog.Logger
}

// Session owns one outbound connection to the chat server. It exposes a
// connection-status state machine and reconnects with a bounded retry
// count; once the budget is spent it stays Disconnected until Connect is
// called again.
type Session struct {
	cfg Config

	mu       sync.Mutex
	conn     *websocket.Conn
	status   Status
	attempts int
	closed   bool

	reconnectTimer *time.Timer
	typingTimer    *time.Timer
	typing         bool
}

// NewSession builds a session. It does not connect; call Connect.
func NewSession(cfg Config) *Session {
	if cfg.ReconnectAttempts <= 0 {
		cfg.ReconnectAttempts = defaultReconnectAttempts
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.TypingWindow <= 0 {
		cfg.TypingWindow = defaultTypingWindow
	}
	if cfg.Logger == nil {
		nop := zerolog.Nop()
		cfg.Logger = &nop
	}
	return &Session{cfg: cfg}
}

// Connect dials the server. Also serves as the manual reconnect call after
// the automatic retry budget is exhausted.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.status == StatusConnected || s.status == StatusConnecting {
		s.mu.Unlock()
		return nil
	}
	s.status = StatusConnecting
	s.mu.Unlock()

	conn, _, err := websocket.Dial(ctx, s.dialURL(), nil)
	if err != nil {
		s.mu.Lock()
		s.status = StatusError
		s.scheduleReconnectLocked()
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "closed")
		return ErrClosed
	}
	s.conn = conn
	s.status = StatusConnected
	s.attempts = 0
	s.mu.Unlock()

	s.cfg.Logger.Debug().Str("url", s.cfg.URL).Msg("session connected")
	go s.readLoop(conn)
	return nil
}

// Send writes an envelope to the server. Rejected unless the session is
// Connected.
func (s *Session) Send(ctx context.Context, out proto.Outbound) error {
	s.mu.Lock()
	conn := s.conn
	connected := s.status == StatusConnected
	s.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}
	return wsjson.Write(ctx, conn, out)
}

// SendChat sends a chat message into the given chat.
func (s *Session) SendChat(ctx context.Context, chatID, senderID, content string) error {
	return s.Send(ctx, proto.Outbound{
		Type:    proto.TypeChat,
		Payload: proto.ChatPayload{ChatID: chatID, SenderID: senderID, Content: content},
	})
}

// Join requests history replay for the given chat.
func (s *Session) Join(ctx context.Context, chatID string) error {
	return s.Send(ctx, proto.Outbound{
		Type:    proto.TypeJoin,
		Payload: proto.JoinPayload{ChatID: chatID},
	})
}

// QueryOnline polls the other participant's presence.
func (s *Session) QueryOnline(ctx context.Context, userID, otherUserID string) error {
	return s.Send(ctx, proto.Outbound{
		Type:    proto.TypeOnline,
		Payload: proto.OnlineQuery{UserID: userID, OtherUserID: otherUserID},
	})
}

// Typing reports a keystroke. Each call sends a "typing started" signal and
// re-arms a timer that sends the trailing "typing stopped" once the typing
// window passes without another call. Typing(false) stops immediately.
func (s *Session) Typing(ctx context.Context, chatID, userID string, typing bool) error {
	s.mu.Lock()
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	s.typing = typing
	if typing {
		s.typingTimer = time.AfterFunc(s.cfg.TypingWindow, func() {
			s.typingExpired(chatID, userID)
		})
	}
	s.mu.Unlock()

	return s.Send(ctx, proto.Outbound{
		Type:    proto.TypeTyping,
		Payload: proto.TypingPayload{ChatID: chatID, UserID: userID, IsTyping: typing},
	})
}

// IsTyping reports whether the session currently considers itself typing.
func (s *Session) IsTyping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing
}

// Status returns the connection state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Close shuts the session down for good: no further reconnects.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.status = StatusDisconnected
	s.attempts = 0
	s.typing = false
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "closing")
	}
	return nil
}

func (s *Session) dialURL() string {
	u := s.cfg.URL
	if s.cfg.Token != "" {
		u += "?token=" + url.QueryEscape(s.cfg.Token)
	}
	return u
}

func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		var in proto.Inbound
		if err := wsjson.Read(context.Background(), conn, &in); err != nil {
			s.handleClose(conn, err)
			return
		}
		if s.cfg.OnEnvelope != nil {
			s.cfg.OnEnvelope(in)
		}
	}
}

func (s *Session) handleClose(conn *websocket.Conn, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A stale read loop from a connection we already replaced must not
	// touch the session state.
	if s.conn != conn {
		return
	}
	s.conn = nil
	s.typing = false
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	if s.closed {
		s.status = StatusDisconnected
		return
	}

	s.cfg.Logger.Debug().Err(err).Msg("session connection lost")
	s.status = StatusDisconnected
	s.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms a fixed-delay reconnect if the retry budget
// allows. Caller holds s.mu.
func (s *Session) scheduleReconnectLocked() {
	if !s.cfg.AutoReconnect || s.closed {
		return
	}
	if s.attempts >= s.cfg.ReconnectAttempts {
		s.cfg.Logger.Warn().Int("attempts", s.attempts).Msg("reconnect budget exhausted")
		return
	}
	s.attempts++
	s.reconnectTimer = time.AfterFunc(s.cfg.ReconnectDelay, func() {
		if err := s.Connect(context.Background()); err != nil && !errors.Is(err, ErrClosed) {
			s.cfg.Logger.Debug().Err(err).Msg("reconnect attempt failed")
		}
	})
}

func (s *Session) typingExpired(chatID, userID string) {
	s.mu.Lock()
	s.typing = false
	s.typingTimer = nil
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.Send(ctx, proto.Outbound{
		Type:    proto.TypeTyping,
		Payload: proto.TypingPayload{ChatID: chatID, UserID: userID, IsTyping: false},
	})
}
