package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/duochat/duochat-server/internal/proto"
	"github.com/duochat/duochat-server/internal/store"
)

// handleTyping converts keystroke-level signals into typing events for the
// other participant. Every true signal forwards a "typing started" and
// re-arms the debounce window; the trailing "typing stopped" fires once the
// window elapses, on an explicit false signal, or when the typist's
// connection closes. The typist's own connection never sees these events.
func (r *Router) handleTyping(ctx context.Context, sender *Client, p proto.TypingPayload) error {
	if p.ChatID == "" || p.UserID == "" || p.UserID != sender.ID {
		sender.Send(proto.ErrorEnvelope(MsgInvalidTyping))
		return nil
	}

	chat, err := r.store.GetChatByID(ctx, p.ChatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("resolve chat: %w", err)
	}

	if p.IsTyping {
		r.typing.signal(p.ChatID, p.UserID, otherParticipant(chat, p.UserID))
	} else {
		r.typing.stop(p.ChatID, p.UserID)
	}
	return nil
}

type typingKey struct {
	chatID string
	userID string
}

type typingSession struct {
	timer   *time.Timer
	otherID string
	gen     uint64
}

// typingTracker owns one debounce timer per (chat, typist) pair. Timers are
// cancellable from three paths (new signal, explicit stop, connection
// close), so every expiry re-checks under the lock that its generation is
// still current before emitting the stopped event.
type typingTracker struct {
	mu       sync.Mutex
	window   time.Duration
	sessions map[typingKey]*typingSession
	deliver  func(userID string, out proto.Outbound)
}

func newTypingTracker(window time.Duration, deliver func(string, proto.Outbound)) *typingTracker {
	return &typingTracker{
		window:   window,
		sessions: make(map[typingKey]*typingSession),
		deliver:  deliver,
	}
}

func typingEvent(chatID, userID string, isTyping bool) proto.Outbound {
	return proto.Outbound{
		Type:    proto.TypeTyping,
		Payload: proto.TypingPayload{ChatID: chatID, UserID: userID, IsTyping: isTyping},
	}
}

// signal forwards a started event and (re)arms the debounce timer.
func (t *typingTracker) signal(chatID, userID, otherID string) {
	t.deliver(otherID, typingEvent(chatID, userID, true))

	key := typingKey{chatID: chatID, userID: userID}

	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[key]
	if !ok {
		s = &typingSession{}
		t.sessions[key] = s
	} else {
		s.timer.Stop()
	}
	s.otherID = otherID
	s.gen++

	gen := s.gen
	s.timer = time.AfterFunc(t.window, func() {
		t.expire(key, gen)
	})
}

// stop cancels the pending timer and emits the stopped event immediately,
// for clients that report the end of typing themselves.
func (t *typingTracker) stop(chatID, userID string) {
	key := typingKey{chatID: chatID, userID: userID}

	t.mu.Lock()
	s, ok := t.sessions[key]
	if ok {
		s.timer.Stop()
		delete(t.sessions, key)
	}
	t.mu.Unlock()

	if ok {
		t.deliver(s.otherID, typingEvent(chatID, userID, false))
	}
}

// flush ends every typing session owned by a disconnecting user. The other
// participant still gets the trailing stopped event; the timers must not
// fire later against a connection that no longer exists.
func (t *typingTracker) flush(userID string) {
	t.mu.Lock()
	var ended []typingKey
	for key, s := range t.sessions {
		if key.userID != userID {
			continue
		}
		s.timer.Stop()
		ended = append(ended, key)
	}
	others := make([]string, 0, len(ended))
	for _, key := range ended {
		others = append(others, t.sessions[key].otherID)
		delete(t.sessions, key)
	}
	t.mu.Unlock()

	for i, key := range ended {
		t.deliver(others[i], typingEvent(key.chatID, key.userID, false))
	}
}

func (t *typingTracker) expire(key typingKey, gen uint64) {
	t.mu.Lock()
	s, ok := t.sessions[key]
	if !ok || s.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.sessions, key)
	t.mu.Unlock()

	t.deliver(s.otherID, typingEvent(key.chatID, key.userID, false))
}
