package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/duochat/duochat-server/internal/cache"
	"github.com/duochat/duochat-server/internal/log"
	"github.com/duochat/duochat-server/internal/proto"
	"github.com/duochat/duochat-server/internal/store"
)

// fakeStore is an in-memory store.Store for handler tests. Seed chats and
// users directly; set failErr to force collaborator failures.
type fakeStore struct {
	users    map[string]*store.User
	chats    map[string]*store.Chat
	messages []*store.Message

	failErr       error
	panicOnCreate bool
	nextMessageID int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: make(map[string]*store.User),
		chats: make(map[string]*store.Chat),
	}
}

func (f *fakeStore) addChat(id, user1ID, user2ID string) *store.Chat {
	c := &store.Chat{ID: id, User1ID: user1ID, User2ID: user2ID, CreatedAt: time.Now()}
	f.chats[id] = c
	return c
}

func (f *fakeStore) CreateUser(_ context.Context, email, username, passwordHash string) (*store.User, error) {
	u := &store.User{ID: "u-" + username, Email: email, Username: username, PasswordHash: passwordHash}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*store.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) GetUserByIdentifier(_ context.Context, identifier string) (*store.User, error) {
	for _, u := range f.users {
		if u.Email == identifier || u.Username == identifier {
			return u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) CreateChat(_ context.Context, user1ID, user2ID string) (*store.Chat, error) {
	c := &store.Chat{ID: fmt.Sprintf("chat-%d", len(f.chats)+1), User1ID: user1ID, User2ID: user2ID}
	f.chats[c.ID] = c
	return c, nil
}

func (f *fakeStore) GetChatByID(_ context.Context, id string) (*store.Chat, error) {
	if f.failErr != nil {
		return nil, f.failErr
	}
	if c, ok := f.chats[id]; ok {
		return c, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) GetChatBetween(_ context.Context, userID, otherUserID string) (*store.Chat, error) {
	for _, c := range f.chats {
		if (c.User1ID == userID && c.User2ID == otherUserID) ||
			(c.User1ID == otherUserID && c.User2ID == userID) {
			return c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListChatsForUser(_ context.Context, userID string) ([]*store.Chat, error) {
	var out []*store.Chat
	for _, c := range f.chats {
		if c.User1ID == userID || c.User2ID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateMessage(_ context.Context, chatID, senderID, content string) (*store.Message, error) {
	if f.panicOnCreate {
		panic("store blew up")
	}
	if f.failErr != nil {
		return nil, f.failErr
	}
	f.nextMessageID++
	m := &store.Message{
		ID:        fmt.Sprintf("msg-%d", f.nextMessageID),
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	f.messages = append(f.messages, m)
	return m, nil
}

func (f *fakeStore) ListChatMessages(_ context.Context, chatID string, limit int) ([]*store.Message, error) {
	if f.failErr != nil {
		return nil, f.failErr
	}
	var out []*store.Message
	for _, m := range f.messages {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeStore) Close() error { return nil }

// newTestRouter wires a router to a fake store and an in-process cache.
func newTestRouter(t *testing.T, opts Options) (*Router, *Registry, *fakeStore, *cache.Memory) {
	t.Helper()
	fs := newFakeStore()
	mem := cache.NewMemory()
	reg := NewRegistry()
	r := NewRouter(reg, fs, mem, log.Nop(), opts)
	return r, reg, fs, mem
}

func connect(reg *Registry, userID string) *Client {
	c := NewClient(Principal{ID: userID, Username: userID})
	reg.Register(c)
	return c
}

// mustEvent receives the next envelope queued for the client or fails.
func mustEvent(t *testing.T, c *Client) proto.Outbound {
	t.Helper()
	select {
	case out := <-c.Events:
		return out
	case <-time.After(2 * time.Second):
		t.Fatalf("no envelope delivered to %s", c.ID)
		return proto.Outbound{}
	}
}

// mustErrorEvent asserts the next envelope is an error with the given message.
func mustErrorEvent(t *testing.T, c *Client, want string) {
	t.Helper()
	out := mustEvent(t, c)
	if out.Type != proto.TypeError {
		t.Fatalf("expected error envelope, got type %q", out.Type)
	}
	p, ok := out.Payload.(proto.ErrorPayload)
	if !ok {
		t.Fatalf("unexpected error payload type %T", out.Payload)
	}
	if p.Message != want {
		t.Fatalf("error message = %q, want %q", p.Message, want)
	}
}

// noEvent asserts nothing is queued for the client within the window.
func noEvent(t *testing.T, c *Client, window time.Duration) {
	t.Helper()
	select {
	case out := <-c.Events:
		t.Fatalf("unexpected envelope for %s: type=%q payload=%v", c.ID, out.Type, out.Payload)
	case <-time.After(window):
	}
}
