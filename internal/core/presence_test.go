package core

import (
	"context"
	"testing"
	"time"

	"github.com/duochat/duochat-server/internal/cache"
	"github.com/duochat/duochat-server/internal/proto"
)

func onlineFrame(t *testing.T, c *Client) proto.OnlineStatus {
	t.Helper()
	out := mustEvent(t, c)
	if out.Type != proto.TypeOnline {
		t.Fatalf("expected online envelope, got %q", out.Type)
	}
	return out.Payload.(proto.OnlineStatus)
}

func TestOnlineLiveConnection(t *testing.T) {
	r, reg, fs, _ := newTestRouter(t, Options{})
	fs.addChat("c1", "alice", "bob")
	alice := connect(reg, "alice")
	connect(reg, "bob")

	if err := r.handleOnline(context.Background(), alice, proto.OnlineQuery{
		UserID: "alice", OtherUserID: "bob",
	}); err != nil {
		t.Fatalf("handleOnline: %v", err)
	}

	st := onlineFrame(t, alice)
	if !st.Online || st.LastSeen != "" {
		t.Fatalf("expected online without lastSeen, got %+v", st)
	}
}

func TestOnlineNoRecordMeansOffline(t *testing.T) {
	r, reg, fs, _ := newTestRouter(t, Options{})
	fs.addChat("c1", "alice", "bob")
	alice := connect(reg, "alice")

	if err := r.handleOnline(context.Background(), alice, proto.OnlineQuery{
		UserID: "alice", OtherUserID: "bob",
	}); err != nil {
		t.Fatalf("handleOnline: %v", err)
	}

	st := onlineFrame(t, alice)
	if st.Online || st.LastSeen != "" {
		t.Fatalf("expected offline without lastSeen, got %+v", st)
	}
}

func TestOnlineLastSeenFallback(t *testing.T) {
	r, reg, fs, mem := newTestRouter(t, Options{PresenceThreshold: time.Minute})
	fs.addChat("c1", "alice", "bob")
	alice := connect(reg, "alice")

	ctx := context.Background()
	recent := time.Now().UTC().Add(-10 * time.Second).Format(time.RFC3339)
	if err := mem.Set(ctx, cache.KeyPrefixLastSeen+"bob", recent, 0); err != nil {
		t.Fatalf("seed last-seen: %v", err)
	}

	if err := r.handleOnline(ctx, alice, proto.OnlineQuery{UserID: "alice", OtherUserID: "bob"}); err != nil {
		t.Fatalf("handleOnline: %v", err)
	}

	st := onlineFrame(t, alice)
	if !st.Online || st.LastSeen != recent {
		t.Fatalf("expected recently-seen with lastSeen %q, got %+v", recent, st)
	}
}

func TestOnlineStaleLastSeen(t *testing.T) {
	r, reg, fs, mem := newTestRouter(t, Options{PresenceThreshold: time.Minute})
	fs.addChat("c1", "alice", "bob")
	alice := connect(reg, "alice")

	ctx := context.Background()
	stale := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	mem.Set(ctx, cache.KeyPrefixLastSeen+"bob", stale, 0)

	if err := r.handleOnline(ctx, alice, proto.OnlineQuery{UserID: "alice", OtherUserID: "bob"}); err != nil {
		t.Fatalf("handleOnline: %v", err)
	}

	st := onlineFrame(t, alice)
	if st.Online {
		t.Fatal("stale last-seen reported as online")
	}
	if st.LastSeen != stale {
		t.Fatalf("lastSeen = %q, want %q", st.LastSeen, stale)
	}
}

func TestOnlineNoSharedChatIgnored(t *testing.T) {
	r, reg, _, _ := newTestRouter(t, Options{})
	alice := connect(reg, "alice")
	connect(reg, "bob")

	if err := r.handleOnline(context.Background(), alice, proto.OnlineQuery{
		UserID: "alice", OtherUserID: "bob",
	}); err != nil {
		t.Fatalf("handleOnline: %v", err)
	}
	noEvent(t, alice, 50*time.Millisecond)
}

func TestOnlineRejectsEmptyQuery(t *testing.T) {
	r, reg, _, _ := newTestRouter(t, Options{})
	alice := connect(reg, "alice")

	if err := r.handleOnline(context.Background(), alice, proto.OnlineQuery{UserID: "alice"}); err != nil {
		t.Fatalf("handleOnline: %v", err)
	}
	mustErrorEvent(t, alice, MsgInvalidPresence)
}

func TestDisconnectWritesLastSeen(t *testing.T) {
	r, reg, fs, mem := newTestRouter(t, Options{})
	fs.addChat("c1", "alice", "bob")
	alice := connect(reg, "alice")

	before := time.Now().UTC().Add(-time.Second)
	r.Disconnect(alice)

	raw, err := mem.Get(context.Background(), cache.KeyPrefixLastSeen+"alice")
	if err != nil {
		t.Fatalf("last-seen not written: %v", err)
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		t.Fatalf("last-seen not RFC3339: %q", raw)
	}
	if ts.Before(before) {
		t.Fatalf("last-seen %v predates the disconnect", ts)
	}
}
