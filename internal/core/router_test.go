package core

import (
	"context"
	"testing"
	"time"

	"github.com/duochat/duochat-server/internal/proto"
)

func TestDispatchMalformedJSON(t *testing.T) {
	r, reg, _, _ := newTestRouter(t, Options{})
	alice := connect(reg, "alice")

	r.Dispatch(context.Background(), alice, []byte(`{not json`))
	mustErrorEvent(t, alice, MsgInvalidFormat)
}

func TestDispatchMissingType(t *testing.T) {
	r, reg, _, _ := newTestRouter(t, Options{})
	alice := connect(reg, "alice")

	r.Dispatch(context.Background(), alice, []byte(`{"payload":{}}`))
	mustErrorEvent(t, alice, MsgInvalidFormat)
}

func TestDispatchUnsupportedType(t *testing.T) {
	r, reg, _, _ := newTestRouter(t, Options{})
	alice := connect(reg, "alice")

	r.Dispatch(context.Background(), alice, []byte(`{"type":"video","payload":{}}`))
	mustErrorEvent(t, alice, MsgUnsupportedType)
}

func TestDispatchMissingPayload(t *testing.T) {
	r, reg, _, _ := newTestRouter(t, Options{})
	alice := connect(reg, "alice")

	r.Dispatch(context.Background(), alice, []byte(`{"type":"chat"}`))
	mustErrorEvent(t, alice, MsgInvalidFormat)
}

func TestDispatchPayloadShapeMismatch(t *testing.T) {
	r, reg, _, _ := newTestRouter(t, Options{})
	alice := connect(reg, "alice")

	r.Dispatch(context.Background(), alice, []byte(`{"type":"chat","payload":"plain string"}`))
	mustErrorEvent(t, alice, MsgInvalidFormat)
}

func TestDispatchRecoversFromHandlerPanic(t *testing.T) {
	r, reg, fs, _ := newTestRouter(t, Options{})
	fs.addChat("c1", "alice", "bob")
	fs.panicOnCreate = true
	alice := connect(reg, "alice")

	raw := []byte(`{"type":"chat","payload":{"chatId":"c1","senderId":"alice","content":"hi"}}`)
	r.Dispatch(context.Background(), alice, raw)
	mustErrorEvent(t, alice, MsgProcessingFailed)

	// The connection is still usable afterwards.
	fs.panicOnCreate = false
	r.Dispatch(context.Background(), alice, raw)
	out := mustEvent(t, alice)
	if out.Type != proto.TypeChat {
		t.Fatalf("post-panic dispatch returned type %q", out.Type)
	}
}

func TestDispatchCollaboratorFailureKeepsConnection(t *testing.T) {
	r, reg, fs, _ := newTestRouter(t, Options{})
	fs.addChat("c1", "alice", "bob")
	alice := connect(reg, "alice")

	fs.failErr = context.DeadlineExceeded
	r.Dispatch(context.Background(), alice, []byte(`{"type":"chat","payload":{"chatId":"c1","senderId":"alice","content":"hi"}}`))
	mustErrorEvent(t, alice, MsgChatFailed)

	fs.failErr = nil
	r.Dispatch(context.Background(), alice, []byte(`{"type":"chat","payload":{"chatId":"c1","senderId":"alice","content":"hi"}}`))
	if out := mustEvent(t, alice); out.Type != proto.TypeChat {
		t.Fatalf("connection unusable after collaborator failure, got type %q", out.Type)
	}
}

func TestDisconnectFlushesTypingAndUnregisters(t *testing.T) {
	r, reg, fs, _ := newTestRouter(t, Options{TypingWindow: time.Hour})
	fs.addChat("c1", "alice", "bob")
	alice := connect(reg, "alice")
	bob := connect(reg, "bob")

	r.Dispatch(context.Background(), alice, []byte(`{"type":"typing","payload":{"chatId":"c1","userId":"alice","isTyping":true}}`))
	out := mustEvent(t, bob)
	if p := out.Payload.(proto.TypingPayload); !p.IsTyping {
		t.Fatal("expected typing started before disconnect")
	}

	r.Disconnect(alice)

	out = mustEvent(t, bob)
	if p := out.Payload.(proto.TypingPayload); p.IsTyping {
		t.Fatal("expected typing stopped on disconnect")
	}
	if _, ok := reg.Lookup("alice"); ok {
		t.Fatal("client still registered after disconnect")
	}
}
