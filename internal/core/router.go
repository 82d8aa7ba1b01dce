package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/duochat/duochat-server/internal/cache"
	"github.com/duochat/duochat-server/internal/proto"
	"github.com/duochat/duochat-server/internal/store"
)

// Options tune the router's timing and bounds. Zero values fall back to
// the defaults below.
type Options struct {
	// TypingWindow is how long after the last keystroke signal the trailing
	// "typing stopped" event fires.
	TypingWindow time.Duration

	// HistoryLimit bounds how many messages a join replays.
	HistoryLimit int

	// PresenceThreshold drives the informational online derivation for
	// users without a live connection.
	PresenceThreshold time.Duration
}

const (
	defaultTypingWindow      = 2 * time.Second
	defaultHistoryLimit      = 500
	defaultPresenceThreshold = 30 * time.Second
)

// Router parses inbound envelopes and dispatches them to the handler for
// their type. The envelope kind set is closed, so dispatch is a static
// switch rather than a runtime handler table. A bad frame never terminates
// the connection: every failure mode answers with an error envelope.
type Router struct {
	registry *Registry
	store    store.Store
	cache    cache.Cache
	typing   *typingTracker
	log      *zerolog.Logger

	historyLimit      int
	presenceThreshold time.Duration
}

// NewRouter wires the router to its collaborators and installs the
// presence disconnect hook on the registry.
func NewRouter(registry *Registry, st store.Store, c cache.Cache, logger *zerolog.Logger, opts Options) *Router {
	if opts.TypingWindow <= 0 {
		opts.TypingWindow = defaultTypingWindow
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	if opts.PresenceThreshold <= 0 {
		opts.PresenceThreshold = defaultPresenceThreshold
	}

	r := &Router{
		registry:          registry,
		store:             st,
		cache:             c,
		log:               logger,
		historyLimit:      opts.HistoryLimit,
		presenceThreshold: opts.PresenceThreshold,
	}
	r.typing = newTypingTracker(opts.TypingWindow, r.deliverTo)
	registry.SetDisconnectHook(r.recordLastSeen)
	return r
}

// Dispatch routes one raw inbound frame from the given connection.
func (r *Router) Dispatch(ctx context.Context, sender *Client, raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Str("user_id", sender.ID).Msg("handler panic")
			sender.Send(proto.ErrorEnvelope(MsgProcessingFailed))
		}
	}()

	var in proto.Inbound
	if err := json.Unmarshal(raw, &in); err != nil || in.Type == "" {
		sender.Send(proto.ErrorEnvelope(MsgInvalidFormat))
		return
	}

	switch in.Type {
	case proto.TypeChat:
		var p proto.ChatPayload
		if !r.decode(sender, in.Payload, &p) {
			return
		}
		r.fail(sender, MsgChatFailed, r.handleChat(ctx, sender, p))
	case proto.TypeJoin:
		var p proto.JoinPayload
		if !r.decode(sender, in.Payload, &p) {
			return
		}
		r.fail(sender, MsgJoinFailed, r.handleJoin(ctx, sender, p))
	case proto.TypeTyping:
		var p proto.TypingPayload
		if !r.decode(sender, in.Payload, &p) {
			return
		}
		r.fail(sender, MsgTypingFailed, r.handleTyping(ctx, sender, p))
	case proto.TypeOnline:
		var p proto.OnlineQuery
		if !r.decode(sender, in.Payload, &p) {
			return
		}
		r.fail(sender, MsgPresenceFailed, r.handleOnline(ctx, sender, p))
	default:
		r.log.Warn().Str("type", in.Type).Str("user_id", sender.ID).Msg("unhandled envelope type")
		sender.Send(proto.ErrorEnvelope(MsgUnsupportedType))
	}
}

// Disconnect runs connection-close cleanup: pending typing sessions are
// flushed and the registry entry removed (which records last-seen).
func (r *Router) Disconnect(sender *Client) {
	r.typing.flush(sender.ID)
	r.registry.Unregister(sender)
}

func (r *Router) decode(sender *Client, raw json.RawMessage, v any) bool {
	if len(raw) == 0 {
		sender.Send(proto.ErrorEnvelope(MsgInvalidFormat))
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		sender.Send(proto.ErrorEnvelope(MsgInvalidFormat))
		return false
	}
	return true
}

// fail converts a handler error into a logged error envelope. Collaborator
// failures never tear down the connection.
func (r *Router) fail(sender *Client, msg string, err error) {
	if err == nil {
		return
	}
	r.log.Error().Err(err).Str("user_id", sender.ID).Msg("handler error")
	sender.Send(proto.ErrorEnvelope(msg))
}

// deliverTo sends an envelope to a user's registered connection, if any.
// A missing or slow recipient is a silent no-op.
func (r *Router) deliverTo(userID string, out proto.Outbound) {
	if c, ok := r.registry.Lookup(userID); ok {
		c.Send(out)
	}
}

// otherParticipant resolves the chat participant that is not userID.
func otherParticipant(chat *store.Chat, userID string) string {
	if chat.User1ID == userID {
		return chat.User2ID
	}
	return chat.User1ID
}
