package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/duochat/duochat-server/internal/cache"
	"github.com/duochat/duochat-server/internal/proto"
	"github.com/duochat/duochat-server/internal/store"
)

// handleOnline answers an on-demand presence poll on the requesting
// connection. A live registry entry is the authoritative "online"; without
// one the reply falls back to the last-seen record written at disconnect.
func (r *Router) handleOnline(ctx context.Context, sender *Client, q proto.OnlineQuery) error {
	if q.UserID == "" || q.OtherUserID == "" {
		sender.Send(proto.ErrorEnvelope(MsgInvalidPresence))
		return nil
	}

	if _, err := r.store.GetChatBetween(ctx, q.UserID, q.OtherUserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("resolve chat pair: %w", err)
	}

	if _, ok := r.registry.Lookup(q.OtherUserID); ok {
		sender.Send(proto.Outbound{Type: proto.TypeOnline, Payload: proto.OnlineStatus{Online: true}})
		return nil
	}

	lastSeen, err := r.cache.Get(ctx, cache.KeyPrefixLastSeen+q.OtherUserID)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			r.log.Warn().Err(err).Str("user_id", q.OtherUserID).Msg("last-seen read failed")
		}
		sender.Send(proto.Outbound{Type: proto.TypeOnline, Payload: proto.OnlineStatus{Online: false}})
		return nil
	}

	sender.Send(proto.Outbound{
		Type:    proto.TypeOnline,
		Payload: proto.OnlineStatus{Online: r.recentlySeen(lastSeen), LastSeen: lastSeen},
	})
	return nil
}

// recentlySeen reports whether the last-seen timestamp falls inside the
// presence threshold. Informational only: last-seen is written once at
// disconnect and never refreshed, so this is true only briefly after a
// disconnect. Consumers should trust the registry check and the raw
// lastSeen value, not this boolean.
func (r *Router) recentlySeen(lastSeen string) bool {
	ts, err := time.Parse(time.RFC3339, lastSeen)
	if err != nil {
		return false
	}
	return time.Since(ts) < r.presenceThreshold
}

// recordLastSeen is the registry disconnect hook. It runs before the
// registry entry is removed, so a presence poll racing the disconnect sees
// either the live entry or this record.
func (r *Router) recordLastSeen(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := time.Now().UTC().Format(time.RFC3339)
	if err := r.cache.Set(ctx, cache.KeyPrefixLastSeen+userID, now, 0); err != nil {
		r.log.Warn().Err(err).Str("user_id", userID).Msg("last-seen write failed")
	}
}
