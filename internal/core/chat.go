package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/duochat/duochat-server/internal/cache"
	"github.com/duochat/duochat-server/internal/proto"
	"github.com/duochat/duochat-server/internal/store"
)

// handleChat persists a chat message and delivers it to both participants'
// live connections. Delivery to both sides is deliberate: the sender's own
// registered connection gets an echoed copy so every tab it has open
// converges on the same transcript.
func (r *Router) handleChat(ctx context.Context, sender *Client, p proto.ChatPayload) error {
	if p.ChatID == "" || p.Content == "" || p.SenderID == "" || p.SenderID != sender.ID {
		sender.Send(proto.ErrorEnvelope(MsgInvalidChat))
		return nil
	}

	msg, err := r.store.CreateMessage(ctx, p.ChatID, p.SenderID, p.Content)
	if err != nil {
		return fmt.Errorf("persist message: %w", err)
	}

	chat, err := r.store.GetChatByID(ctx, p.ChatID)
	if err != nil {
		// The message is persisted but undeliverable; history replay will
		// surface it if the chat reappears.
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("resolve chat: %w", err)
	}

	event := proto.Outbound{
		Type: proto.TypeChat,
		Payload: proto.ChatEvent{
			ChatID: chat.ID,
			Message: proto.Message{
				ID:        msg.ID,
				ChatID:    msg.ChatID,
				SenderID:  msg.SenderID,
				Content:   msg.Content,
				CreatedAt: msg.CreatedAt,
			},
		},
	}

	r.deliverTo(otherParticipant(chat, p.SenderID), event)
	r.deliverTo(p.SenderID, event)

	if err := r.cache.Del(ctx, cache.KeyPrefixChat+chat.ID); err != nil {
		return fmt.Errorf("invalidate chat cache: %w", err)
	}
	return nil
}
