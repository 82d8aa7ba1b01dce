package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/duochat/duochat-server/internal/proto"
	"github.com/duochat/duochat-server/internal/store"
)

// handleJoin replays the chat's recent history to the requesting connection
// only, oldest first. Read-only: no broadcast, no cache writes.
func (r *Router) handleJoin(ctx context.Context, sender *Client, p proto.JoinPayload) error {
	if p.ChatID == "" {
		sender.Send(proto.ErrorEnvelope(MsgChatNotFound))
		return nil
	}

	chat, err := r.store.GetChatByID(ctx, p.ChatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			sender.Send(proto.ErrorEnvelope(MsgChatNotFound))
			return nil
		}
		return fmt.Errorf("resolve chat: %w", err)
	}

	messages, err := r.store.ListChatMessages(ctx, chat.ID, r.historyLimit)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}

	for _, msg := range messages {
		delivered := sender.Deliver(ctx, proto.Outbound{
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
		})
		if !delivered {
			return nil
		}
	}
	return nil
}
