package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/duochat/duochat-server/internal/cache"
	"github.com/duochat/duochat-server/internal/store"
)

// chatCacheTTL bounds the chat snapshot entries written on create. The
// message handler invalidates them; expiry is the backstop.
const chatCacheTTL = time.Hour

// ChatHandlers provides HTTP handlers for chat pairing endpoints.
type ChatHandlers struct {
	store store.Store
	cache cache.Cache
	log   *zerolog.Logger
}

// NewChatHandlers creates a new chat handlers instance.
func NewChatHandlers(st store.Store, c cache.Cache, logger *zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{
		store: st,
		cache: c,
		log:   logger,
	}
}

// CreateChatRequest represents the chat creation request body. The second
// participant is addressed by email or username.
type CreateChatRequest struct {
	SecondUser string `json:"secondUser" binding:"required"`
}

// ChatResponse is the public view of a chat pairing.
type ChatResponse struct {
	ID        string    `json:"id"`
	User1ID   string    `json:"user1Id"`
	User2ID   string    `json:"user2Id"`
	CreatedAt time.Time `json:"createdAt"`
}

func chatResponse(chat *store.Chat) ChatResponse {
	return ChatResponse{
		ID:        chat.ID,
		User1ID:   chat.User1ID,
		User2ID:   chat.User2ID,
		CreatedAt: chat.CreatedAt,
	}
}

// Create pairs the authenticated user with another user.
// POST /api/chats
func (h *ChatHandlers) Create(c *gin.Context) {
	var req CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	userID := c.GetString(ContextKeyUserID)

	other, err := h.store.GetUserByIdentifier(ctx, req.SecondUser)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Msg("failed to resolve user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	if other.ID == userID {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot create a chat with yourself"})
		return
	}

	if _, err := h.store.GetChatBetween(ctx, userID, other.ID); err == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "chat already exists between these users"})
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		h.log.Error().Err(err).Msg("failed to check existing chat")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	chat, err := h.store.CreateChat(ctx, userID, other.ID)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to create chat")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	// Best-effort snapshot for the cache collaborator.
	if raw, jsonErr := json.Marshal(chatResponse(chat)); jsonErr == nil {
		if cacheErr := h.cache.Set(ctx, cache.KeyPrefixChat+chat.ID, string(raw), chatCacheTTL); cacheErr != nil {
			h.log.Warn().Err(cacheErr).Str("chat_id", chat.ID).Msg("failed to cache chat")
		}
	}

	h.log.Info().Str("chat_id", chat.ID).Msg("chat created")
	c.JSON(http.StatusCreated, chatResponse(chat))
}

// List returns the chats the authenticated user participates in.
// GET /api/chats
func (h *ChatHandlers) List(c *gin.Context) {
	userID := c.GetString(ContextKeyUserID)

	chats, err := h.store.ListChatsForUser(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list chats")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	out := make([]ChatResponse, 0, len(chats))
	for _, chat := range chats {
		out = append(out, chatResponse(chat))
	}
	c.JSON(http.StatusOK, gin.H{"chats": out})
}

// GetByID returns a single chat. Only its participants may read it.
// GET /api/chats/:id
func (h *ChatHandlers) GetByID(c *gin.Context) {
	userID := c.GetString(ContextKeyUserID)

	chat, err := h.store.GetChatByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "chat not found"})
			return
		}
		h.log.Error().Err(err).Msg("failed to get chat")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	if chat.User1ID != userID && chat.User2ID != userID {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a participant"})
		return
	}

	c.JSON(http.StatusOK, chatResponse(chat))
}
