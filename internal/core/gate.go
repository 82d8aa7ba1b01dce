package core

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/duochat/duochat-server/internal/auth"
	"github.com/duochat/duochat-server/internal/cache"
	"github.com/duochat/duochat-server/internal/proto"
	"github.com/duochat/duochat-server/internal/store"
)

// GateError is an authentication failure mapped to a connection close code.
type GateError struct {
	CloseCode int
	Reason    string
}

func (e *GateError) Error() string {
	return e.Reason
}

var (
	errAuthRequired = &GateError{CloseCode: proto.CloseAuthRequired, Reason: "Authentication required"}
	errInvalidAuth  = &GateError{CloseCode: proto.CloseInvalidAuth, Reason: "Invalid authentication"}
)

// Gate validates the bearer credential presented at connection time and
// resolves it to a principal, using the cache in front of the durable store.
type Gate struct {
	jwt   *auth.JWTConfig
	users store.UserStore
	cache cache.Cache
	ttl   time.Duration
	log   *zerolog.Logger
}

// NewGate builds a credential gate. ttl bounds how long resolved principals
// stay cached.
func NewGate(jwtCfg *auth.JWTConfig, users store.UserStore, c cache.Cache, ttl time.Duration, logger *zerolog.Logger) *Gate {
	return &Gate{
		jwt:   jwtCfg,
		users: users,
		cache: c,
		ttl:   ttl,
		log:   logger,
	}
}

// Authenticate verifies the credential and resolves the subject to a
// principal. A missing credential, a bad signature or expiry, and a deleted
// subject each map to a distinct rejection.
func (g *Gate) Authenticate(ctx context.Context, token string) (Principal, *GateError) {
	if token == "" {
		return Principal{}, errAuthRequired
	}

	claims, err := auth.ValidateToken(g.jwt, token)
	if err != nil {
		g.log.Debug().Err(err).Msg("credential rejected")
		return Principal{}, errInvalidAuth
	}

	key := cache.KeyPrefixUser + claims.UserID
	if raw, cacheErr := g.cache.Get(ctx, key); cacheErr == nil {
		var p Principal
		if jsonErr := json.Unmarshal([]byte(raw), &p); jsonErr == nil && p.ID != "" {
			return p, nil
		}
	}

	user, err := g.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			g.log.Error().Err(err).Str("user_id", claims.UserID).Msg("principal lookup failed")
		}
		return Principal{}, errInvalidAuth
	}

	p := Principal{ID: user.ID, Email: user.Email, Username: user.Username}
	if raw, jsonErr := json.Marshal(p); jsonErr == nil {
		if cacheErr := g.cache.Set(ctx, key, string(raw), g.ttl); cacheErr != nil {
			g.log.Warn().Err(cacheErr).Msg("failed to cache principal")
		}
	}

	return p, nil
}
