package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Keys used by the server. The cache is a best-effort accelerator and
// invalidation target, never a source of truth.
const (
	KeyPrefixUser     = "user:"
	KeyPrefixChat     = "chat:"
	KeyPrefixLastSeen = "lastSeen:"
)

// Cache is the expiring key/value collaborator. A ttl of zero means the
// entry does not expire.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}
