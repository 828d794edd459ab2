package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revoker tracks logged-out token ids in Redis until they would have expired
// anyway. This is a denylist of identities, not a cache of authorization
// state: permission checks always go to the directory.
type Revoker struct {
	client *redis.Client
}

// NewRevoker constructs a Revoker.
func NewRevoker(client *redis.Client) *Revoker {
	return &Revoker{client: client}
}

func (rv *Revoker) key(tokenID string) string {
	return "fleetgate:revoked:" + tokenID
}

// Revoke marks a token id revoked until its natural expiry.
func (rv *Revoker) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := rv.client.Set(ctx, rv.key(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("auth: revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether the token id has been revoked.
func (rv *Revoker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := rv.client.Exists(ctx, rv.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("auth: check revocation: %w", err)
	}
	return n > 0, nil
}
