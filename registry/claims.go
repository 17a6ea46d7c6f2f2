package registry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrClaimUnavailable wraps Redis failures raised while claiming identifiers.
var ErrClaimUnavailable = errors.New("claim store unavailable")

const minClaimTTL = time.Second

const claimScript = `
local current = redis.call("GET", KEYS[1])
if not current then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
  return 1
end
if current == ARGV[1] then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
  return 1
end
return 0
`

var claimLua = redis.NewScript(claimScript)

const releaseClaimScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var releaseClaimLua = redis.NewScript(releaseClaimScript)

const refreshClaimScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`

var refreshClaimLua = redis.NewScript(refreshClaimScript)

// ClaimStore records which node owns a remote session identifier.
//
// A claim is a Redis key holding the owner token with a TTL. Only the owner
// can extend or delete it.
type ClaimStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
	owner  string
}

// NewClaimStore creates a [ClaimStore] backed by client. prefix sets the key
// namespace, ttl bounds how long an abandoned claim survives, and owner
// identifies this node (a random UUID when empty).
func NewClaimStore(client redis.UniversalClient, prefix string, ttl time.Duration, owner string) *ClaimStore {
	if prefix == "" {
		prefix = "gs"
	}
	if ttl < minClaimTTL {
		ttl = minClaimTTL
	}
	if owner == "" {
		owner = uuid.NewString()
	}
	return &ClaimStore{
		redis:  client,
		prefix: prefix,
		ttl:    ttl,
		owner:  owner,
	}
}

// OwnerToken returns the token this store writes into its claims.
func (c *ClaimStore) OwnerToken() string { return c.owner }

// TTL returns the claim lifetime.
func (c *ClaimStore) TTL() time.Duration { return c.ttl }

func (c *ClaimStore) key(id uint16) string {
	return c.prefix + ":claim:" + strconv.FormatUint(uint64(id), 10)
}

// Claim takes ownership of id. It reports false when another owner holds
// the claim. Re-claiming an id this store already owns extends it.
func (c *ClaimStore) Claim(ctx context.Context, id uint16) (bool, error) {
	res, err := claimLua.Run(ctx, c.redis, []string{c.key(id)}, c.owner, c.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrClaimUnavailable, err)
	}
	return res == 1, nil
}

// Release drops the claim on id if this store owns it. Releasing an id that
// is unclaimed or owned elsewhere is a no-op.
func (c *ClaimStore) Release(ctx context.Context, id uint16) error {
	if err := releaseClaimLua.Run(ctx, c.redis, []string{c.key(id)}, c.owner).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrClaimUnavailable, err)
	}
	return nil
}

// Refresh extends the claim on id. It reports false when this store does not
// own the claim.
func (c *ClaimStore) Refresh(ctx context.Context, id uint16) (bool, error) {
	res, err := refreshClaimLua.Run(ctx, c.redis, []string{c.key(id)}, c.owner, c.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrClaimUnavailable, err)
	}
	return res == 1, nil
}

// Owner returns the token holding the claim on id, or "" when unclaimed.
func (c *ClaimStore) Owner(ctx context.Context, id uint16) (string, error) {
	owner, err := c.redis.Get(ctx, c.key(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrClaimUnavailable, err)
	}
	return owner, nil
}
