package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/ContactScope/pkg/errors"
)

var ErrLockNotHeld = errors.New(errors.ErrCodeConflict, "lock not held by this owner")

var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// Claim is a best-effort exclusive hold on a key, used to keep two workers
// from processing the same request at once.
type Claim struct {
	client *Client
	key    string
	token  string
}

// TryClaim sets key if absent. It returns nil and no error when another owner
// holds it.
func (c *Client) TryClaim(ctx context.Context, key string, ttl time.Duration) (*Claim, error) {
	token := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "claim failed")
	}
	if !ok {
		return nil, nil
	}
	return &Claim{client: c, key: key, token: token}, nil
}

// Release deletes the key if this claim still owns it.
func (cl *Claim) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, cl.client.rdb, []string{cl.key}, cl.token).Int64()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "release failed")
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}
