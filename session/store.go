package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when the registry holds no session for an ID.
	ErrNotFound = errors.New("session not found")
	// ErrRedisUnavailable wraps transport failures talking to the registry.
	ErrRedisUnavailable = errors.New("session registry unavailable")
)

const minTTL = time.Second

// saveScript sets the blob and maintains the per-user bookkeeping in one
// atomic step: the per-user index gains the session ID, and the counter is
// incremented only when the key did not exist before.
const saveScript = `
local existed = redis.call("EXISTS", KEYS[1])
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
redis.call("SADD", KEYS[2], ARGV[3])
if existed == 0 then
  redis.call("INCR", KEYS[3])
end
return existed
`

// deleteScript removes the blob and rolls the bookkeeping back. The
// counter never goes below zero even when delete races delete: only the
// call that actually removed the key decrements, and a counter at one is
// deleted rather than decremented.
const deleteScript = `
local removed = redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if removed == 1 then
  local count = tonumber(redis.call("GET", KEYS[3]) or "0")
  if count > 1 then
    redis.call("DECR", KEYS[3])
  else
    redis.call("DEL", KEYS[3])
  end
end
return removed
`

var (
	saveLua   = redis.NewScript(saveScript)
	deleteLua = redis.NewScript(deleteScript)
)

// Store parks encoded sessions in Redis with a sliding TTL. All methods
// are safe for concurrent use; consistency of the per-user counter and
// index is maintained server-side in Lua.
type Store struct {
	client *redis.Client
	prefix string
}

// NewStore wraps a Redis client. The prefix namespaces every key so
// several deployments can share one Redis.
func NewStore(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "gorbac"
	}
	return &Store{client: client, prefix: prefix}
}

func (st *Store) sessionKey(id string) string {
	return st.prefix + ":sess:" + id
}

func (st *Store) userIndexKey(userID string) string {
	return st.prefix + ":sess:user:" + userID
}

func (st *Store) userCountKey(userID string) string {
	return st.prefix + ":sess:count:" + userID
}

// Save encodes and stores the session under the given TTL. Saving an
// existing ID overwrites the blob and refreshes the TTL without touching
// the per-user counter.
func (st *Store) Save(ctx context.Context, s *Session, ttl time.Duration) error {
	if s == nil || s.ID == "" {
		return errors.New("session without ID")
	}
	if ttl < minTTL {
		ttl = minTTL
	}
	blob, err := Encode(s)
	if err != nil {
		return err
	}

	keys := []string{st.sessionKey(s.ID), st.userIndexKey(s.UserID), st.userCountKey(s.UserID)}
	args := []interface{}{blob, ttl.Milliseconds(), s.ID}
	if err := saveLua.Run(ctx, st.client, keys, args...).Err(); err != nil {
		return wrapRedis(err)
	}
	return nil
}

// Load fetches and decodes a session. A missing key is [ErrNotFound]; an
// unparseable blob is [ErrCorruptBlob].
func (st *Store) Load(ctx context.Context, id string) (*Session, error) {
	blob, err := st.client.Get(ctx, st.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapRedis(err)
	}
	return Decode(blob)
}

// Touch extends the TTL of a parked session without rewriting the blob.
// Touching a missing session returns [ErrNotFound].
func (st *Store) Touch(ctx context.Context, id string, ttl time.Duration) error {
	if ttl < minTTL {
		ttl = minTTL
	}
	ok, err := st.client.PExpire(ctx, st.sessionKey(id), ttl).Result()
	if err != nil {
		return wrapRedis(err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Delete removes a parked session and its bookkeeping. Deleting an absent
// session is a no-op, not an error.
func (st *Store) Delete(ctx context.Context, id, userID string) error {
	keys := []string{st.sessionKey(id), st.userIndexKey(userID), st.userCountKey(userID)}
	if err := deleteLua.Run(ctx, st.client, keys, id).Err(); err != nil {
		return wrapRedis(err)
	}
	return nil
}

// Count returns the number of live parked sessions for a user. Expired
// blobs that have not been deleted may still be counted; the counter is a
// ceiling, not an exact census.
func (st *Store) Count(ctx context.Context, userID string) (int64, error) {
	v, err := st.client.Get(ctx, st.userCountKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, wrapRedis(err)
	}
	return v, nil
}

// SessionIDs returns the parked session IDs recorded for a user.
func (st *Store) SessionIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := st.client.SMembers(ctx, st.userIndexKey(userID)).Result()
	if err != nil {
		return nil, wrapRedis(err)
	}
	return ids, nil
}

func wrapRedis(err error) error {
	return errors.Join(ErrRedisUnavailable, err)
}
