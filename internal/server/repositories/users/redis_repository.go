package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tokenguard/internal/common"
	"github.com/dmitrijs2005/tokenguard/internal/server/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultRedisPrefix = "tokenguard:"

// All user keys share one cluster hash slot so createScript may touch both
// the email index and the user hash.
const redisHashTag = "{users}"

const (
	fieldID           = "id"
	fieldEmail        = "email"
	fieldFirstName    = "first_name"
	fieldLastName     = "last_name"
	fieldLanguageCode = "language_code"
	fieldPasswordHash = "password_hash"
	fieldPasswordSalt = "password_salt"
	fieldAccessToken  = "access_token"
	fieldPrevious     = "previous_access_token"
	fieldCreatedAt    = "created_at"
	fieldUpdatedAt    = "updated_at"
)

// KEYS[1] email index, KEYS[2] user hash; ARGV[1] id, ARGV[2:] hash fields.
var createScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[2], unpack(ARGV, 2))
redis.call("SET", KEYS[1], ARGV[1])
return 1
`)

// KEYS[1] user hash; ARGV[1] expected, ARGV[2] next, ARGV[3] updated_at.
var casScript = redis.NewScript(`
local cur = redis.call("HGET", KEYS[1], "access_token")
if not cur or cur ~= ARGV[1] then
  return 0
end
redis.call("HSET", KEYS[1], "previous_access_token", cur, "access_token", ARGV[2], "updated_at", ARGV[3])
return 1
`)

// KEYS[1] user hash; ARGV[1] next, ARGV[2] updated_at.
var replaceScript = redis.NewScript(`
local cur = redis.call("HGET", KEYS[1], "access_token")
if not cur then
  return 0
end
redis.call("HSET", KEYS[1], "previous_access_token", cur, "access_token", ARGV[1], "updated_at", ARGV[2])
return 1
`)

// RedisRepository keeps each user in a hash with a separate email index key.
// Token swaps run as Lua scripts so the compare and the write are atomic.
// Keys carry a common hash tag, so the scripts also run on Redis Cluster.
type RedisRepository struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRepository(client redis.UniversalClient, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisRepository{client: client, prefix: prefix}
}

func (r *RedisRepository) userKey(id uuid.UUID) string {
	return r.prefix + redisHashTag + ":user:" + id.String()
}

func (r *RedisRepository) emailKey(email string) string {
	return r.prefix + redisHashTag + ":user:email:" + email
}

func (r *RedisRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now

	args := []any{
		user.ID.String(),
		fieldID, user.ID.String(),
		fieldEmail, user.Email,
		fieldLanguageCode, user.LanguageCode,
		fieldPasswordHash, user.PasswordHash,
		fieldPasswordSalt, user.PasswordSalt,
		fieldAccessToken, user.AccessToken,
		fieldCreatedAt, now.Format(time.RFC3339Nano),
		fieldUpdatedAt, now.Format(time.RFC3339Nano),
	}
	if user.FirstName != nil {
		args = append(args, fieldFirstName, *user.FirstName)
	}
	if user.LastName != nil {
		args = append(args, fieldLastName, *user.LastName)
	}

	keys := []string{r.emailKey(user.Email), r.userKey(user.ID)}
	n, err := createScript.Run(ctx, r.client, keys, args...).Int64()
	if err != nil {
		return nil, classifyRedis(err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: email %s", common.ErrAlreadyExists, user.Email)
	}

	return user, nil
}

func (r *RedisRepository) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	fields, err := r.client.HGetAll(ctx, r.userKey(id)).Result()
	if err != nil {
		return nil, classifyRedis(err)
	}
	if len(fields) == 0 {
		return nil, common.ErrorNotFound
	}
	return userFromHash(fields)
}

func (r *RedisRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	raw, err := r.client.Get(ctx, r.emailKey(email)).Result()
	if err != nil {
		return nil, classifyRedis(err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("redis error: bad email index entry: %w", err)
	}
	return r.GetUser(ctx, id)
}

func (r *RedisRepository) GetAccessToken(ctx context.Context, id uuid.UUID) (string, error) {
	token, err := r.client.HGet(ctx, r.userKey(id), fieldAccessToken).Result()
	if err != nil {
		return "", classifyRedis(err)
	}
	return token, nil
}

func (r *RedisRepository) CompareAndSwapToken(ctx context.Context, id uuid.UUID, expected, next string) (int64, error) {
	updated := time.Now().UTC().Format(time.RFC3339Nano)
	n, err := casScript.Run(ctx, r.client, []string{r.userKey(id)}, expected, next, updated).Int64()
	if err != nil {
		return 0, classifyRedis(err)
	}
	return n, nil
}

func (r *RedisRepository) ReplaceAccessToken(ctx context.Context, id uuid.UUID, next string) error {
	updated := time.Now().UTC().Format(time.RFC3339Nano)
	n, err := replaceScript.Run(ctx, r.client, []string{r.userKey(id)}, next, updated).Int64()
	if err != nil {
		return classifyRedis(err)
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", id, common.ErrorNotFound)
	}
	return nil
}

func userFromHash(h map[string]string) (*models.User, error) {
	id, err := uuid.Parse(h[fieldID])
	if err != nil {
		return nil, fmt.Errorf("redis error: bad user id: %w", err)
	}

	u := &models.User{
		ID:           id,
		Email:        h[fieldEmail],
		LanguageCode: h[fieldLanguageCode],
		PasswordHash: h[fieldPasswordHash],
		PasswordSalt: h[fieldPasswordSalt],
		AccessToken:  h[fieldAccessToken],
	}
	if v, ok := h[fieldFirstName]; ok {
		u.FirstName = &v
	}
	if v, ok := h[fieldLastName]; ok {
		u.LastName = &v
	}
	if v, ok := h[fieldPrevious]; ok {
		u.PreviousAccessToken = &v
	}
	if u.CreatedAt, err = parseTimestamp(h[fieldCreatedAt]); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = parseTimestamp(h[fieldUpdatedAt]); err != nil {
		return nil, err
	}
	return u, nil
}

// parseTimestamp reads an RFC 3339 timestamp written by Create or a token
// swap. Empty means unset.
func parseTimestamp(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", v, err)
	}
	return t, nil
}

// classifyRedis treats server replies as plain errors and everything the
// client could not get a reply for (dial, I/O, pool and context failures) as
// ErrStoreUnavailable.
func classifyRedis(err error) error {
	if errors.Is(err, redis.Nil) {
		return common.ErrorNotFound
	}
	var rerr redis.Error
	if errors.As(err, &rerr) {
		return fmt.Errorf("redis error: %w", err)
	}
	return unavailable(err)
}
