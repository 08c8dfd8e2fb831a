package auth

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares one credential across client instances, e.g. the replicas
// of a merchant backend, so each token is fetched once per expiry window. The
// key's TTL carries the expiry instant.
type RedisStore struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key, now: time.Now}
}

func (s *RedisStore) Load(ctx context.Context) (Credential, bool, error) {
	token, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return Credential{}, false, nil
	}
	if err != nil {
		return Credential{}, false, err
	}

	ttl, err := s.client.PTTL(ctx, s.key).Result()
	if err != nil {
		return Credential{}, false, err
	}
	if ttl <= 0 {
		// Key without a TTL would claim validity forever; treat as absent.
		return Credential{}, false, nil
	}

	return Credential{Token: token, ExpiresAt: s.now().Add(ttl)}, true, nil
}

func (s *RedisStore) Save(ctx context.Context, cred Credential) error {
	ttl := cred.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, s.key, cred.Token, ttl).Err()
}
