package services

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisChallengeStore keeps captcha challenges in redis so verification works
// across instances behind a load balancer.
type RedisChallengeStore struct {
	rc        *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisChallengeStore creates a redis-backed ChallengeStore
func NewRedisChallengeStore(rc *redis.Client, keyPrefix string, ttl time.Duration) *RedisChallengeStore {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisChallengeStore{rc: rc, keyPrefix: keyPrefix, ttl: ttl}
}

func (s *RedisChallengeStore) key(id string) string {
	return s.keyPrefix + ":captcha:" + id
}

func (s *RedisChallengeStore) Put(ctx context.Context, id string, targetAngle int) error {
	return s.rc.Set(ctx, s.key(id), targetAngle, s.ttl).Err()
}

func (s *RedisChallengeStore) Take(ctx context.Context, id string) (int, bool) {
	val, err := s.rc.GetDel(ctx, s.key(id)).Result()
	if err != nil {
		return 0, false
	}
	angle, err := strconv.Atoi(val)
	if err != nil {
		return 0, false
	}
	return angle, true
}
