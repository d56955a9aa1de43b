package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore tracks revoked token ids (jti) until the token's natural
// expiry. Revoke reports false when the id was already revoked, so a refresh
// token can be spent exactly once.
type RevocationStore interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) (bool, error)
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// MemoryRevocationStore keeps revocations in process memory with periodic
// cleanup. Suitable for a single instance and for tests.
type MemoryRevocationStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

func NewMemoryRevocationStore() *MemoryRevocationStore {
	s := &MemoryRevocationStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go s.cleanupLoop(5 * time.Minute)
	return s
}

func (s *MemoryRevocationStore) Revoke(_ context.Context, jti string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[jti]; ok {
		return false, nil
	}
	s.entries[jti] = expiresAt
	return true, nil
}

func (s *MemoryRevocationStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.entries[jti]
	return ok, nil
}

// Count returns the number of tracked revocations.
func (s *MemoryRevocationStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (s *MemoryRevocationStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *MemoryRevocationStore) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup drops entries whose tokens are past expiry; an expired token is
// rejected by the verifier anyway.
func (s *MemoryRevocationStore) cleanup() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for jti, exp := range s.entries {
		if now.After(exp) {
			delete(s.entries, jti)
		}
	}
}

// RedisRevocationStore shares revocations across instances. Each entry is a
// key that Redis expires together with the token.
type RedisRevocationStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisRevocationStore(client *redis.Client) *RedisRevocationStore {
	return &RedisRevocationStore{client: client, prefix: "medipt:revoked:", now: time.Now}
}

func (s *RedisRevocationStore) Revoke(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		// Already expired; keep a short marker so a replay in the same second still fails.
		ttl = time.Second
	}
	ok, err := s.client.SetNX(ctx, s.prefix+jti, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("revoke token %s: %w", jti, err)
	}
	return ok, nil
}

func (s *RedisRevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation %s: %w", jti, err)
	}
	return n > 0, nil
}
