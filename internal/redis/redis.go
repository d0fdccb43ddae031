package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Nixie-Tech-LLC/minaret/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const resolutionKeyPrefix = "resolution:"

func NewClient(address, username, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     address,
		Username: username,
		Password: password,
		DB:       0,
	})
}

// CacheStore persists one ResolutionCacheEntry per user. Entries carry no
// expiry; removing them is an account-lifecycle concern.
type CacheStore struct {
	rdb *redis.Client
}

func NewCacheStore(rdb *redis.Client) *CacheStore {
	return &CacheStore{rdb: rdb}
}

func resolutionKey(userID string) string {
	return resolutionKeyPrefix + userID
}

// Read returns nil, nil when the user has no entry yet.
func (s *CacheStore) Read(ctx context.Context, userID string) (*model.ResolutionCacheEntry, error) {
	raw, err := s.rdb.Get(ctx, resolutionKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("read resolution cache: %w", err)
	}

	var entry model.ResolutionCacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("discarding corrupt resolution cache entry")
		return nil, nil
	}
	return &entry, nil
}

func (s *CacheStore) Write(ctx context.Context, entry model.ResolutionCacheEntry) error {
	if entry.UserID == "" {
		return errors.New("resolution cache entry has no user id")
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode resolution cache: %w", err)
	}
	if err := s.rdb.Set(ctx, resolutionKey(entry.UserID), raw, 0).Err(); err != nil {
		log.Error().Err(err).Str("user_id", entry.UserID).Msg("failed to write resolution cache")
		return fmt.Errorf("write resolution cache: %w", err)
	}
	return nil
}

// Ping reports whether the server is reachable.
func (s *CacheStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
