package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"

	"srwa/internal/hook/models"
	"srwa/pkg/platform/sentinel"
)

const mintStateKeyPrefix = "srwa:mint:"

// RedisCache shares mint states across instances. Entries are JSON with a
// per-key expiry.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) SaveMintState(ctx context.Context, state *models.MintState) error {
	if state == nil {
		return nil
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode mint state: %w", err)
	}
	if err := c.client.Set(ctx, mintStateKeyPrefix+state.Mint.String(), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("save mint state: %w", err)
	}
	return nil
}

func (c *RedisCache) FindMintState(ctx context.Context, mint solana.PublicKey) (*models.MintState, error) {
	payload, err := c.client.Get(ctx, mintStateKeyPrefix+mint.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("mint state %s: %w", mint, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find mint state: %w", err)
	}
	var state models.MintState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("decode mint state: %w", err)
	}
	return &state, nil
}
