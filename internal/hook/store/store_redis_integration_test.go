//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/suite"

	"srwa/internal/hook/models"
	"srwa/internal/hook/store"
	"srwa/pkg/platform/sentinel"
	"srwa/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *store.RedisCache
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.cache = store.NewRedisCache(s.redis.Client, 5*time.Minute)
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisCacheSuite) TestMintStateRoundTrip() {
	ctx := context.Background()
	hookProgram := solana.NewWallet().PublicKey()
	state := &models.MintState{
		Mint:                solana.NewWallet().PublicKey(),
		Decimals:            6,
		HasHook:             true,
		HookProgram:         hookProgram,
		MetaListAddress:     solana.NewWallet().PublicKey(),
		MetaListInitialized: true,
	}
	s.Require().NoError(s.cache.SaveMintState(ctx, state))

	found, err := s.cache.FindMintState(ctx, state.Mint)
	s.Require().NoError(err)
	s.Equal(*state, *found)

	ttl, err := s.redis.Client.TTL(ctx, "srwa:mint:"+state.Mint.String()).Result()
	s.Require().NoError(err)
	s.Greater(ttl, 4*time.Minute)
}

func (s *RedisCacheSuite) TestMissAndExpiry() {
	ctx := context.Background()
	short := store.NewRedisCache(s.redis.Client, 50*time.Millisecond)
	mint := solana.NewWallet().PublicKey()

	_, err := short.FindMintState(ctx, mint)
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(short.SaveMintState(ctx, &models.MintState{Mint: mint}))
	time.Sleep(100 * time.Millisecond)
	_, err = short.FindMintState(ctx, mint)
	s.ErrorIs(err, sentinel.ErrNotFound)
}
