//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bizreg/internal/enrichment/cache"
	"bizreg/internal/enrichment/models"
	"bizreg/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *cache.Redis[models.Detail]
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
	s.cache = cache.NewRedis[models.Detail](s.redis.Client, "detail", time.Minute)
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisCacheSuite) TestRoundTrip() {
	ctx := context.Background()
	founded := time.Date(1998, 4, 1, 0, 0, 0, 0, time.UTC)
	in := models.Detail{Identifier: "00123456", FoundedOn: &founded, SizeClass: "10-19"}

	s.Require().NoError(s.cache.Set(ctx, in.Identifier, in))

	got, err := s.cache.Get(ctx, in.Identifier)
	s.Require().NoError(err)
	s.Equal(in.SizeClass, got.SizeClass)
	s.Require().NotNil(got.FoundedOn)
	s.True(founded.Equal(*got.FoundedOn))

	ttl, err := s.redis.Client.TTL(ctx, "detail:00123456").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
}

func (s *RedisCacheSuite) TestMiss() {
	_, err := s.cache.Get(context.Background(), "00000000")
	s.ErrorIs(err, cache.ErrMiss)
}

func (s *RedisCacheSuite) TestEvictAndPurgeStayInNamespace() {
	ctx := context.Background()
	other := cache.NewRedis[string](s.redis.Client, "other", time.Minute)
	s.Require().NoError(other.Set(ctx, "k", "v"))
	s.Require().NoError(s.cache.Set(ctx, "a", models.Detail{Identifier: "a"}))
	s.Require().NoError(s.cache.Set(ctx, "b", models.Detail{Identifier: "b"}))

	s.Require().NoError(s.cache.Evict(ctx, "a"))
	_, err := s.cache.Get(ctx, "a")
	s.ErrorIs(err, cache.ErrMiss)

	s.Require().NoError(s.cache.Purge(ctx))
	_, err = s.cache.Get(ctx, "b")
	s.ErrorIs(err, cache.ErrMiss)

	v, err := other.Get(ctx, "k")
	s.Require().NoError(err)
	s.Equal("v", v)
}
