//go:build integration

package kvstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"

	"paykit/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.Reset(context.Background()))
}

func (s *RedisStoreSuite) TestContract() {
	runStoreContract(s.T(), New(NewRedis(s.redis.Client.Client, "paykit")))
}

func (s *RedisStoreSuite) TestClearOnlyTouchesNamespace() {
	ctx := context.Background()
	mine := New(NewRedis(s.redis.Client.Client, "mine"))
	other := New(NewRedis(s.redis.Client.Client, "other"))

	for i := range 250 {
		s.Require().NoError(mine.SaveLong(ctx, fmt.Sprintf("k%03d", i), int64(i)))
	}
	s.Require().NoError(other.SaveString(ctx, KeyDeviceID, "keep-me"))

	s.Require().NoError(mine.Clear(ctx))

	keys, err := s.redis.Client.Keys(ctx, "mine:*").Result()
	s.Require().NoError(err)
	s.Empty(keys)

	v, found, err := other.GetString(ctx, KeyDeviceID)
	s.Require().NoError(err)
	s.True(found)
	s.Equal("keep-me", v)
}
