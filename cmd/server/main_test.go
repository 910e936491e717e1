package main

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisRepo "github.com/iho/splitledger/internal/adapter/repository/redis"
	"github.com/iho/splitledger/internal/infrastructure/eventpublisher"
	"github.com/iho/splitledger/internal/infrastructure/redis"
)

func TestServerAddr(t *testing.T) {
	assert.Equal(t, ":8080", serverAddr("8080"))
}

func TestIgnoreCanceled(t *testing.T) {
	assert.NoError(t, ignoreCanceled(context.Canceled))
	assert.NoError(t, ignoreCanceled(nil))

	boom := errors.New("boom")
	assert.ErrorIs(t, ignoreCanceled(boom), boom)
}

func TestConnectRedisDisabled(t *testing.T) {
	deps := connectRedis(context.Background(), redis.Config{}, zerolog.Nop())
	defer deps.close()

	assert.IsType(t, &eventpublisher.LogPublisher{}, deps.publisher)
	assert.Nil(t, deps.store)
	assert.Nil(t, deps.pinger)
}

func TestConnectRedisUnreachableFallsBack(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	deps := connectRedis(context.Background(), redis.Config{URL: "redis://" + addr, PingAttempts: 1}, zerolog.Nop())
	defer deps.close()

	assert.IsType(t, &eventpublisher.LogPublisher{}, deps.publisher)
	assert.Nil(t, deps.store)
}

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	deps := connectRedis(context.Background(), redis.Config{URL: "redis://" + mr.Addr()}, zerolog.Nop())
	defer deps.close()

	assert.IsType(t, &redisRepo.Broadcaster{}, deps.publisher)
	require.NotNil(t, deps.store)
	require.NotNil(t, deps.pinger)
	assert.NoError(t, deps.pinger.Ping(context.Background()))
}
