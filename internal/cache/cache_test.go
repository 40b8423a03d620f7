package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilClientIsAlwaysMiss(t *testing.T) {
	c := New(nil)
	require.Nil(t, c)
	ctx := context.Background()

	// Nil receiver must be safe for every operation.
	val, err := c.Get(ctx, "k")
	assert.NoError(t, err)
	assert.Nil(t, val)
	c.Set(ctx, "k", []byte("v"), time.Minute)
	c.Delete(ctx, "k")
}

func TestUnreachableRedisDegradesToMiss(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1", // nothing listens here
		DialTimeout: 100 * time.Millisecond,
	})
	c := New(rdb)
	ctx := context.Background()

	val, err := c.Get(ctx, "k")
	assert.NoError(t, err)
	assert.Nil(t, val)
	c.Set(ctx, "k", []byte("v"), time.Minute)
	c.Delete(ctx, "k")
}
