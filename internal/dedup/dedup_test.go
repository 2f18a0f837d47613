package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/field-ops-assistant/pkg/logger"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestMemory_IsDuplicate(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	d := NewMemory(5*time.Minute, WithClock(clock.Now))

	assert.False(t, d.IsDuplicate(ctx, "evt-1"))
	assert.True(t, d.IsDuplicate(ctx, "evt-1"))

	clock.Advance(4 * time.Minute)
	assert.True(t, d.IsDuplicate(ctx, "evt-1"), "still inside window")

	clock.Advance(2 * time.Minute)
	assert.False(t, d.IsDuplicate(ctx, "evt-1"), "window elapsed")
	assert.True(t, d.IsDuplicate(ctx, "evt-1"))
}

func TestMemory_IndependentIDs(t *testing.T) {
	ctx := context.Background()
	d := NewMemory(time.Minute)

	assert.False(t, d.IsDuplicate(ctx, "a"))
	assert.False(t, d.IsDuplicate(ctx, "b"))
	assert.True(t, d.IsDuplicate(ctx, "a"))
	assert.Equal(t, 2, d.Len())
}

func TestMemory_Sweep(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Now()}
	d := NewMemory(time.Minute, WithClock(clock.Now))

	d.IsDuplicate(ctx, "a")
	clock.Advance(30 * time.Second)
	d.IsDuplicate(ctx, "b")
	clock.Advance(45 * time.Second)

	assert.Equal(t, 1, d.Sweep(ctx))
	assert.Equal(t, 1, d.Len())
}

func TestMemory_Concurrent(t *testing.T) {
	ctx := context.Background()
	d := NewMemory(time.Minute)

	results := make(chan bool, 50)
	for i := 0; i < 50; i++ {
		go func() {
			results <- d.IsDuplicate(ctx, "same")
		}()
	}

	firsts := 0
	for i := 0; i < 50; i++ {
		if !<-results {
			firsts++
		}
	}
	assert.Equal(t, 1, firsts)
}

func TestRedis_IsDuplicate(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	d := NewRedis(client, 5*time.Minute, logger.NewNop())
	ctx := context.Background()

	assert.False(t, d.IsDuplicate(ctx, "evt-9"))
	assert.True(t, d.IsDuplicate(ctx, "evt-9"))

	mr.FastForward(6 * time.Minute)
	assert.False(t, d.IsDuplicate(ctx, "evt-9"))
}

func TestRedis_FailsOpen(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	d := NewRedis(client, time.Minute, logger.NewNop())
	assert.False(t, d.IsDuplicate(context.Background(), "evt"))
	assert.False(t, d.IsDuplicate(context.Background(), "evt"))
}
