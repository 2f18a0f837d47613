package state

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/field-ops-assistant/internal/model"
)

var errRejected = errors.New("rejected")

func sampleState(id string) *model.ConversationState {
	return &model.ConversationState{
		ConversationID: id,
		Revision:       "rev-1",
		Phase:          model.PhaseAwaitingConfirmation,
		Operation:      model.OpLogSupport,
		Data:           model.Data{"site_id": "ASM-TR-01", "status": "Open"},
		InitiatingUser: "U1",
		Language:       model.LangTR,
	}
}

// storeContract runs the behaviour shared by every Store implementation.
func storeContract(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		_, err := s.Get(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("put then get", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, sampleState("c1")))
		got, err := s.Get(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, model.OpLogSupport, got.Operation)
		assert.Equal(t, "ASM-TR-01", got.Data.String("site_id"))
		assert.False(t, got.CreatedAt.IsZero())
	})

	t.Run("last writer wins", func(t *testing.T) {
		st := sampleState("c2")
		require.NoError(t, s.Put(ctx, st))
		st.Phase = model.PhaseAwaitingMissingFields
		require.NoError(t, s.Put(ctx, st))

		got, err := s.Get(ctx, "c2")
		require.NoError(t, err)
		assert.Equal(t, model.PhaseAwaitingMissingFields, got.Phase)
	})

	t.Run("rejected claim leaves state", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, sampleState("c3")))
		_, err := s.Claim(ctx, "c3", func(*model.ConversationState) error { return errRejected })
		assert.ErrorIs(t, err, errRejected)

		_, err = s.Get(ctx, "c3")
		assert.NoError(t, err)
	})

	t.Run("claim removes state once", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, sampleState("c4")))

		got, err := s.Claim(ctx, "c4", nil)
		require.NoError(t, err)
		assert.Equal(t, "U1", got.InitiatingUser)

		_, err = s.Claim(ctx, "c4", nil)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("concurrent claims", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, sampleState("c5")))

		var wins int32
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.Claim(ctx, "c5", nil); err == nil {
					atomic.AddInt32(&wins, 1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, sampleState("c6")))
		require.NoError(t, s.Delete(ctx, "c6"))
		_, err := s.Get(ctx, "c6")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, s.Delete(ctx, "c6"))
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore(time.Hour, nil))
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	s := NewMemoryStore(time.Hour, func() time.Time { return now })

	require.NoError(t, s.Put(ctx, sampleState("c1")))
	now = now.Add(30 * time.Minute)
	require.NoError(t, s.Put(ctx, sampleState("c2")))

	now = now.Add(40 * time.Minute)
	_, err := s.Get(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Claim(ctx, "c1", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	removed, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = s.Get(ctx, "c2")
	assert.NoError(t, err)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour, nil)
	st := sampleState("c1")
	require.NoError(t, s.Put(ctx, st))

	st.Data["site_id"] = "MIG-TR-01"
	got, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "ASM-TR-01", got.Data.String("site_id"))
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	storeContract(t, NewRedisStore(client, time.Hour))
}

func TestRedisStore_Expiry(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	s := NewRedisStore(client, time.Hour)
	require.NoError(t, s.Put(ctx, sampleState("c1")))

	mr.FastForward(61 * time.Minute)
	_, err = s.Get(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)
}
