package actor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/meridian/internal/shared/apperr"
)

type counter struct {
	value int
}

func countingLoader(loads *atomic.Int32) Loader[counter] {
	return func(context.Context, string) (*counter, error) {
		loads.Add(1)
		return &counter{}, nil
	}
}

func TestStore_SerializesCallsPerKey(t *testing.T) {
	var loads atomic.Int32
	s := NewStore(countingLoader(&loads), Config{}, nil)
	defer s.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Do(ctx, "u1", func(_ context.Context, c *counter) error {
				v := c.value
				time.Sleep(time.Microsecond)
				c.value = v + 1
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var got int
	require.NoError(t, s.Do(ctx, "u1", func(_ context.Context, c *counter) error {
		got = c.value
		return nil
	}))
	assert.Equal(t, 200, got)
	assert.Equal(t, int32(1), loads.Load())
}

func TestStore_KeysAreIsolated(t *testing.T) {
	var loads atomic.Int32
	s := NewStore(countingLoader(&loads), Config{}, nil)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Do(ctx, "a", func(_ context.Context, c *counter) error { c.value = 7; return nil }))
	require.NoError(t, s.Do(ctx, "b", func(_ context.Context, c *counter) error {
		assert.Equal(t, 0, c.value)
		return nil
	}))
	assert.Equal(t, []string{"a", "b"}, s.Keys())
}

func TestStore_DropsStateOnInternalFailure(t *testing.T) {
	var loads atomic.Int32
	s := NewStore(countingLoader(&loads), Config{}, nil)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Do(ctx, "u", func(_ context.Context, c *counter) error { c.value = 1; return nil }))

	err := s.Do(ctx, "u", func(_ context.Context, c *counter) error {
		c.value = 99
		return apperr.Conflict("busy")
	})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	require.NoError(t, s.Do(ctx, "u", func(_ context.Context, c *counter) error {
		assert.Equal(t, 99, c.value)
		return nil
	}))
	assert.Equal(t, int32(1), loads.Load())

	err = s.Do(ctx, "u", func(context.Context, *counter) error { return errors.New("disk gone") })
	require.Error(t, err)
	require.NoError(t, s.Do(ctx, "u", func(_ context.Context, c *counter) error {
		assert.Equal(t, 0, c.value)
		return nil
	}))
	assert.Equal(t, int32(2), loads.Load())
}

func TestStore_RecoversFromPanic(t *testing.T) {
	var loads atomic.Int32
	s := NewStore(countingLoader(&loads), Config{}, nil)
	defer s.Close()

	err := s.Do(context.Background(), "u", func(context.Context, *counter) error { panic("boom") })
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))

	assert.NoError(t, s.Do(context.Background(), "u", func(context.Context, *counter) error { return nil }))
	assert.Equal(t, int32(2), loads.Load())
}

func TestStore_LoaderFailureIsInternal(t *testing.T) {
	s := NewStore(func(context.Context, string) (*counter, error) {
		return nil, errors.New("db down")
	}, Config{}, nil)
	defer s.Close()

	err := s.Do(context.Background(), "u", func(context.Context, *counter) error { return nil })
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestStore_EvictsIdleActors(t *testing.T) {
	var loads atomic.Int32
	s := NewStore(countingLoader(&loads), Config{IdleTimeout: 20 * time.Millisecond}, nil)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Do(ctx, "u", func(context.Context, *counter) error { return nil }))
	assert.Eventually(t, func() bool { return len(s.Keys()) == 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Do(ctx, "u", func(context.Context, *counter) error { return nil }))
	assert.Equal(t, int32(2), loads.Load())
}

func TestStore_RefusesWorkAfterClose(t *testing.T) {
	var loads atomic.Int32
	s := NewStore(countingLoader(&loads), Config{}, nil)
	require.NoError(t, s.Do(context.Background(), "u", func(context.Context, *counter) error { return nil }))

	s.Close()
	s.Close()

	err := s.Do(context.Background(), "u", func(context.Context, *counter) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStore_HonoursCancelledContext(t *testing.T) {
	var loads atomic.Int32
	s := NewStore(countingLoader(&loads), Config{}, nil)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Do(ctx, "u", func(context.Context, *counter) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
