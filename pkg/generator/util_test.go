package generator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shouni/reunion-image-kit/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedUtils(t *testing.T) {
	t.Run("seedFromOptions: 整数と整数値の float を受け付けるのだ", func(t *testing.T) {
		assert.Equal(t, int64(7), *seedFromOptions(map[string]any{"seed": 7}))
		assert.Equal(t, int64(42), *seedFromOptions(map[string]any{"seed": float64(42)}))
		assert.Nil(t, seedFromOptions(map[string]any{"seed": 1.5}))
		assert.Nil(t, seedFromOptions(map[string]any{"seed": "1"}))
		assert.Nil(t, seedFromOptions(nil))
	})
}

func TestAwait(t *testing.T) {
	t.Run("期限内に終われば結果を返すのだ", func(t *testing.T) {
		got, err := await(context.Background(), func() (int, error) { return 3, nil })
		require.NoError(t, err)
		assert.Equal(t, 3, got)
	})

	t.Run("戻らない関数でも期限で打ち切るのだ", func(t *testing.T) {
		block := make(chan struct{})
		defer close(block)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := await(ctx, func() (int, error) {
			<-block
			return 0, nil
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestTransportError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := transportError(ctx, "op", time.Second, context.Canceled)
	assert.True(t, errors.Is(err, domain.ErrTransport))
	assert.Contains(t, err.Error(), "canceled")

	err = transportError(context.Background(), "op", time.Second, errors.New("connection refused"))
	assert.True(t, errors.Is(err, domain.ErrTransport))
	assert.Contains(t, err.Error(), "connection refused")
}
