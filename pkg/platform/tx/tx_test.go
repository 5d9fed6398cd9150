package tx

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAfterCommit(t *testing.T) {
	t.Run("runs immediately outside a unit of work", func(t *testing.T) {
		ran := false
		AfterCommit(context.Background(), func(context.Context) { ran = true })
		assert.True(t, ran)
	})

	t.Run("runs in order once the unit commits", func(t *testing.T) {
		var order []string
		err := NoopRunner{}.RunInTx(context.Background(), func(ctx context.Context) error {
			AfterCommit(ctx, func(context.Context) { order = append(order, "first") })
			AfterCommit(ctx, func(context.Context) { order = append(order, "second") })
			assert.Empty(t, order)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"first", "second"}, order)
	})

	t.Run("dropped when the unit fails", func(t *testing.T) {
		ran := false
		err := NoopRunner{}.RunInTx(context.Background(), func(ctx context.Context) error {
			AfterCommit(ctx, func(context.Context) { ran = true })
			return errors.New("replace failed")
		})
		require.Error(t, err)
		assert.False(t, ran)
	})

	t.Run("nested units defer to the outermost commit", func(t *testing.T) {
		ran := false
		err := NoopRunner{}.RunInTx(context.Background(), func(ctx context.Context) error {
			if err := (NoopRunner{}).RunInTx(ctx, func(ctx context.Context) error {
				AfterCommit(ctx, func(context.Context) { ran = true })
				return nil
			}); err != nil {
				return err
			}
			assert.False(t, ran, "inner commit must not fire hooks")
			return nil
		})
		require.NoError(t, err)
		assert.True(t, ran)
	})

	t.Run("hooks outlive a canceled request context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		var hookErr error
		err := NoopRunner{}.RunInTx(ctx, func(ctx context.Context) error {
			AfterCommit(ctx, func(ctx context.Context) { hookErr = ctx.Err() })
			cancel()
			return nil
		})
		require.NoError(t, err)
		assert.NoError(t, hookErr)
	})
}
