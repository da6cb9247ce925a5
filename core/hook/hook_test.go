package hook_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbus/fluxbus/core/hook"
	"github.com/fluxbus/fluxbus/core/message"
)

func TestRegistryExecute(t *testing.T) {
	t.Parallel()

	t.Run("runs hooks in registration order", func(t *testing.T) {
		t.Parallel()

		r := hook.NewRegistry()
		var order []int
		r.Register(hook.BeforeEventSent, func(context.Context, *message.EventMessage) error {
			order = append(order, 1)
			return nil
		})
		r.Register(hook.BeforeEventSent, func(context.Context, *message.EventMessage) error {
			order = append(order, 2)
			return nil
		})

		msg := message.NewEventMessage("shop", "order_placed", 1, nil)
		require.NoError(t, r.Execute(context.Background(), hook.BeforeEventSent, msg))
		assert.Equal(t, []int{1, 2}, order)
	})

	t.Run("later hooks run even when an earlier one fails", func(t *testing.T) {
		t.Parallel()

		r := hook.NewRegistry()
		errFirst := errors.New("first failed")
		errSecond := errors.New("second failed")
		var ran bool
		r.Register(hook.AfterEventSent, func(context.Context, *message.EventMessage) error {
			return errFirst
		})
		r.Register(hook.AfterEventSent, func(context.Context, *message.EventMessage) error {
			ran = true
			return errSecond
		})

		err := r.Execute(context.Background(), hook.AfterEventSent, nil)
		assert.True(t, ran)
		require.ErrorIs(t, err, errFirst)
		require.ErrorIs(t, err, errSecond)
	})

	t.Run("point with no hooks is a no-op", func(t *testing.T) {
		t.Parallel()

		r := hook.NewRegistry()
		require.NoError(t, r.Execute(context.Background(), hook.BeforeEventExecution, nil))
	})

	t.Run("nil hooks are ignored", func(t *testing.T) {
		t.Parallel()

		r := hook.NewRegistry()
		r.Register(hook.AfterEventExecution, nil)
		require.NoError(t, r.Execute(context.Background(), hook.AfterEventExecution, nil))
	})
}
