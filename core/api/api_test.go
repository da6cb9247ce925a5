package api_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbus/fluxbus/core/api"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("valid definition", func(t *testing.T) {
		t.Parallel()

		a, err := api.New("shop", 1,
			api.EventDef{Name: "order_placed", Parameters: []string{"order_id"}},
			api.EventDef{Name: "order_cancelled", Parameters: []string{"order_id", "reason"}},
		)
		require.NoError(t, err)
		assert.Equal(t, []string{"order_cancelled", "order_placed"}, a.EventNames())

		ev, err := a.Event("order_placed")
		require.NoError(t, err)
		assert.Equal(t, []string{"order_id"}, ev.Parameters)
	})

	t.Run("invalid api name", func(t *testing.T) {
		t.Parallel()

		_, err := api.New("shop..orders", 1)
		require.ErrorIs(t, err, api.ErrInvalidName)

		_, err = api.New("1shop", 1)
		require.ErrorIs(t, err, api.ErrInvalidName)
	})

	t.Run("invalid event name", func(t *testing.T) {
		t.Parallel()

		_, err := api.New("shop", 1, api.EventDef{Name: "order.placed"})
		require.ErrorIs(t, err, api.ErrInvalidName)
	})

	t.Run("duplicate event", func(t *testing.T) {
		t.Parallel()

		_, err := api.New("shop", 1,
			api.EventDef{Name: "order_placed"},
			api.EventDef{Name: "order_placed"},
		)
		require.ErrorIs(t, err, api.ErrDuplicateEvent)
	})

	t.Run("unknown event lookup", func(t *testing.T) {
		t.Parallel()

		a := api.MustNew("shop", 1, api.EventDef{Name: "order_placed"})
		_, err := a.Event("order_shipped")
		require.ErrorIs(t, err, api.ErrEventNotFound)
		assert.Contains(t, err.Error(), "order_shipped")
		assert.Contains(t, err.Error(), "wrong API")
	})
}

func TestValidateName(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"auth", "mycompany.auth", "a.b.c", "_private", "v2_api"} {
		assert.NoError(t, api.ValidateName(name, api.KindAPI), name)
	}
	for _, name := range []string{"", ".auth", "auth.", "my company", "a..b"} {
		assert.ErrorIs(t, api.ValidateName(name, api.KindAPI), api.ErrInvalidName, name)
	}

	assert.NoError(t, api.ValidateName("user_registered", api.KindEvent))
	assert.ErrorIs(t, api.ValidateName("user.registered", api.KindEvent), api.ErrInvalidName)
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	t.Run("register and get", func(t *testing.T) {
		t.Parallel()

		r := api.NewRegistry()
		a := api.MustNew("shop", 1, api.EventDef{Name: "order_placed"})
		require.NoError(t, r.Register(a))

		got, err := r.Get("shop")
		require.NoError(t, err)
		assert.Same(t, a, got)
	})

	t.Run("unknown api explains local authority", func(t *testing.T) {
		t.Parallel()

		r := api.NewRegistry()
		_, err := r.Get("payments")
		require.ErrorIs(t, err, api.ErrUnknownAPI)
		assert.Contains(t, err.Error(), "registered locally")
		assert.Contains(t, err.Error(), "remote APIs")
	})

	t.Run("duplicate registration", func(t *testing.T) {
		t.Parallel()

		r := api.NewRegistry()
		require.NoError(t, r.Register(api.MustNew("shop", 1)))
		require.ErrorIs(t, r.Register(api.MustNew("shop", 2)), api.ErrDuplicateAPI)
	})

	t.Run("all is sorted by name", func(t *testing.T) {
		t.Parallel()

		r := api.NewRegistry()
		require.NoError(t, r.Register(api.MustNew("zebra", 1)))
		require.NoError(t, r.Register(api.MustNew("auth", 1)))

		all := r.All()
		require.Len(t, all, 2)
		assert.Equal(t, "auth", all[0].Name)
		assert.Equal(t, "zebra", all[1].Name)
	})
}

func TestEventRef(t *testing.T) {
	t.Parallel()

	ref := api.EventRef{API: "shop", Event: "order_placed"}
	require.NoError(t, ref.Validate())
	assert.Equal(t, "shop.order_placed", ref.String())

	require.ErrorIs(t, api.EventRef{API: "shop", Event: "a.b"}.Validate(), api.ErrInvalidName)
	require.ErrorIs(t, api.EventRef{API: "", Event: "ok"}.Validate(), api.ErrInvalidName)
}
