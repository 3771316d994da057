package frame

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherRoutesByType(t *testing.T) {
	d := NewDispatcher[*string]()

	var handled string
	d.RegisterFunc("tasks.create", func(ctx context.Context, src *string, f *Frame) error {
		handled = *src + ":" + f.Type
		return nil
	})

	src := "conn-1"
	f, err := New("tasks.create", map[string]any{"title": "x"})
	require.NoError(t, err)
	require.NoError(t, d.Dispatch(context.Background(), &src, f))
	assert.Equal(t, "conn-1:tasks.create", handled)
}

func TestDispatcherDefaultHandler(t *testing.T) {
	d := NewDispatcher[int]()

	var fallthroughType string
	d.Default(func(ctx context.Context, src int, f *Frame) error {
		fallthroughType = f.Type
		return nil
	})

	f, err := New("custom.frame", map[string]any{})
	require.NoError(t, err)
	require.NoError(t, d.Dispatch(context.Background(), 0, f))
	assert.Equal(t, "custom.frame", fallthroughType)
}

func TestDispatcherNoHandlerIsNoOp(t *testing.T) {
	d := NewDispatcher[int]()
	f, err := New("unknown", map[string]any{})
	require.NoError(t, err)
	assert.NoError(t, d.Dispatch(context.Background(), 0, f))
}

func TestDispatcherHasHandler(t *testing.T) {
	d := NewDispatcher[int]()
	d.RegisterFunc("ping", func(ctx context.Context, src int, f *Frame) error { return nil })
	assert.True(t, d.HasHandler("ping"))
	assert.False(t, d.HasHandler("pong"))
}
