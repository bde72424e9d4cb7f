package envelope

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingPayload struct {
	Message string
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()

	err := r.Register(HandlerEntry{
		OpName:      "Ping",
		Class:       CommandWithResult,
		PayloadType: reflect.TypeOf(pingPayload{}),
		ResultFn: func(ctx context.Context, tenantID string, payload any) (any, error) {
			return payload, nil
		},
	})
	require.NoError(t, err)

	entry, ok := r.Lookup("Ping")
	assert.True(t, ok)
	assert.Equal(t, CommandWithResult, entry.Class)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	r := NewRegistry()
	entry := HandlerEntry{
		OpName:      "Ping",
		Class:       CommandVoid,
		PayloadType: reflect.TypeOf(pingPayload{}),
		CommandVoidFn: func(ctx context.Context, tenantID string, payload any) error {
			return nil
		},
	}

	require.NoError(t, r.Register(entry))

	err := r.Register(entry)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate registration")
}

func TestRegistry_MissingHandlerFunc(t *testing.T) {
	r := NewRegistry()

	err := r.Register(HandlerEntry{
		OpName:      "Ping",
		Class:       CommandWithResult,
		PayloadType: reflect.TypeOf(pingPayload{}),
	})
	assert.Error(t, err)
}

func TestRegistry_LookupMissing(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup("DoesNotExist")
	assert.False(t, ok)
}
