package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish_RunsAllHandlersAndJoinsErrors(t *testing.T) {
	d := NewInMemoryDispatcher()
	boom := errors.New("boom")

	var calls []string
	d.Subscribe(EventPasswordChanged, func(context.Context, Event) error {
		calls = append(calls, "first")
		return boom
	})
	d.Subscribe(EventPasswordChanged, func(context.Context, Event) error {
		calls = append(calls, "second")
		return nil
	})
	d.Subscribe(EventEmailVerified, func(context.Context, Event) error {
		calls = append(calls, "other")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventPasswordChanged, AccountID: "acc-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestPublish_RecoversPanickingHandler(t *testing.T) {
	d := NewInMemoryDispatcher()
	reached := false
	d.Subscribe(EventPasswordReset, func(context.Context, Event) error {
		panic("handler bug")
	})
	d.Subscribe(EventPasswordReset, func(context.Context, Event) error {
		reached = true
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventPasswordReset})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler bug")
	assert.True(t, reached)
}

func TestPublish_NoSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher()
	assert.NoError(t, d.Publish(context.Background(), Event{Type: EventAccountRegistered}))
}
