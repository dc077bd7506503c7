package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherInvokesAllHandlersAndJoinsErrors(t *testing.T) {
	dispatcher := NewInMemoryDispatcher()
	boom := errors.New("boom")

	var calls []string
	dispatcher.Subscribe(EventSLABreached, func(ctx context.Context, e Event) error {
		calls = append(calls, "first")
		return boom
	})
	dispatcher.Subscribe(EventSLABreached, func(ctx context.Context, e Event) error {
		calls = append(calls, "second")
		return nil
	})
	dispatcher.Subscribe(EventSLAWarning, func(ctx context.Context, e Event) error {
		calls = append(calls, "warning")
		return nil
	})

	err := dispatcher.Publish(context.Background(), NewEvent(EventSLABreached, "t-1", SystemActor, time.Now(), nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestDispatcherWithoutListeners(t *testing.T) {
	dispatcher := NewInMemoryDispatcher()
	assert.NoError(t, dispatcher.Publish(context.Background(), Event{Type: EventSLAPaused}))
}

func TestNewEventAssignsUniqueIDs(t *testing.T) {
	at := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	a := NewEvent(EventSLAStarted, "t-1", SystemActor, at, nil)
	b := NewEvent(EventSLAStarted, "t-1", SystemActor, at, nil)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, at, a.Timestamp)
}

func TestDispatcherIsolatesPanickingSubscriber(t *testing.T) {
	dispatcher := NewInMemoryDispatcher()
	delivered := false
	dispatcher.Subscribe(EventSLAWarning, func(ctx context.Context, e Event) error {
		panic("template missing")
	})
	dispatcher.Subscribe(EventSLAWarning, func(ctx context.Context, e Event) error {
		delivered = true
		return nil
	})

	err := dispatcher.Publish(context.Background(), Event{Type: EventSLAWarning})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHandlerPanic)
	assert.True(t, delivered)
}
