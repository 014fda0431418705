package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDispatcher_InvokesHandlersInOrderAndSwallowsFailures(t *testing.T) {
	d := NewInMemoryDispatcher(zap.NewNop())

	var calls []string
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls = append(calls, "first")
		return errors.New("boom")
	})
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls = append(calls, "second")
		panic("handler bug")
	})
	d.Subscribe(EventTicketCreated, func(_ context.Context, e Event) error {
		calls = append(calls, "third:"+e.TicketID)
		return nil
	})
	d.Subscribe(EventCommentAdded, func(context.Context, Event) error {
		calls = append(calls, "unrelated")
		return nil
	})

	err := d.Publish(context.Background(), NewEvent(EventTicketCreated, "t-1", Actor{UserID: "u"}, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third:t-1"}, calls)
}

func TestNewEvent_AssignsIdentity(t *testing.T) {
	a := NewEvent(EventTicketUpdated, "t", Actor{}, nil)
	b := NewEvent(EventTicketUpdated, "t", Actor{}, nil)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.Timestamp.IsZero())
}
