package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/httpusers/pkg/async"
)

func TestBus_InlineDelivery(t *testing.T) {
	logger, _ := test.NewNullLogger()
	bus := NewBus(logger, nil)
	rec := &Recorder{}
	bus.Subscribe(rec)

	bus.Emit(context.Background(), Event{Resource: ResourceUser, Action: ActionCreate, ID: "charlie"})

	events := rec.Events()
	require.Len(t, events, 1)
	assert.False(t, events[0].Time.IsZero())
	assert.Equal(t, []string{"user.create"}, rec.Actions())
}

func TestBus_SubscriberErrorIsLogged(t *testing.T) {
	logger, hook := test.NewNullLogger()
	bus := NewBus(logger, nil)
	rec := &Recorder{}
	bus.Subscribe(SubscriberFunc(func(context.Context, Event) error { return errors.New("down") }))
	bus.Subscribe(rec)

	bus.Emit(context.Background(), Event{Resource: ResourceOrganization, Action: ActionDestroy})

	assert.Len(t, rec.Events(), 1, "later subscribers still run")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestBus_AsyncDelivery(t *testing.T) {
	logger, _ := test.NewNullLogger()
	runner := async.NewRunner(logger)
	bus := NewBus(logger, runner)
	rec := &Recorder{}
	bus.Subscribe(rec)

	for i := 0; i < 5; i++ {
		bus.Emit(context.Background(), Event{Resource: ResourceUser, Action: ActionUpdate})
	}

	require.True(t, runner.Wait(time.Second))
	assert.Len(t, rec.Events(), 5)
}

func TestLogSubscriber(t *testing.T) {
	logger, hook := test.NewNullLogger()
	s := NewLogSubscriber(logger)

	require.NoError(t, s.Handle(context.Background(), Event{
		Resource: ResourceUser, Action: ActionConfirm, ID: "charlie", Actor: "admin",
		Data: map[string]any{"status": "active"},
	}))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "[user, confirm]", entry.Message)
	assert.Equal(t, "charlie", entry.Data["id"])
	assert.Equal(t, "admin", entry.Data["actor"])
	assert.Equal(t, "active", entry.Data["data.status"])
}

func TestNop(t *testing.T) {
	var e Emitter = Nop{}
	e.Emit(context.Background(), Event{})
}
