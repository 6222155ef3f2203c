package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_DeliversInRegistrationOrder(t *testing.T) {
	b := NewBus()
	var order []string

	b.Subscribe("intent.created", func(e Event) { order = append(order, "first") })
	b.Subscribe("intent.created", func(e Event) { order = append(order, "second") })

	b.Publish(Event{Topic: "intent.created", TenantID: 1})

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestBus_PanickingHandlerDoesNotStopLaterHandlers(t *testing.T) {
	b := NewBus()
	secondRan := false

	b.Subscribe("x", func(e Event) { panic("boom") })
	b.Subscribe("x", func(e Event) { secondRan = true })

	assert.NotPanics(t, func() { b.Publish(Event{Topic: "x"}) })
	assert.True(t, secondRan)
}

func TestBus_OnlyMatchingTopicFires(t *testing.T) {
	b := NewBus()
	fired := false
	b.Subscribe("a", func(e Event) { fired = true })
	b.Publish(Event{Topic: "b"})
	assert.False(t, fired)
}

func TestSink_AppendAndListByTenantOrdersOldestFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	sink, err := OpenSink(path)
	require.NoError(t, err)
	defer sink.Close()

	base := time.Unix(1700000000, 0)
	require.NoError(t, sink.Append(Event{Topic: "intent.created", TenantID: 1, Timestamp: base, Payload: map[string]any{"n": float64(1)}}))
	require.NoError(t, sink.Append(Event{Topic: "intent.executed", TenantID: 1, Timestamp: base.Add(time.Second), Payload: map[string]any{"n": float64(2)}}))
	require.NoError(t, sink.Append(Event{Topic: "intent.created", TenantID: 2, Timestamp: base, Payload: map[string]any{"n": float64(3)}}))

	events, err := sink.ListByTenant(1)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "intent.created", events[0].Topic)
	assert.Equal(t, "intent.executed", events[1].Topic)
}
