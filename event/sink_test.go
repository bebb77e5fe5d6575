package event_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outpostlabs/sdamcore/address"
	"github.com/outpostlabs/sdamcore/event"
)

func TestSink_NilSink_NeverPanics(t *testing.T) {
	t.Parallel()

	var s *event.Sink
	require.NotPanics(t, func() {
		s.PublishTopologyOpening(&event.TopologyOpeningEvent{TopologyID: "t1"})
		s.PublishServerClosed(&event.ServerClosedEvent{Address: "a:27017"})
	})
}

func TestSink_UnsetCallback_IsSkipped(t *testing.T) {
	t.Parallel()

	s := &event.Sink{}
	require.NotPanics(t, func() {
		s.PublishTopologyClosed(&event.TopologyClosedEvent{TopologyID: "t1"})
	})
}

func TestSink_InvokesSetCallback(t *testing.T) {
	t.Parallel()

	var got *event.ServerOpeningEvent
	s := &event.Sink{
		ServerOpening: func(e *event.ServerOpeningEvent) { got = e },
	}

	s.PublishServerOpening(&event.ServerOpeningEvent{TopologyID: "t1", Address: "a:27017"})

	require.NotNil(t, got)
	require.Equal(t, address.Address("a:27017"), got.Address)
}

func TestSink_PanicInCallback_IsRecovered(t *testing.T) {
	t.Parallel()

	s := &event.Sink{
		ServerClosed: func(e *event.ServerClosedEvent) { panic("boom") },
	}

	require.NotPanics(t, func() {
		s.PublishServerClosed(&event.ServerClosedEvent{Address: "a:27017"})
	})
}
