package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dis3z/reserve-api/internal/eventbus"
)

func receiveOne(t *testing.T, ch <-chan eventbus.Event) eventbus.Event {
	t.Helper()

	select {
	case ev, ok := <-ch:
		require.True(t, ok, "stream closed unexpectedly")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestBus_FilteredFanOut(t *testing.T) {
	bus := eventbus.New(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	venueA := bus.Subscribe(ctx, eventbus.TopicSlotUpdated, eventbus.Filter{VenueID: "venue-a"})
	venueB := bus.Subscribe(ctx, eventbus.TopicSlotUpdated, eventbus.Filter{VenueID: "venue-b"})
	all := bus.Subscribe(ctx, eventbus.TopicSlotUpdated, eventbus.Filter{})

	bus.Publish(eventbus.TopicSlotUpdated, eventbus.SlotUpdate{
		SlotID:            "slot-1",
		VenueID:           "venue-a",
		Status:            "BOOKED",
		RemainingCapacity: 0,
	})

	got := receiveOne(t, venueA).(eventbus.SlotUpdate)
	assert.Equal(t, "slot-1", got.SlotID)

	assert.Equal(t, "slot-1", receiveOne(t, all).(eventbus.SlotUpdate).SlotID)

	select {
	case ev := <-venueB:
		t.Fatalf("venue-b subscriber received foreign event %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_TopicIsolation(t *testing.T) {
	bus := eventbus.New(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bookings := bus.Subscribe(ctx, eventbus.TopicBookingUpdated, eventbus.Filter{UserID: "user-1"})

	bus.Publish(eventbus.TopicSlotUpdated, eventbus.SlotUpdate{SlotID: "slot-1", VenueID: "venue-a"})
	bus.Publish(eventbus.TopicBookingUpdated, eventbus.BookingUpdate{
		BookingID:        "booking-1",
		Status:           "CONFIRMED",
		ConfirmationCode: "RSV-0A1B2C3D",
		UserID:           "user-1",
	})

	got := receiveOne(t, bookings).(eventbus.BookingUpdate)
	assert.Equal(t, "booking-1", got.BookingID)
	assert.Equal(t, "RSV-0A1B2C3D", got.ConfirmationCode)
}

func TestBus_BookingFilterByUser(t *testing.T) {
	bus := eventbus.New(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	other := bus.Subscribe(ctx, eventbus.TopicBookingUpdated, eventbus.Filter{UserID: "user-2"})

	bus.Publish(eventbus.TopicBookingUpdated, eventbus.BookingUpdate{BookingID: "booking-1", UserID: "user-1"})

	select {
	case ev := <-other:
		t.Fatalf("subscriber for another user received %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_OverflowClosesStream(t *testing.T) {
	bus := eventbus.New(2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slow := bus.Subscribe(ctx, eventbus.TopicSlotUpdated, eventbus.Filter{})

	for i := 0; i < 3; i++ {
		bus.Publish(eventbus.TopicSlotUpdated, eventbus.SlotUpdate{SlotID: "slot-1", VenueID: "venue-a"})
	}

	// Two buffered events drain, then the stream must be closed.
	received := 0
	for range slow {
		received++
	}

	assert.Equal(t, 2, received)
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestBus_CancelUnsubscribes(t *testing.T) {
	bus := eventbus.New(8)
	ctx, cancel := context.WithCancel(context.Background())

	ch := bus.Subscribe(ctx, eventbus.TopicSlotUpdated, eventbus.Filter{})
	require.Equal(t, 1, bus.SubscriberCount())

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "expected closed stream after cancel")
	case <-time.After(time.Second):
		t.Fatal("stream not closed after cancel")
	}

	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestBus_PublishNeverBlocks(t *testing.T) {
	bus := eventbus.New(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus.Subscribe(ctx, eventbus.TopicSlotUpdated, eventbus.Filter{})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(eventbus.TopicSlotUpdated, eventbus.SlotUpdate{SlotID: "slot-1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
