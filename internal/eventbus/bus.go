package eventbus

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

type Topic string

const (
	TopicSlotUpdated    Topic = "SLOT_UPDATED"
	TopicBookingUpdated Topic = "BOOKING_UPDATED"
)

const (
	// DefaultBufferSize bounds each subscriber's in-flight events. A
	// subscriber that falls this far behind gets its stream closed.
	DefaultBufferSize = 64
)

// SlotUpdate notifies subscribers that a slot's availability changed.
type SlotUpdate struct {
	SlotID            string `json:"slotId"`
	VenueID           string `json:"venueId"`
	Status            string `json:"status"`
	RemainingCapacity int    `json:"remainingCapacity"`
}

// BookingUpdate notifies a user's subscribers that a booking changed state.
type BookingUpdate struct {
	BookingID        string `json:"bookingId"`
	Status           string `json:"status"`
	ConfirmationCode string `json:"confirmationCode"`
	UserID           string `json:"userId"`
}

// Event is anything publishable on the bus.
type Event interface {
	matches(f Filter) bool
}

// Filter narrows a subscription. Zero values match everything on the topic.
type Filter struct {
	VenueID string
	UserID  string
}

func (u SlotUpdate) matches(f Filter) bool {
	return f.VenueID == "" || f.VenueID == u.VenueID
}

func (u BookingUpdate) matches(f Filter) bool {
	return f.UserID == "" || f.UserID == u.UserID
}

type subscriber struct {
	topic  Topic
	filter Filter
	ch     chan Event
	closed bool
}

// Bus is an in-process publish/subscribe fan-out. Delivery is at-most-once
// and never blocks the publisher: durable truth lives in storage, so a lost
// event is always refetchable.
type Bus struct {
	mu         sync.Mutex
	nextID     int
	subs       map[int]*subscriber
	bufferSize int
}

func New(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	return &Bus{
		subs:       make(map[int]*subscriber),
		bufferSize: bufferSize,
	}
}

// Subscribe returns a stream of events on topic matching the filter. The
// stream is closed when ctx is cancelled, or when the subscriber overflows
// its buffer and is dropped.
func (b *Bus) Subscribe(ctx context.Context, topic Topic, f Filter) <-chan Event {
	b.mu.Lock()

	id := b.nextID
	b.nextID++

	sub := &subscriber{
		topic:  topic,
		filter: f,
		ch:     make(chan Event, b.bufferSize),
	}
	b.subs[id] = sub

	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.drop(id)
	}()

	return sub.ch
}

// Publish fans the event out to every matching subscriber. A subscriber
// whose buffer is full is dropped and its stream closed.
func (b *Bus) Publish(topic Topic, event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subs {
		if sub.closed || sub.topic != topic || !event.matches(sub.filter) {
			continue
		}

		select {
		case sub.ch <- event:
		default:
			log.Warn().
				Str("topic", string(topic)).
				Int("subscriber", id).
				Msg("subscriber buffer overflow, dropping stream")
			b.closeLocked(id)
		}
	}
}

// SubscriberCount reports live subscribers, for introspection and tests.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := 0
	for _, sub := range b.subs {
		if !sub.closed {
			count++
		}
	}

	return count
}

func (b *Bus) drop(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closeLocked(id)
}

func (b *Bus) closeLocked(id int) {
	sub, ok := b.subs[id]
	if !ok || sub.closed {
		return
	}

	sub.closed = true
	close(sub.ch)
	delete(b.subs, id)
}
