package events

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Dis3z/reserve-api/internal/eventbus"
	"github.com/Dis3z/reserve-api/shared/constant"
	"github.com/Dis3z/reserve-api/shared/failure"
	"github.com/Dis3z/reserve-api/transport/http/response"
)

// Handler streams bus events to long-lived subscribers as server-sent
// events. Delivery is at-most-once; clients refetch durable state on
// reconnect.
type Handler struct {
	bus *eventbus.Bus
}

func New(bus *eventbus.Bus) Handler {
	return Handler{
		bus: bus,
	}
}

func (handler *Handler) Router(router chi.Router) {
	router.Route("/events", func(routerGroup chi.Router) {
		routerGroup.Get("/slots", handler.StreamSlotUpdates)
		routerGroup.Get("/bookings", handler.StreamBookingUpdates)
	})
}

// StreamSlotUpdates pushes slot availability changes, optionally filtered by
// venue_id.
func (handler *Handler) StreamSlotUpdates(writer http.ResponseWriter, request *http.Request) {
	filter := eventbus.Filter{VenueID: request.URL.Query().Get("venue_id")}

	handler.stream(writer, request, eventbus.TopicSlotUpdated, filter)
}

// StreamBookingUpdates pushes the calling user's booking state changes.
func (handler *Handler) StreamBookingUpdates(writer http.ResponseWriter, request *http.Request) {
	userID, _ := request.Context().Value(constant.ContextKeyUserID).(string)
	if userID == constant.Empty {
		response.WithError(writer, failure.Unauthorized("caller identity required"))

		return
	}

	handler.stream(writer, request, eventbus.TopicBookingUpdated, eventbus.Filter{UserID: userID})
}

func (handler *Handler) stream(writer http.ResponseWriter, request *http.Request, topic eventbus.Topic, filter eventbus.Filter) {
	flusher, ok := writer.(http.Flusher)
	if !ok {
		response.WithError(writer, failure.BadRequestFromString("streaming unsupported"))

		return
	}

	writer.Header().Set(constant.RequestHeaderContentType, "text/event-stream")
	writer.Header().Set("Cache-Control", "no-cache")
	writer.Header().Set("Connection", "keep-alive")
	writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	// The subscription dies with the request context; the bus drops the
	// buffer on its own if we fall too far behind.
	stream := handler.bus.Subscribe(request.Context(), topic, filter)

	for event := range stream {
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}

		fmt.Fprintf(writer, "data: %s\n\n", payload)
		flusher.Flush()
	}
}
