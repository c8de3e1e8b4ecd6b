package router

import (
	"github.com/go-chi/chi/v5"

	"github.com/Dis3z/reserve-api/internal/handlers/booking"
	"github.com/Dis3z/reserve-api/internal/handlers/events"
	"github.com/Dis3z/reserve-api/internal/handlers/slot"
)

type DomainHandlers struct {
	Slot    slot.Handler
	Booking booking.Handler
	Events  events.Handler
}

type Router struct {
	DomainHandlers DomainHandlers
}

func (r *Router) SetupRoutes(router chi.Router) {
	router.Route("/v1", func(routerGroup chi.Router) {
		r.DomainHandlers.Slot.Router(routerGroup)
		r.DomainHandlers.Booking.Router(routerGroup)
		r.DomainHandlers.Events.Router(routerGroup)
	})
}

func New(domainHandlers DomainHandlers) Router {
	return Router{
		DomainHandlers: domainHandlers,
	}
}
