package slot

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/Dis3z/reserve-api/infras/otel"
	"github.com/Dis3z/reserve-api/internal/domains/slot/model/dto"
	"github.com/Dis3z/reserve-api/internal/domains/slot/service"
	"github.com/Dis3z/reserve-api/shared/constant"
	"github.com/Dis3z/reserve-api/shared/failure"
	"github.com/Dis3z/reserve-api/shared/timezone"
	"github.com/Dis3z/reserve-api/shared/validator"
	"github.com/Dis3z/reserve-api/transport/http/response"
)

type Handler struct {
	service service.Slot
	otel    otel.Otel
}

func New(service service.Slot, otel otel.Otel) Handler {
	return Handler{
		service: service,
		otel:    otel,
	}
}

func (handler *Handler) Router(router chi.Router) {
	router.Route("/slots", func(routerGroup chi.Router) {
		routerGroup.Get("/available", handler.GetAvailableSlots)
		routerGroup.Post("/{id}/block", handler.BlockSlot)
		routerGroup.Post("/{id}/unblock", handler.UnblockSlot)
		routerGroup.Post("/{id}/hold", handler.HoldSlot)
	})
}

// GetAvailableSlots lists bookable slots for a venue and date.
func (handler *Handler) GetAvailableSlots(writer http.ResponseWriter, request *http.Request) {
	ctx, scope := handler.otel.NewScope(request.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".GetAvailableSlots")
	defer scope.End()

	venueID := request.URL.Query().Get("venue_id")
	if venueID == constant.Empty {
		response.WithError(writer, failure.BadRequestFromString("venue_id is required"))

		return
	}

	date, err := timezone.Parse(constant.DateOnlyLayout, request.URL.Query().Get("date"))
	if err != nil {
		response.WithError(writer, failure.BadRequestFromString("date must be YYYY-MM-DD"))

		return
	}

	slots, err := handler.service.GetAvailable(ctx, venueID, date)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to get available slots")

		response.WithError(writer, err)

		return
	}

	response.WithJSON(writer, http.StatusOK, slots)
}

// BlockSlot takes a slot out of circulation (admin only).
func (handler *Handler) BlockSlot(writer http.ResponseWriter, request *http.Request) {
	ctx, scope := handler.otel.NewScope(request.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".BlockSlot")
	defer scope.End()

	req := dto.BlockSlotRequest{}
	if request.ContentLength > 0 {
		if err := validator.Validate(request.Body, &req); err != nil {
			response.WithError(writer, err)

			return
		}
	}

	slot, err := handler.service.Block(ctx, chi.URLParam(request, "id"), req.Reason)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to block slot")

		response.WithError(writer, err)

		return
	}

	response.WithJSON(writer, http.StatusOK, slot)
}

// UnblockSlot restores a blocked slot (admin only).
func (handler *Handler) UnblockSlot(writer http.ResponseWriter, request *http.Request) {
	ctx, scope := handler.otel.NewScope(request.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".UnblockSlot")
	defer scope.End()

	slot, err := handler.service.Unblock(ctx, chi.URLParam(request, "id"))
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to unblock slot")

		response.WithError(writer, err)

		return
	}

	response.WithJSON(writer, http.StatusOK, slot)
}

// HoldSlot takes a slot off the market for a bounded time (admin only).
func (handler *Handler) HoldSlot(writer http.ResponseWriter, request *http.Request) {
	ctx, scope := handler.otel.NewScope(request.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".HoldSlot")
	defer scope.End()

	req := dto.HoldSlotRequest{}
	if err := validator.Validate(request.Body, &req); err != nil {
		response.WithError(writer, err)

		return
	}

	slot, err := handler.service.Hold(ctx, chi.URLParam(request, "id"), time.Duration(req.HoldMinutes)*time.Minute)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to hold slot")

		response.WithError(writer, err)

		return
	}

	response.WithJSON(writer, http.StatusOK, slot)
}
