package dto

import (
	"time"

	"github.com/Dis3z/reserve-api/internal/domains/booking/model"
)

type CreateBookingRequest struct {
	SlotID     string `json:"slot_id"     validate:"required,uuid4"`
	VenueID    string `json:"venue_id"    validate:"required"`
	GuestCount int    `json:"guest_count" validate:"required,min=1"`
	Notes      string `json:"notes"       validate:"omitempty,max=500"`
}

type CancelBookingRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type BookingResponse struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	SlotID             string     `json:"slot_id"`
	VenueID            string     `json:"venue_id"`
	ConfirmationCode   string     `json:"confirmation_code"`
	Status             string     `json:"status"`
	GuestCount         int        `json:"guest_count"`
	Notes              *string    `json:"notes,omitempty"`
	BookingDate        string     `json:"booking_date"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	TotalPrice         *float64   `json:"total_price,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

func (r *BookingResponse) FromModel(mod model.Booking) {
	r.ID = mod.ID
	r.UserID = mod.UserID
	r.SlotID = mod.SlotID
	r.VenueID = mod.VenueID
	r.ConfirmationCode = mod.ConfirmationCode
	r.Status = mod.Status
	r.GuestCount = mod.GuestCount
	r.Notes = mod.Notes
	r.BookingDate = mod.BookingDate.Format("2006-01-02")
	r.ConfirmedAt = mod.ConfirmedAt
	r.CancelledAt = mod.CancelledAt
	r.CancellationReason = mod.CancellationReason
	r.TotalPrice = mod.TotalPrice
	r.CreatedAt = mod.CreatedAt
}

type GetBookingsResponse struct {
	Bookings []BookingResponse `json:"bookings"`
}

func (r *GetBookingsResponse) FromModels(models []model.Booking) {
	r.Bookings = make([]BookingResponse, len(models))
	for i, mod := range models {
		r.Bookings[i].FromModel(mod)
	}
}
