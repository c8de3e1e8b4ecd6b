package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"

	"github.com/Dis3z/reserve-api/shared/model"
)

const (
	TableName  = "bookings"
	EntityName = "booking"

	FieldID               = "id"
	FieldUserID           = "user_id"
	FieldSlotID           = "slot_id"
	FieldVenueID          = "venue_id"
	FieldConfirmationCode = "confirmation_code"
	FieldStatus           = "status"
	FieldGuestCount       = "guest_count"
	FieldBookingDate      = "booking_date"
)

const (
	StatusConfirmed = "CONFIRMED"
	StatusCancelled = "CANCELLED"
	StatusCompleted = "COMPLETED"
	StatusNoShow    = "NO_SHOW"
)

const (
	confirmationCodePrefix = "RSV-"
)

type Booking struct {
	ID                 string         `db:"id"`
	UserID             string         `db:"user_id"`
	SlotID             string         `db:"slot_id"`
	VenueID            string         `db:"venue_id"`
	ConfirmationCode   string         `db:"confirmation_code"`
	Status             string         `db:"status"`
	GuestCount         int            `db:"guest_count"`
	Notes              *string        `db:"notes"`
	BookingDate        time.Time      `db:"booking_date"`
	CancelledAt        *time.Time     `db:"cancelled_at"`
	CancellationReason *string        `db:"cancellation_reason"`
	ConfirmedAt        *time.Time     `db:"confirmed_at"`
	CompletedAt        *time.Time     `db:"completed_at"`
	TotalPrice         *float64       `db:"total_price"`
	Metadata           types.JSONText `db:"metadata"`
	model.Timestamps
}

// NewConfirmationCode mints a short human-transcribable code: the prefix plus
// the first eight hex digits of a fresh random UUID, uppercased.
func NewConfirmationCode() string {
	return confirmationCodePrefix + strings.ToUpper(uuid.NewString()[:8])
}

// IsTerminal reports whether the booking reached an immutable state.
func (b *Booking) IsTerminal() bool {
	switch b.Status {
	case StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}

	return false
}

// IsCancellable reports whether the booking may still be cancelled: it must
// not be terminal, and the cancellation window before the slot's start must
// not have opened yet.
func (b *Booking) IsCancellable(slotStart time.Time, window time.Duration, now time.Time) bool {
	if b.IsTerminal() {
		return false
	}

	return now.Add(window).Before(slotStart)
}
