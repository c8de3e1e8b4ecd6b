package model

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"

	"github.com/Dis3z/reserve-api/shared/constant"
	"github.com/Dis3z/reserve-api/shared/failure"
	"github.com/Dis3z/reserve-api/shared/model"
)

const (
	TableName  = "slots"
	EntityName = "slot"

	FieldID                = "id"
	FieldVenueID           = "venue_id"
	FieldDate              = "date"
	FieldStartTime         = "start_time"
	FieldEndTime           = "end_time"
	FieldCapacity          = "capacity"
	FieldRemainingCapacity = "remaining_capacity"
	FieldStatus            = "status"
	FieldHeldUntil         = "held_until"
)

const (
	StatusAvailable = "AVAILABLE"
	StatusHeld      = "HELD"
	StatusBooked    = "BOOKED"
	StatusBlocked   = "BLOCKED"
)

type Slot struct {
	ID                string         `db:"id"`
	VenueID           string         `db:"venue_id"`
	Date              time.Time      `db:"date"`
	StartTime         time.Time      `db:"start_time"`
	EndTime           time.Time      `db:"end_time"`
	Capacity          int            `db:"capacity"`
	RemainingCapacity int            `db:"remaining_capacity"`
	Status            string         `db:"status"`
	DurationMinutes   int            `db:"duration_minutes"`
	Price             *float64       `db:"price"`
	Currency          string         `db:"currency"`
	HeldUntil         *time.Time     `db:"held_until"`
	Metadata          types.JSONText `db:"metadata"`
	model.Timestamps
}

// Debit reserves guestCount units of remaining capacity. Draining the slot
// flips it to BOOKED.
func (s *Slot) Debit(guestCount int) error {
	if s.RemainingCapacity < guestCount {
		return failure.InsufficientCapacity() //nolint:wrapcheck
	}

	s.RemainingCapacity -= guestCount
	if s.RemainingCapacity == 0 {
		s.Status = StatusBooked
	}

	return nil
}

// Credit restores guestCount units of capacity, e.g. after a cancellation.
// A drained slot becomes bookable again.
func (s *Slot) Credit(guestCount int) error {
	if s.RemainingCapacity+guestCount > s.Capacity {
		return fmt.Errorf("credit of %d would exceed capacity %d", guestCount, s.Capacity)
	}

	s.RemainingCapacity += guestCount
	if s.Status == StatusBooked && s.RemainingCapacity > 0 {
		s.Status = StatusAvailable
	}

	return nil
}

// Block takes the slot out of circulation. Remaining capacity is preserved;
// Unblock derives the status from it, so a slot that was HELD comes back as
// AVAILABLE (or BOOKED at zero capacity), not HELD.
func (s *Slot) Block() {
	s.Status = StatusBlocked
}

// Unblock returns a blocked slot to circulation. The restored status follows
// the preserved remaining capacity.
func (s *Slot) Unblock() {
	if s.Status != StatusBlocked {
		return
	}

	if s.RemainingCapacity > 0 {
		s.Status = StatusAvailable
	} else {
		s.Status = StatusBooked
	}
}

// Hold takes an available slot off the market until the given instant.
func (s *Slot) Hold(until time.Time) error {
	if s.Status != StatusAvailable {
		return fmt.Errorf("cannot hold slot in status %s", s.Status)
	}

	s.Status = StatusHeld
	s.HeldUntil = &until

	return nil
}

// ReleaseHold puts an expired hold back on the market.
func (s *Slot) ReleaseHold() {
	if s.Status != StatusHeld {
		return
	}

	s.Status = StatusAvailable
	s.HeldUntil = nil
}

// HoldExpired reports whether the slot carries a hold that lapsed before now.
func (s *Slot) HoldExpired(now time.Time) bool {
	return s.Status == StatusHeld && s.HeldUntil != nil && s.HeldUntil.Before(now)
}

// IsBookable reports whether status alone permits a booking attempt. HELD
// slots stay bookable: confirming a hold is the debit path.
func (s *Slot) IsBookable() bool {
	return s.Status != StatusBlocked
}

// AvailabilityCacheKey is the cache key for the availability listing of one
// venue on one date.
func AvailabilityCacheKey(venueID string, date time.Time) string {
	return fmt.Sprintf("slots:available:%s:%s", venueID, date.Format(constant.DateOnlyLayout))
}
