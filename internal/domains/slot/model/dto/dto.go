package dto

import (
	"time"

	"github.com/Dis3z/reserve-api/internal/domains/slot/model"
)

// SlotSnapshot is the read-model shape served from the availability cache.
type SlotSnapshot struct {
	ID                string     `json:"id"`
	VenueID           string     `json:"venue_id"`
	Date              string     `json:"date"`
	StartTime         time.Time  `json:"start_time"`
	EndTime           time.Time  `json:"end_time"`
	Capacity          int        `json:"capacity"`
	RemainingCapacity int        `json:"remaining_capacity"`
	Status            string     `json:"status"`
	Price             *float64   `json:"price,omitempty"`
	Currency          string     `json:"currency,omitempty"`
	HeldUntil         *time.Time `json:"held_until,omitempty"`
}

func (s *SlotSnapshot) FromModel(mod model.Slot) {
	s.ID = mod.ID
	s.VenueID = mod.VenueID
	s.Date = mod.Date.Format("2006-01-02")
	s.StartTime = mod.StartTime
	s.EndTime = mod.EndTime
	s.Capacity = mod.Capacity
	s.RemainingCapacity = mod.RemainingCapacity
	s.Status = mod.Status
	s.Price = mod.Price
	s.Currency = mod.Currency
	s.HeldUntil = mod.HeldUntil
}

type GetAvailableSlotsResponse struct {
	Slots []SlotSnapshot `json:"slots"`
}

func (r *GetAvailableSlotsResponse) FromModels(models []model.Slot) {
	r.Slots = make([]SlotSnapshot, len(models))
	for i, mod := range models {
		r.Slots[i].FromModel(mod)
	}
}

type BlockSlotRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type HoldSlotRequest struct {
	HoldMinutes int `json:"hold_minutes" validate:"required,min=1,max=1440"`
}
