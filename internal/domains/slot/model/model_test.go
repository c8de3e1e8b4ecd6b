package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/Dis3z/reserve-api/internal/domains/slot/model"
)

func newSlot(capacity, remaining int) model.Slot {
	return model.Slot{
		ID:                "3b65d9ab-7f9d-4f3e-9e63-1f7a3f2d8c4a",
		VenueID:           "9d7c1f4a-02a6-4f2e-8a25-75d5ab5a7f11",
		Capacity:          capacity,
		RemainingCapacity: remaining,
		Status:            model.StatusAvailable,
	}
}

func TestSlot_Debit(t *testing.T) {
	slot := newSlot(4, 4)

	require.NoError(t, slot.Debit(2))
	assert.Equal(t, 2, slot.RemainingCapacity)
	assert.Equal(t, model.StatusAvailable, slot.Status)

	require.NoError(t, slot.Debit(2))
	assert.Equal(t, 0, slot.RemainingCapacity)
	assert.Equal(t, model.StatusBooked, slot.Status)

	assert.Error(t, slot.Debit(1))
}

func TestSlot_CreditReopensDrainedSlot(t *testing.T) {
	slot := newSlot(4, 0)
	slot.Status = model.StatusBooked

	require.NoError(t, slot.Credit(2))
	assert.Equal(t, 2, slot.RemainingCapacity)
	assert.Equal(t, model.StatusAvailable, slot.Status)

	assert.Error(t, slot.Credit(3))
}

func TestSlot_BlockPreservesCapacity(t *testing.T) {
	slot := newSlot(4, 2)

	slot.Block()
	assert.Equal(t, model.StatusBlocked, slot.Status)
	assert.Equal(t, 2, slot.RemainingCapacity)

	slot.Unblock()
	assert.Equal(t, model.StatusAvailable, slot.Status)
	assert.Equal(t, 2, slot.RemainingCapacity)
}

func TestSlot_UnblockDrainedSlotStaysBooked(t *testing.T) {
	slot := newSlot(4, 0)
	slot.Status = model.StatusBlocked

	slot.Unblock()
	assert.Equal(t, model.StatusBooked, slot.Status)
}

func TestSlot_HoldLifecycle(t *testing.T) {
	slot := newSlot(4, 4)
	until := time.Now().UTC().Add(30 * time.Minute)

	require.NoError(t, slot.Hold(until))
	assert.Equal(t, model.StatusHeld, slot.Status)
	require.NotNil(t, slot.HeldUntil)

	assert.False(t, slot.HoldExpired(until.Add(-time.Minute)))
	assert.True(t, slot.HoldExpired(until.Add(time.Minute)))

	slot.ReleaseHold()
	assert.Equal(t, model.StatusAvailable, slot.Status)
	assert.Nil(t, slot.HeldUntil)

	// Holding a non-available slot is refused.
	slot.Status = model.StatusBooked
	assert.Error(t, slot.Hold(until))
}

func TestAvailabilityCacheKey(t *testing.T) {
	date := time.Date(2026, 8, 6, 0, 0, 0, 0, time.UTC)

	key := model.AvailabilityCacheKey("venue-1", date)
	assert.Equal(t, "slots:available:venue-1:2026-08-06", key)
}

// TestSlot_TransitionsPreserveInvariants drives random debit/credit/block/
// unblock/hold sequences and checks the capacity accounting never breaks.
func TestSlot_TransitionsPreserveInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 10).Draw(t, "capacity")
		slot := newSlot(capacity, capacity)

		booked := 0

		steps := rapid.IntRange(1, 50).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			op := rapid.SampledFrom([]string{"debit", "credit", "block", "unblock", "hold", "release"}).Draw(t, "op")

			switch op {
			case "debit":
				guests := rapid.IntRange(1, capacity).Draw(t, "guests")
				if slot.Status != model.StatusBlocked {
					if err := slot.Debit(guests); err == nil {
						booked += guests
					}
				}
			case "credit":
				if booked > 0 {
					guests := rapid.IntRange(1, booked).Draw(t, "credit_guests")
					if err := slot.Credit(guests); err == nil {
						booked -= guests
					}
				}
			case "block":
				slot.Block()
			case "unblock":
				slot.Unblock()
			case "hold":
				_ = slot.Hold(time.Now().Add(time.Minute))
			case "release":
				slot.ReleaseHold()
			}

			// Capacity accounting: remaining plus booked units always equals
			// capacity, and remaining stays within bounds.
			if slot.RemainingCapacity+booked != slot.Capacity {
				t.Fatalf("capacity leak: remaining=%d booked=%d capacity=%d", slot.RemainingCapacity, booked, slot.Capacity)
			}

			if slot.RemainingCapacity < 0 || slot.RemainingCapacity > slot.Capacity {
				t.Fatalf("remaining capacity out of bounds: %d", slot.RemainingCapacity)
			}

			// A drained slot is BOOKED unless an admin blocked it.
			if slot.Status == model.StatusBooked && slot.RemainingCapacity != 0 {
				t.Fatalf("BOOKED slot with remaining capacity %d", slot.RemainingCapacity)
			}

			if slot.Status == model.StatusAvailable && slot.RemainingCapacity == 0 {
				t.Fatalf("AVAILABLE slot with no remaining capacity")
			}
		}
	})
}
