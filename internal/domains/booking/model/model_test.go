package model_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Dis3z/reserve-api/internal/domains/booking/model"
)

func TestNewConfirmationCode(t *testing.T) {
	pattern := regexp.MustCompile(`^RSV-[0-9A-F]{8}$`)

	seen := make(map[string]bool)

	for i := 0; i < 1000; i++ {
		code := model.NewConfirmationCode()

		assert.Len(t, code, 12)
		assert.Regexp(t, pattern, code)
		assert.False(t, seen[code], "duplicate confirmation code %s", code)

		seen[code] = true
	}
}

func TestBooking_IsTerminal(t *testing.T) {
	tests := []struct {
		status   string
		terminal bool
	}{
		{model.StatusConfirmed, false},
		{model.StatusCancelled, true},
		{model.StatusCompleted, true},
		{model.StatusNoShow, true},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			b := model.Booking{Status: tt.status}
			assert.Equal(t, tt.terminal, b.IsTerminal())
		})
	}
}

func TestBooking_IsCancellable(t *testing.T) {
	now := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)
	window := 24 * time.Hour

	tests := []struct {
		name        string
		status      string
		slotStart   time.Time
		cancellable bool
	}{
		{
			name:        "well before the window",
			status:      model.StatusConfirmed,
			slotStart:   now.Add(48 * time.Hour),
			cancellable: true,
		},
		{
			name:        "inside the window",
			status:      model.StatusConfirmed,
			slotStart:   now.Add(12 * time.Hour),
			cancellable: false,
		},
		{
			name:        "exactly at the window boundary",
			status:      model.StatusConfirmed,
			slotStart:   now.Add(window),
			cancellable: false,
		},
		{
			name:        "one second outside the boundary",
			status:      model.StatusConfirmed,
			slotStart:   now.Add(window + time.Second),
			cancellable: true,
		},
		{
			name:        "already cancelled",
			status:      model.StatusCancelled,
			slotStart:   now.Add(48 * time.Hour),
			cancellable: false,
		},
		{
			name:        "completed",
			status:      model.StatusCompleted,
			slotStart:   now.Add(48 * time.Hour),
			cancellable: false,
		},
		{
			name:        "no-show",
			status:      model.StatusNoShow,
			slotStart:   now.Add(48 * time.Hour),
			cancellable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := model.Booking{Status: tt.status}
			assert.Equal(t, tt.cancellable, b.IsCancellable(tt.slotStart, window, now))
		})
	}
}
