package failure_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/Dis3z/reserve-api/shared/failure"
)

func TestFailure_Error(t *testing.T) {
	f := &failure.Failure{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: "test error message",
	}

	if f.Error() != "test error message" {
		t.Errorf("expected error message to be 'test error message', got %s", f.Error())
	}
}

func TestTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "SlotLocked", err: failure.SlotLocked(), status: http.StatusConflict, code: failure.CodeSlotLocked},
		{name: "UserNotFound", err: failure.UserNotFound(), status: http.StatusNotFound, code: failure.CodeUserNotFound},
		{name: "MaxBookingsReached", err: failure.MaxBookingsReached(), status: http.StatusTooManyRequests, code: failure.CodeMaxBookingsReached},
		{name: "SlotNotFound", err: failure.SlotNotFound(), status: http.StatusNotFound, code: failure.CodeSlotNotFound},
		{name: "SlotBlocked", err: failure.SlotBlocked(), status: http.StatusBadRequest, code: failure.CodeSlotBlocked},
		{name: "InsufficientCapacity", err: failure.InsufficientCapacity(), status: http.StatusBadRequest, code: failure.CodeInsufficientCapacity},
		{name: "SlotInPast", err: failure.SlotInPast(), status: http.StatusBadRequest, code: failure.CodeSlotInPast},
		{name: "AdvanceLimitExceeded", err: failure.AdvanceLimitExceeded(), status: http.StatusBadRequest, code: failure.CodeAdvanceLimitExceeded},
		{name: "DuplicateBooking", err: failure.DuplicateBooking(), status: http.StatusConflict, code: failure.CodeDuplicateBooking},
		{name: "BookingNotFound", err: failure.BookingNotFound(), status: http.StatusNotFound, code: failure.CodeBookingNotFound},
		{name: "Unauthorized", err: failure.Unauthorized("not the owner"), status: http.StatusForbidden, code: failure.CodeUnauthorized},
		{name: "CancellationNotAllowed", err: failure.CancellationNotAllowed("outside window"), status: http.StatusBadRequest, code: failure.CodeCancellationNotAllowed},
		{name: "Internal", err: failure.Internal(), status: http.StatusInternalServerError, code: failure.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := failure.GetStatus(tt.err); got != tt.status {
				t.Errorf("expected status to be %d, got %d", tt.status, got)
			}
			if got := failure.GetMachineCode(tt.err); got != tt.code {
				t.Errorf("expected code to be %s, got %s", tt.code, got)
			}
		})
	}
}

func TestGetStatus(t *testing.T) {
	tests := []struct {
		name     string
		input    error
		expected int
	}{
		{
			name:     "failure error",
			input:    failure.SlotLocked(),
			expected: http.StatusConflict,
		},
		{
			name:     "wrapped failure error",
			input:    fmt.Errorf("create booking: %w", failure.DuplicateBooking()),
			expected: http.StatusConflict,
		},
		{
			name:     "regular error",
			input:    errors.New("regular error"),
			expected: http.StatusInternalServerError,
		},
		{
			name:     "nil error",
			input:    nil,
			expected: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := failure.GetStatus(tt.input)
			if result != tt.expected {
				t.Errorf("expected status to be %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestIs(t *testing.T) {
	if !failure.Is(failure.SlotLocked(), failure.CodeSlotLocked) {
		t.Error("expected Is to match the machine code")
	}

	if failure.Is(failure.SlotLocked(), failure.CodeDuplicateBooking) {
		t.Error("expected Is to reject a different machine code")
	}

	if failure.Is(errors.New("plain"), failure.CodeInternal) {
		t.Error("expected Is to reject a non-Failure error")
	}
}

func TestMask(t *testing.T) {
	if failure.Mask(nil) != nil {
		t.Error("expected nil to stay nil")
	}

	domain := failure.DuplicateBooking()
	if masked := failure.Mask(domain); failure.GetMachineCode(masked) != failure.CodeDuplicateBooking {
		t.Error("expected domain failures to pass through unchanged")
	}

	if masked := failure.Mask(errors.New("pq: connection refused")); failure.GetMachineCode(masked) != failure.CodeInternal {
		t.Error("expected infrastructure errors to be masked to INTERNAL")
	}
}
