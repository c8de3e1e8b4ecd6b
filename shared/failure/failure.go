package failure

import (
	"errors"
	"net/http"
)

// Failure is the domain error carried from the coordination core to the
// surface. Code is a stable machine code, Status its HTTP-equivalent.
type Failure struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	CodeSlotLocked             = "SLOT_LOCKED"
	CodeUserNotFound           = "USER_NOT_FOUND"
	CodeMaxBookingsReached     = "MAX_BOOKINGS_REACHED"
	CodeSlotNotFound           = "SLOT_NOT_FOUND"
	CodeSlotBlocked            = "SLOT_BLOCKED"
	CodeInsufficientCapacity   = "INSUFFICIENT_CAPACITY"
	CodeSlotInPast             = "SLOT_IN_PAST"
	CodeAdvanceLimitExceeded   = "ADVANCE_LIMIT_EXCEEDED"
	CodeDuplicateBooking       = "DUPLICATE_BOOKING"
	CodeBookingNotFound        = "BOOKING_NOT_FOUND"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeCancellationNotAllowed = "CANCELLATION_NOT_ALLOWED"
	CodeInternal               = "INTERNAL"
)

// Error returns the human readable message.
func (e *Failure) Error() string {
	return e.Message
}

func SlotLocked() error {
	return &Failure{Status: http.StatusConflict, Code: CodeSlotLocked, Message: "slot is locked by a concurrent booking attempt"}
}

func UserNotFound() error {
	return &Failure{Status: http.StatusNotFound, Code: CodeUserNotFound, Message: "user not found or inactive"}
}

func MaxBookingsReached() error {
	return &Failure{Status: http.StatusTooManyRequests, Code: CodeMaxBookingsReached, Message: "maximum concurrent bookings reached"}
}

func SlotNotFound() error {
	return &Failure{Status: http.StatusNotFound, Code: CodeSlotNotFound, Message: "slot not found"}
}

func SlotBlocked() error {
	return &Failure{Status: http.StatusBadRequest, Code: CodeSlotBlocked, Message: "slot is blocked"}
}

func InsufficientCapacity() error {
	return &Failure{Status: http.StatusBadRequest, Code: CodeInsufficientCapacity, Message: "requested guest count exceeds remaining capacity"}
}

func SlotInPast() error {
	return &Failure{Status: http.StatusBadRequest, Code: CodeSlotInPast, Message: "slot has already ended"}
}

func AdvanceLimitExceeded() error {
	return &Failure{Status: http.StatusBadRequest, Code: CodeAdvanceLimitExceeded, Message: "slot starts beyond the booking horizon"}
}

func DuplicateBooking() error {
	return &Failure{Status: http.StatusConflict, Code: CodeDuplicateBooking, Message: "user already has a confirmed booking for this slot"}
}

func BookingNotFound() error {
	return &Failure{Status: http.StatusNotFound, Code: CodeBookingNotFound, Message: "booking not found"}
}

func Unauthorized(msg string) error {
	return &Failure{Status: http.StatusForbidden, Code: CodeUnauthorized, Message: msg}
}

func CancellationNotAllowed(msg string) error {
	return &Failure{Status: http.StatusBadRequest, Code: CodeCancellationNotAllowed, Message: msg}
}

// Internal masks unexpected infrastructure failures before they reach callers.
func Internal() error {
	return &Failure{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "internal error"}
}

// BadRequestFromString returns a generic validation failure.
func BadRequestFromString(msg string) error {
	return &Failure{Status: http.StatusBadRequest, Code: "BAD_REQUEST", Message: msg}
}

// NotFound returns a generic not-found failure for the given entity name.
func NotFound(entityName string) error {
	return &Failure{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: entityName + " not found"}
}

// GetStatus returns the HTTP status of an error interface.
func GetStatus(err error) int {
	var fail *Failure
	if errors.As(err, &fail) {
		return fail.Status
	}

	return http.StatusInternalServerError
}

// GetMachineCode returns the stable machine code of an error interface.
func GetMachineCode(err error) string {
	var fail *Failure
	if errors.As(err, &fail) {
		return fail.Code
	}

	return CodeInternal
}

// Is reports whether err carries the given machine code.
func Is(err error, code string) bool {
	var fail *Failure
	if errors.As(err, &fail) {
		return fail.Code == code
	}

	return false
}

// Mask remaps anything that is not already a Failure to INTERNAL, keeping
// domain failures verbatim.
func Mask(err error) error {
	if err == nil {
		return nil
	}

	var fail *Failure
	if errors.As(err, &fail) {
		return fail
	}

	return Internal()
}
