package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesByCodeAndKind(t *testing.T) {
	notFound := NotFound("APPOINTMENT_NOT_FOUND", "Appointment not found")
	wrapped := fmt.Errorf("appointments: load: %w", notFound)

	assert.True(t, errors.Is(wrapped, notFound))
	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.False(t, errors.Is(wrapped, ErrInvalidState))
	assert.False(t, errors.Is(wrapped, NotFound("DOCTOR_NOT_FOUND", "Doctor not found")))
}

func TestWrapKeepsIdentity(t *testing.T) {
	base := SlotUnavailable("SLOT_UNAVAILABLE", "This time slot is already booked")
	cause := errors.New("duplicate key")
	err := base.Wrap(cause)

	assert.True(t, errors.Is(err, base))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "duplicate key")
	assert.Nil(t, base.Err, "Wrap must not mutate the sentinel")
}

func TestValidationDetails(t *testing.T) {
	err := Validation("Invalid appointment request", map[string]string{"doctorId": "is required"})
	assert.Equal(t, "VALIDATION_ERROR", err.Code)
	assert.Equal(t, "is required", err.Details["doctorId"])
	assert.Nil(t, Validation("bad", nil).Details)
}

func TestAs(t *testing.T) {
	_, ok := As(errors.New("plain"))
	assert.False(t, ok)

	e, ok := As(fmt.Errorf("outer: %w", Forbidden("FORBIDDEN", "Insufficient permissions")))
	require.True(t, ok)
	assert.Equal(t, KindForbidden, e.Kind)
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindNotFound:        http.StatusNotFound,
		KindInvalidState:    http.StatusConflict,
		KindSlotUnavailable: http.StatusConflict,
		KindValidation:      http.StatusBadRequest,
		KindUnauthorized:    http.StatusUnauthorized,
		KindForbidden:       http.StatusForbidden,
		KindRateLimited:     http.StatusTooManyRequests,
		KindInternal:        http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, HTTPStatus(kind), kind.String())
	}
}
