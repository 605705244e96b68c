package appointments

import "github.com/waylio/waylio-platform/internal/apperr"

var (
	ErrAppointmentNotFound = apperr.NotFound("APPOINTMENT_NOT_FOUND", "Appointment not found")
	ErrDoctorNotFound      = apperr.NotFound("DOCTOR_NOT_FOUND", "Doctor not found")
	ErrPatientNotFound     = apperr.NotFound("PATIENT_NOT_FOUND", "Patient not found")
	ErrInvalidState        = apperr.InvalidState("INVALID_STATUS", "Status transition not allowed")
	ErrSlotUnavailable     = apperr.SlotUnavailable("SLOT_UNAVAILABLE", "This time slot is already booked")
)

// invalidTransition details which edge was refused.
func invalidTransition(from, to Status) error {
	return ErrInvalidState.WithDetails(map[string]any{"from": string(from), "to": string(to)})
}

func invalidQuery(err error) error {
	return apperr.Validation("Invalid query", map[string]string{"date": err.Error()})
}
