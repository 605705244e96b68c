package appointments

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/waylio/waylio-platform/internal/http/respond"
	"github.com/waylio/waylio-platform/internal/identity"
	"github.com/waylio/waylio-platform/pkg/logging"
)

// Handler serves appointment, queue and stats endpoints.
type Handler struct {
	svc    *Service
	logger *logging.Logger
}

func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (identity.Caller, bool) {
	c, ok := identity.CallerFromContext(r.Context())
	if !ok {
		respond.Error(w, r, h.logger, identity.ErrInvalidToken)
	}
	return c, ok
}

// canSee: staff see everything, doctors their own, patients theirs.
func canSee(c identity.Caller, a *Appointment) bool {
	switch c.Role {
	case identity.RoleAdmin, identity.RoleReception:
		return true
	case identity.RoleDoctor:
		return a.DoctorID == c.UserID
	case identity.RolePatient:
		return a.PatientID == c.UserID
	}
	return false
}

// Book handles POST /api/v1/appointments.
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req BookRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	switch caller.Role {
	case identity.RolePatient:
		if req.PatientID == "" {
			req.PatientID = caller.UserID
		}
		if req.PatientID != caller.UserID {
			respond.Error(w, r, h.logger, identity.ErrForbidden)
			return
		}
	case identity.RoleReception, identity.RoleAdmin:
	default:
		respond.Error(w, r, h.logger, identity.ErrForbidden)
		return
	}
	detail, err := h.svc.Book(r.Context(), caller, req)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusCreated, detail)
}

// Mine handles GET /api/v1/appointments/mine.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var (
		list []Detail
		err  error
	)
	if caller.Role == identity.RoleDoctor {
		list, err = h.svc.ListForDoctor(r.Context(), caller.UserID, r.URL.Query().Get("date"))
	} else {
		list, err = h.svc.ListForPatient(r.Context(), caller.UserID)
	}
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"appointments": list, "count": len(list)})
}

// Get handles GET /api/v1/appointments/{appointmentID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	detail, err := h.svc.Get(r.Context(), chi.URLParam(r, "appointmentID"))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	if !canSee(caller, detail.Appointment) {
		respond.Error(w, r, h.logger, ErrAppointmentNotFound)
		return
	}
	respond.JSON(w, http.StatusOK, detail)
}

// CheckIn handles POST /api/v1/appointments/{appointmentID}/check-in.
// Reception and admin check anyone in; a patient may check in their own visit.
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "appointmentID")
	if caller.Role == identity.RolePatient {
		if !h.owns(w, r, caller, id) {
			return
		}
	} else if !caller.HasRole(identity.RoleReception, identity.RoleAdmin) {
		respond.Error(w, r, h.logger, identity.ErrForbidden)
		return
	}
	a, err := h.svc.CheckIn(r.Context(), caller, id)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, a)
}

// UpdateStatus handles PATCH /api/v1/appointments/{appointmentID}.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	id := chi.URLParam(r, "appointmentID")
	switch caller.Role {
	case identity.RoleAdmin, identity.RoleReception:
	case identity.RoleDoctor:
		// Arrival is recorded by the desk or the patient, same as POST .../check-in.
		if req.Status != nil && *req.Status == StatusCheckedIn {
			respond.Error(w, r, h.logger, identity.ErrForbidden)
			return
		}
		if !h.owns(w, r, caller, id) {
			return
		}
	case identity.RolePatient:
		if req.Status == nil || *req.Status != StatusCancelled || req.Notes != nil ||
			req.CheckInTime != nil || req.ConsultationStartTime != nil || req.ConsultationEndTime != nil {
			respond.Error(w, r, h.logger, identity.ErrForbidden)
			return
		}
		if !h.owns(w, r, caller, id) {
			return
		}
	default:
		respond.Error(w, r, h.logger, identity.ErrForbidden)
		return
	}
	a, err := h.svc.UpdateStatus(r.Context(), caller, id, req)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, a)
}

// NoShow handles POST /api/v1/appointments/{appointmentID}/no-show.
func (h *Handler) NoShow(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	a, err := h.svc.MarkNoShow(r.Context(), caller, chi.URLParam(r, "appointmentID"))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, a)
}

// DoctorQueue handles GET /api/v1/doctors/{doctorID}/queue?date=YYYY-MM-DD.
func (h *Handler) DoctorQueue(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	doctorID := chi.URLParam(r, "doctorID")
	if !h.canSeeDoctor(w, r, caller, doctorID) {
		return
	}
	entries, err := h.svc.GetDoctorQueue(r.Context(), doctorID, r.URL.Query().Get("date"))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"doctorId": doctorID, "queue": entries, "count": len(entries)})
}

// DoctorAppointments handles GET /api/v1/doctors/{doctorID}/appointments?date=YYYY-MM-DD.
func (h *Handler) DoctorAppointments(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	doctorID := chi.URLParam(r, "doctorID")
	if !h.canSeeDoctor(w, r, caller, doctorID) {
		return
	}
	list, err := h.svc.ListForDoctor(r.Context(), doctorID, r.URL.Query().Get("date"))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"appointments": list, "count": len(list)})
}

// PatientAppointments handles GET /api/v1/patients/{patientID}/appointments.
func (h *Handler) PatientAppointments(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	patientID := chi.URLParam(r, "patientID")
	if caller.Role == identity.RolePatient && caller.UserID != patientID {
		respond.Error(w, r, h.logger, identity.ErrForbidden)
		return
	}
	list, err := h.svc.ListForPatient(r.Context(), patientID)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	if caller.Role == identity.RoleDoctor {
		own := list[:0]
		for _, d := range list {
			if d.DoctorID == caller.UserID {
				own = append(own, d)
			}
		}
		list = own
	}
	respond.JSON(w, http.StatusOK, map[string]any{"appointments": list, "count": len(list)})
}

// Stats handles GET /admin/stats?date=YYYY-MM-DD.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, stats)
}

func (h *Handler) canSeeDoctor(w http.ResponseWriter, r *http.Request, caller identity.Caller, doctorID string) bool {
	switch caller.Role {
	case identity.RoleAdmin, identity.RoleReception:
		return true
	case identity.RoleDoctor:
		if caller.UserID == doctorID {
			return true
		}
	}
	respond.Error(w, r, h.logger, identity.ErrForbidden)
	return false
}

// owns loads the appointment and writes 404 unless the caller is its patient or doctor.
func (h *Handler) owns(w http.ResponseWriter, r *http.Request, caller identity.Caller, id string) bool {
	a, err := h.svc.repo.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return false
	}
	if !canSee(caller, a) {
		respond.Error(w, r, h.logger, ErrAppointmentNotFound)
		return false
	}
	return true
}
