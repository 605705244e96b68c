package appointments

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waylio/waylio-platform/internal/http/respond"
	"github.com/waylio/waylio-platform/internal/identity"
)

func newTestRouter(h *Handler, caller identity.Caller) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(identity.WithCaller(req.Context(), caller)))
		})
	})
	r.Post("/appointments", h.Book)
	r.Get("/appointments/mine", h.Mine)
	r.Get("/appointments/{appointmentID}", h.Get)
	r.Patch("/appointments/{appointmentID}", h.UpdateStatus)
	r.Post("/appointments/{appointmentID}/check-in", h.CheckIn)
	r.Get("/doctors/{doctorID}/queue", h.DoctorQueue)
	r.Get("/patients/{patientID}/appointments", h.PatientAppointments)
	return r
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env respond.ErrorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.NotEmpty(t, env.Error.RequestID)
	return env.Error.Code
}

var (
	patientOne = identity.Caller{UserID: "pat-1", Role: identity.RolePatient}
	patientTwo = identity.Caller{UserID: "pat-2", Role: identity.RolePatient}
	doctorD    = identity.Caller{UserID: "doc-d", Role: identity.RoleDoctor}
)

func TestHandler_PatientBooksForSelf(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, nil)
	at := day.Add(11 * time.Hour)

	rec := do(t, newTestRouter(h, patientOne), http.MethodPost, "/appointments",
		map[string]any{"doctorId": "doc-d", "scheduledTime": at})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "pat-1", body["patientId"])
	assert.Equal(t, "SCHEDULED", body["status"])

	rec = do(t, newTestRouter(h, patientOne), http.MethodPost, "/appointments",
		map[string]any{"patientId": "pat-2", "doctorId": "doc-d", "scheduledTime": at.Add(time.Hour)})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, newTestRouter(h, patientTwo), http.MethodPost, "/appointments",
		map[string]any{"doctorId": "doc-d", "scheduledTime": at})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "SLOT_UNAVAILABLE", errorCode(t, rec))
}

func TestHandler_UnknownFieldRejected(t *testing.T) {
	f := newFixture(t)
	rec := do(t, newTestRouter(NewHandler(f.svc, nil), reception), http.MethodPost, "/appointments",
		map[string]any{"doctorId": "doc-d", "bogus": true})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))
}

func TestHandler_OwnershipChecks(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, nil)
	a := f.book(t, "pat-1", day.Add(9*time.Hour))

	rec := do(t, newTestRouter(h, patientTwo), http.MethodGet, "/appointments/"+a.ID, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "APPOINTMENT_NOT_FOUND", errorCode(t, rec))

	rec = do(t, newTestRouter(h, patientTwo), http.MethodPost, "/appointments/"+a.ID+"/check-in", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, newTestRouter(h, doctorD), http.MethodPost, "/appointments/"+a.ID+"/check-in", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, newTestRouter(h, patientOne), http.MethodPost, "/appointments/"+a.ID+"/check-in", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, newTestRouter(h, patientOne), http.MethodPatch, "/appointments/"+a.ID,
		map[string]any{"status": "IN_PROGRESS"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, newTestRouter(h, doctorD), http.MethodPatch, "/appointments/"+a.ID,
		map[string]any{"status": "IN_PROGRESS"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, newTestRouter(h, doctorD), http.MethodPatch, "/appointments/"+a.ID,
		map[string]any{"status": "IN_PROGRESS"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_STATUS", errorCode(t, rec))
}

func TestHandler_DoctorCannotCheckInThroughPatch(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, nil)
	a := f.book(t, "pat-1", day.Add(9*time.Hour))

	rec := do(t, newTestRouter(h, doctorD), http.MethodPatch, "/appointments/"+a.ID,
		map[string]any{"status": "CHECKED_IN"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	stored, err := f.repo.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, stored.Status)
	members, err := f.queue.Members(context.Background(), f.svc.scopeOf(a))
	require.NoError(t, err)
	assert.Empty(t, members)

	rec = do(t, newTestRouter(h, reception), http.MethodPatch, "/appointments/"+a.ID,
		map[string]any{"status": "CHECKED_IN"})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_PatientMayCancelOwn(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, nil)
	a := f.book(t, "pat-1", day.Add(9*time.Hour))

	rec := do(t, newTestRouter(h, patientOne), http.MethodPatch, "/appointments/"+a.ID,
		map[string]any{"status": "CANCELLED"})
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := f.repo.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stored.Status)
}

func TestHandler_DoctorQueue(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, nil)
	a := f.book(t, "pat-1", day.Add(9*time.Hour))
	_, err := f.svc.CheckIn(context.Background(), reception, a.ID)
	require.NoError(t, err)

	rec := do(t, newTestRouter(h, doctorD), http.MethodGet, "/doctors/doc-d/queue?date=2026-03-09", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Queue []QueueEntry `json:"queue"`
		Count int          `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, int64(1), body.Queue[0].Position)
	assert.Equal(t, a.ID, body.Queue[0].Appointment.ID)

	rec = do(t, newTestRouter(h, patientOne), http.MethodGet, "/doctors/doc-d/queue", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, newTestRouter(h, identity.Caller{UserID: "doc-other", Role: identity.RoleDoctor}), http.MethodGet, "/doctors/doc-d/queue", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandler_PatientAppointments(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, nil)
	f.book(t, "pat-1", day.Add(9*time.Hour))

	rec := do(t, newTestRouter(h, patientOne), http.MethodGet, "/patients/pat-1/appointments", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, newTestRouter(h, patientTwo), http.MethodGet, "/patients/pat-1/appointments", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, newTestRouter(h, identity.Caller{UserID: "doc-other", Role: identity.RoleDoctor}), http.MethodGet, "/patients/pat-1/appointments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 0, body.Count)
}
