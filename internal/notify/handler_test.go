package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdminRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/templates", h.ListTemplates)
	r.Put("/templates/{name}", h.UpsertTemplate)
	r.Get("/logs", h.ListLogs)
	r.Post("/send", h.Send)
	return r
}

func TestHandler_UpsertAndListTemplates(t *testing.T) {
	store := NewTemplateStore()
	h := NewHandler(store, NewMemoryLogStore(), nil, nil)
	router := newAdminRouter(h)

	body, _ := json.Marshal(map[string]string{"type": "sms", "body": "See you at {{scheduledTime}}"})
	req := httptest.NewRequest(http.MethodPut, "/templates/appointment_reminder", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	tmpl, err := store.Get(context.Background(), TemplateAppointmentReminder)
	require.NoError(t, err)
	assert.Equal(t, "See you at {{scheduledTime}}", tmpl.Body)

	body, _ = json.Marshal(map[string]string{"type": "EMAIL", "body": "no subject"})
	req = httptest.NewRequest(http.MethodPut, "/templates/CUSTOM", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/templates", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Templates []Template `json:"templates"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list.Templates, len(DefaultTemplates()))
}

func TestHandler_SendAndListLogs(t *testing.T) {
	logs := NewMemoryLogStore()
	sms := &recordingSMS{}
	d := NewDispatcher(NewTemplateStore(), logs, nil, sms, nil, nil)
	router := newAdminRouter(NewHandler(NewTemplateStore(), logs, d, nil))

	body, _ := json.Marshal(Request{
		Template:  TemplateAppointmentReminder,
		Recipient: Recipient{Phone: "+15550001"},
		Data:      map[string]string{"doctorName": "Dr. Doe", "scheduledTime": "9:00"},
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/send", bytes.NewReader(body)))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, "+15550001", sms.to)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs?type=sms&status=sent", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var page LogPage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Logs, 1)
	assert.Equal(t, StatusSent, page.Logs[0].Status)
}
