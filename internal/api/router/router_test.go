package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/waylio/waylio-platform/internal/appointments"
	"github.com/waylio/waylio-platform/internal/http/respond"
	"github.com/waylio/waylio-platform/internal/identity"
	"github.com/waylio/waylio-platform/internal/notify"
	"github.com/waylio/waylio-platform/internal/queue"
	"github.com/waylio/waylio-platform/pkg/logging"
)

type testEnv struct {
	router http.Handler
	tokens *identity.Tokens
	users  *identity.MemoryRepository
	doctor *identity.User
	checks map[string]HealthCheck
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := logging.Default()
	tokens, err := identity.NewTokens(identity.TokenConfig{AccessSecret: "access-secret", RefreshSecret: "refresh-secret"})
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	users := identity.NewMemoryRepository()
	doctor := &identity.User{Email: "house@example.com", FirstName: "Greg", LastName: "House", Role: identity.RoleDoctor, Active: true}
	if err := users.Create(context.Background(), doctor); err != nil {
		t.Fatalf("create doctor: %v", err)
	}

	identitySvc := identity.NewService(users, tokens, logger)
	apptSvc := appointments.NewService(appointments.NewMemoryRepository(), queue.NewMemoryStore(), identitySvc, nil,
		appointments.Config{Location: time.UTC}, logger)
	templates := notify.NewTemplateStore()
	logs := notify.NewMemoryLogStore()

	env := &testEnv{tokens: tokens, users: users, doctor: doctor, checks: map[string]HealthCheck{}}
	env.router = New(&Config{
		Logger:              logger,
		Tokens:              tokens,
		IdentityHandler:     identity.NewHandler(identitySvc, logger),
		AppointmentsHandler: appointments.NewHandler(apptSvc, logger),
		NotifyHandler:       notify.NewHandler(templates, logs, notify.NewDispatcher(templates, logs, nil, nil, nil, logger), logger),
		HealthChecks:        env.checks,
		CORSAllowedOrigins:  []string{"http://localhost:3000"},
	})
	return env
}

func (e *testEnv) token(t *testing.T, id string, role identity.Role) string {
	t.Helper()
	pair, err := e.tokens.Issue(&identity.User{ID: id, Email: id + "@example.com", Role: role})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return pair.AccessToken
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func TestRouterHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp healthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status 'ok', got %q", resp.Status)
	}

	env.checks["redis"] = func(ctx context.Context) error { return errors.New("connection refused") }
	rr = env.do(t, http.MethodGet, "/health", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, rr.Code)
	}
}

func TestRouterRejectsMissingToken(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/v1/appointments/mine", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
	var env2 respond.ErrorEnvelope
	if err := json.NewDecoder(rr.Body).Decode(&env2); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env2.Error.Code != "UNAUTHORIZED" || env2.Error.RequestID == "" || env2.Error.Timestamp == "" {
		t.Fatalf("unexpected envelope %+v", env2.Error)
	}
}

func TestRouterRoleGates(t *testing.T) {
	env := newTestEnv(t)
	patient := env.token(t, "pat-1", identity.RolePatient)

	if rr := env.do(t, http.MethodGet, "/admin/stats", patient, nil); rr.Code != http.StatusForbidden {
		t.Fatalf("expected patient to be forbidden from stats, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/admin/stats", env.token(t, "rec-1", identity.RoleReception), nil); rr.Code != http.StatusOK {
		t.Fatalf("expected reception to read stats, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/admin/notifications/templates", env.token(t, "rec-1", identity.RoleReception), nil); rr.Code != http.StatusForbidden {
		t.Fatalf("expected reception to be forbidden from templates, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/admin/notifications/templates", env.token(t, "adm-1", identity.RoleAdmin), nil); rr.Code != http.StatusOK {
		t.Fatalf("expected admin to list templates, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/api/v1/doctors/"+env.doctor.ID+"/queue", patient, nil); rr.Code != http.StatusForbidden {
		t.Fatalf("expected patient to be forbidden from doctor queue, got %d", rr.Code)
	}
}

func TestRouterAdminUserRoutes(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(t, "adm-1", identity.RoleAdmin)
	base := "/admin/users/" + env.doctor.ID

	if rr := env.do(t, http.MethodPost, base+"/reset-password", env.token(t, "rec-1", identity.RoleReception), nil); rr.Code != http.StatusForbidden {
		t.Fatalf("expected reception to be forbidden from password reset, got %d", rr.Code)
	}
	rr := env.do(t, http.MethodPost, base+"/reset-password", admin, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	var reset identity.PasswordReset
	if err := json.NewDecoder(rr.Body).Decode(&reset); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reset.TemporaryPassword == "" {
		t.Fatalf("expected a temporary password")
	}

	if rr := env.do(t, http.MethodPost, base+"/deactivate", admin, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("expected deactivate to return %d, got %d", http.StatusNoContent, rr.Code)
	}
	if rr := env.do(t, http.MethodPost, base+"/activate", admin, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("expected activate to return %d, got %d", http.StatusNoContent, rr.Code)
	}
	u, err := env.users.GetByID(context.Background(), env.doctor.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !u.Active {
		t.Fatalf("expected doctor to be active again")
	}
}

func TestRouterCheckInFlow(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/auth/register", "", identity.RegisterPatientRequest{
		Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace", Password: "analytical",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register: expected %d, got %d (%s)", http.StatusCreated, rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "ada@example.com", "password": "analytical"})
	if rr.Code != http.StatusOK {
		t.Fatalf("login: expected %d, got %d", http.StatusOK, rr.Code)
	}
	var login identity.LoginResult
	if err := json.NewDecoder(rr.Body).Decode(&login); err != nil {
		t.Fatalf("decode login: %v", err)
	}

	at := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	rr = env.do(t, http.MethodPost, "/api/v1/appointments", login.AccessToken, map[string]any{
		"doctorId": env.doctor.ID, "scheduledTime": at,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("book: expected %d, got %d (%s)", http.StatusCreated, rr.Code, rr.Body.String())
	}
	var booked struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&booked); err != nil {
		t.Fatalf("decode booking: %v", err)
	}

	reception := env.token(t, "rec-1", identity.RoleReception)
	rr = env.do(t, http.MethodPost, "/api/v1/appointments/"+booked.ID+"/check-in", reception, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("check-in: expected %d, got %d (%s)", http.StatusOK, rr.Code, rr.Body.String())
	}

	doctor := env.token(t, env.doctor.ID, identity.RoleDoctor)
	rr = env.do(t, http.MethodGet, "/api/v1/doctors/"+env.doctor.ID+"/queue?date=2026-03-09", doctor, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("queue: expected %d, got %d", http.StatusOK, rr.Code)
	}
	var q struct {
		Count int `json:"count"`
		Queue []struct {
			Position    int64 `json:"position"`
			Appointment struct {
				ID string `json:"id"`
			} `json:"appointment"`
		} `json:"queue"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&q); err != nil {
		t.Fatalf("decode queue: %v", err)
	}
	if q.Count != 1 || q.Queue[0].Position != 1 || q.Queue[0].Appointment.ID != booked.ID {
		t.Fatalf("unexpected queue %+v", q)
	}

	rr = env.do(t, http.MethodPost, "/api/v1/appointments/"+booked.ID+"/no-show", reception, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("no-show after check-in: expected %d, got %d", http.StatusConflict, rr.Code)
	}
}
