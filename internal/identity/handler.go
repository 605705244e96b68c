package identity

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/waylio/waylio-platform/internal/http/respond"
	"github.com/waylio/waylio-platform/pkg/logging"
)

// Handler serves authentication and account endpoints.
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

type loginRequest struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	identifier := req.Identifier
	if identifier == "" {
		identifier = req.Email
	}
	result, err := h.svc.Login(r.Context(), identifier, req.Password)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, result)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh handles POST /auth/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	pair, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, pair)
}

// Register handles POST /auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterPatientRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	u, err := h.svc.RegisterPatient(r.Context(), req)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusCreated, u)
}

// Me handles GET /api/v1/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		respond.Error(w, r, h.logger, ErrInvalidToken)
		return
	}
	u, err := h.svc.Get(r.Context(), caller.UserID)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, u)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword handles POST /api/v1/me/password.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		respond.Error(w, r, h.logger, ErrInvalidToken)
		return
	}
	var req changePasswordRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	if err := h.svc.ChangePassword(r.Context(), caller.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type pushTokenRequest struct {
	Token string `json:"token"`
}

// SetPushToken handles PUT /api/v1/me/push-token.
func (h *Handler) SetPushToken(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		respond.Error(w, r, h.logger, ErrInvalidToken)
		return
	}
	var req pushTokenRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	if err := h.svc.SetPushToken(r.Context(), caller.UserID, req.Token); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateStaff handles POST /admin/users.
func (h *Handler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	var req CreateStaffRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	account, err := h.svc.CreateStaff(r.Context(), caller, req)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusCreated, account)
}

// ListUsers handles GET /admin/users?role=DOCTOR.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	role := Role(strings.ToUpper(r.URL.Query().Get("role")))
	if role == "" {
		role = RoleDoctor
	}
	users, err := h.svc.ListByRole(r.Context(), role)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	if users == nil {
		users = []*User{}
	}
	respond.JSON(w, http.StatusOK, map[string]any{"users": users, "count": len(users)})
}

// ListDoctors handles GET /api/v1/doctors for booking screens.
func (h *Handler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListByRole(r.Context(), RoleDoctor)
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	out := make([]Summary, 0, len(users))
	for _, u := range users {
		if u.Active {
			out = append(out, u.Summary())
		}
	}
	respond.JSON(w, http.StatusOK, map[string]any{"doctors": out})
}

// Deactivate handles POST /admin/users/{userID}/deactivate.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	if err := h.svc.Deactivate(r.Context(), caller, chi.URLParam(r, "userID")); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Activate handles POST /admin/users/{userID}/activate.
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	if err := h.svc.Activate(r.Context(), caller, chi.URLParam(r, "userID")); err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResetPassword handles POST /admin/users/{userID}/reset-password.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	reset, err := h.svc.ResetPassword(r.Context(), caller, chi.URLParam(r, "userID"))
	if err != nil {
		respond.Error(w, r, h.logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, reset)
}
