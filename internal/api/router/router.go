package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/waylio/waylio-platform/internal/appointments"
	"github.com/waylio/waylio-platform/internal/audit"
	httpmiddleware "github.com/waylio/waylio-platform/internal/http/middleware"
	"github.com/waylio/waylio-platform/internal/identity"
	"github.com/waylio/waylio-platform/internal/notify"
	"github.com/waylio/waylio-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger *logging.Logger
	Tokens httpmiddleware.TokenVerifier

	IdentityHandler     *identity.Handler
	AppointmentsHandler *appointments.Handler
	NotifyHandler       *notify.Handler
	// AuditHandler is nil when no SQL database is configured.
	AuditHandler *audit.Handler
	// RealtimeHandler serves the WebSocket upgrade at /ws.
	RealtimeHandler http.Handler
	MetricsHandler  http.Handler
	HealthChecks    map[string]HealthCheck

	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(logger))

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.HealthChecks, 2*time.Second))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.RealtimeHandler != nil {
			public.Handle("/ws", cfg.RealtimeHandler)
		}
		public.Route("/auth", func(auth chi.Router) {
			if cfg.RateLimitRPS > 0 {
				auth.Use(httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, logger))
			}
			auth.Post("/login", cfg.IdentityHandler.Login)
			auth.Post("/refresh", cfg.IdentityHandler.Refresh)
			auth.Post("/register", cfg.IdentityHandler.Register)
		})
	})

	staff := []identity.Role{identity.RoleReception, identity.RoleAdmin}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(httpmiddleware.Authenticate(cfg.Tokens, logger))

		api.Route("/me", func(me chi.Router) {
			me.Get("/", cfg.IdentityHandler.Me)
			me.Post("/password", cfg.IdentityHandler.ChangePassword)
			me.Put("/push-token", cfg.IdentityHandler.SetPushToken)
		})
		api.Get("/doctors", cfg.IdentityHandler.ListDoctors)

		api.Route("/appointments", func(ap chi.Router) {
			ap.Post("/", cfg.AppointmentsHandler.Book)
			ap.Get("/mine", cfg.AppointmentsHandler.Mine)
			ap.Route("/{appointmentID}", func(one chi.Router) {
				one.Get("/", cfg.AppointmentsHandler.Get)
				one.Patch("/", cfg.AppointmentsHandler.UpdateStatus)
				one.Post("/check-in", cfg.AppointmentsHandler.CheckIn)
				one.With(httpmiddleware.RequireRole(logger, staff...)).Post("/no-show", cfg.AppointmentsHandler.NoShow)
			})
		})

		api.Route("/doctors/{doctorID}", func(doc chi.Router) {
			doc.Use(httpmiddleware.RequireRole(logger, identity.RoleDoctor, identity.RoleReception, identity.RoleAdmin))
			doc.Get("/queue", cfg.AppointmentsHandler.DoctorQueue)
			doc.Get("/appointments", cfg.AppointmentsHandler.DoctorAppointments)
		})
		api.Get("/patients/{patientID}/appointments", cfg.AppointmentsHandler.PatientAppointments)
	})

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.Authenticate(cfg.Tokens, logger))

		admin.With(httpmiddleware.RequireRole(logger, staff...)).Get("/stats", cfg.AppointmentsHandler.Stats)

		admin.Group(func(only chi.Router) {
			only.Use(httpmiddleware.RequireRole(logger, identity.RoleAdmin))
			only.Route("/users", func(users chi.Router) {
				users.Get("/", cfg.IdentityHandler.ListUsers)
				users.Post("/", cfg.IdentityHandler.CreateStaff)
				users.Post("/{userID}/deactivate", cfg.IdentityHandler.Deactivate)
				users.Post("/{userID}/activate", cfg.IdentityHandler.Activate)
				users.Post("/{userID}/reset-password", cfg.IdentityHandler.ResetPassword)
			})
			if cfg.NotifyHandler != nil {
				only.Route("/notifications", func(n chi.Router) {
					n.Get("/templates", cfg.NotifyHandler.ListTemplates)
					n.Put("/templates/{name}", cfg.NotifyHandler.UpsertTemplate)
					n.Get("/logs", cfg.NotifyHandler.ListLogs)
					n.Post("/send", cfg.NotifyHandler.Send)
				})
			}
			if cfg.AuditHandler != nil {
				only.Get("/audit-logs", cfg.AuditHandler.List)
			}
		})
	})

	return r
}
