package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/docsathi/telehealth-api/internal/appointments"
	"github.com/docsathi/telehealth-api/internal/auth"
	"github.com/docsathi/telehealth-api/internal/calls"
	httpmiddleware "github.com/docsathi/telehealth-api/internal/http/middleware"
	"github.com/docsathi/telehealth-api/internal/http/respond"
	"github.com/docsathi/telehealth-api/internal/identity"
	"github.com/docsathi/telehealth-api/internal/payments"
	"github.com/docsathi/telehealth-api/internal/profiles"
	"github.com/docsathi/telehealth-api/internal/realtime"
	"github.com/docsathi/telehealth-api/pkg/logging"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Tokens             httpmiddleware.TokenParser
	AuthHandler        *auth.Handler
	ProfilesHandler    *profiles.Handler
	AppointmentHandler *appointments.Handler
	PaymentsHandler    *payments.Handler
	CallsHandler       *calls.Handler
	RealtimeHandler    *realtime.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	RateLimiter        *httpmiddleware.RateLimiter
	HealthChecks       map[string]HealthCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	requireAuth := httpmiddleware.RequireAuth(cfg.Tokens)
	doctorOnly := httpmiddleware.RequireRole(identity.RoleDoctor)
	patientOnly := httpmiddleware.RequireRole(identity.RolePatient)

	r.Get("/health", healthHandler(cfg.HealthChecks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Websocket upgrades skip compression and the JSON rate limiter.
	if cfg.RealtimeHandler != nil {
		r.With(requireAuth).Get("/ws/appointments/{appointmentID}", cfg.RealtimeHandler.ServeAppointment)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Compress(5))
		api.Use(httpmiddleware.RateLimit(cfg.RateLimiter))

		if h := cfg.AuthHandler; h != nil {
			api.Route("/auth", func(r chi.Router) {
				r.Post("/register", h.Register)
				r.Post("/login", h.Login)
				r.With(requireAuth).Get("/me", h.Me)
			})
		}

		api.Route("/doctors", func(r chi.Router) {
			if h := cfg.ProfilesHandler; h != nil {
				r.Get("/", h.ListDoctors)
				r.With(requireAuth, doctorOnly).Put("/profile", h.UpdateDoctorProfile)
				r.Get("/{doctorID}", h.GetDoctor)
			}
			if h := cfg.AppointmentHandler; h != nil {
				r.Get("/{doctorID}/slots", h.Slots)
				r.Get("/{doctorID}/available-dates", h.AvailableDates)
				r.Get("/{doctorID}/booked-slots", h.BookedSlots)
				r.Get("/{doctorID}/quote", h.Quote)
			}
		})

		if h := cfg.ProfilesHandler; h != nil {
			api.With(requireAuth, patientOnly).Put("/patients/profile", h.UpdatePatientProfile)
			api.Route("/profile", func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/", h.GetProfile)
				r.Post("/image", h.UploadImage)
			})
		}

		if h := cfg.AppointmentHandler; h != nil {
			api.Route("/appointments", func(r chi.Router) {
				r.Use(requireAuth)
				r.With(patientOnly).Post("/", h.Book)
				r.Get("/", h.List)
				r.Route("/{appointmentID}", func(r chi.Router) {
					r.Get("/", h.Get)
					r.Patch("/status", h.UpdateStatus)
					r.Post("/join", h.Join)
					r.With(doctorOnly).Post("/complete", h.Complete)
					r.Get("/prescription.pdf", h.Prescription)
					if cfg.CallsHandler != nil {
						r.Post("/call-token", cfg.CallsHandler.RoomToken)
					}
				})
			})
		}

		if h := cfg.PaymentsHandler; h != nil {
			api.Route("/payment", func(r chi.Router) {
				// eSewa redirects the browser here without our bearer token.
				r.Get("/success-callback", h.SuccessCallback)
				r.Post("/success-callback", h.SuccessCallback)
				r.Get("/failure-callback", h.FailureCallback)
				r.Post("/failure-callback", h.FailureCallback)
				r.Get("/test-config", h.Config)

				r.Group(func(r chi.Router) {
					r.Use(requireAuth)
					r.With(patientOnly).Post("/create-order", h.CreateOrder)
					r.Post("/verify-payment", h.VerifyPayment)
					r.Get("/status/{appointmentID}", h.Status)
				})
			})
		}
	})

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := "ok"
		deps := make(map[string]string, len(checks))
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check(ctx); err != nil {
				deps[name] = err.Error()
				status = "degraded"
				continue
			}
			deps[name] = "ok"
		}

		code := http.StatusOK
		if status != "ok" {
			code = http.StatusServiceUnavailable
		}
		respond.JSON(w, code, map[string]any{"status": status, "dependencies": deps})
	}
}
