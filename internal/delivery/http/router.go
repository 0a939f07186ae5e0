package http

import (
	"log/slog"
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"

	"eventregistration/internal/delivery/http/controllers"
	"eventregistration/internal/delivery/http/middleware"
	"eventregistration/internal/domain"
	"eventregistration/internal/telemetry"
)

// RouterDeps are the collaborators the HTTP layer is built from.
type RouterDeps struct {
	Logger                 *slog.Logger
	Metrics                *telemetry.Metrics
	MetricsHandler         http.Handler // nil disables /metrics
	Verifier               domain.TokenVerifier
	Idempotency            middleware.IdempotencyConfig
	CORSAllowedOrigins     []string
	AuthController         *controllers.AuthController
	EventController        *controllers.EventController
	RegistrationController *controllers.RegistrationController
	HealthController       *controllers.HealthController
}

type wrapper func(http.HandlerFunc) http.HandlerFunc

func chain(h http.HandlerFunc, wrappers ...wrapper) http.HandlerFunc {
	for i := len(wrappers) - 1; i >= 0; i-- {
		h = wrappers[i](h)
	}
	return h
}

// NewRouter initializes the HTTP router with all application routes
func NewRouter(d RouterDeps) *http.ServeMux {
	mux := http.NewServeMux()

	authed := middleware.RequireAuth(d.Verifier, d.Logger)
	optional := middleware.OptionalAuth(d.Verifier)
	organizer := middleware.RequireRole(domain.RoleOrganizer)
	participant := middleware.RequireRole(domain.RoleParticipant)
	idempotent := middleware.Idempotent(d.Idempotency)

	// Auth
	mux.HandleFunc("POST /auth/signup", d.AuthController.SignUp)
	mux.HandleFunc("POST /auth/login", d.AuthController.Login)

	// Catalog
	events := d.EventController
	mux.HandleFunc("GET /events", events.ListEvents)
	mux.HandleFunc("GET /events/{eventID}", chain(events.GetEvent, optional))
	mux.HandleFunc("POST /events", chain(events.CreateEvent, authed, organizer))
	mux.HandleFunc("GET /organizer/events", chain(events.ListMyEvents, authed, organizer))
	mux.HandleFunc("PATCH /events/{eventID}", chain(events.UpdateEvent, authed, organizer))
	mux.HandleFunc("POST /events/{eventID}/publish", chain(events.PublishEvent, authed, organizer))
	mux.HandleFunc("POST /events/{eventID}/cancel", chain(events.CancelEvent, authed, organizer))
	mux.HandleFunc("DELETE /events/{eventID}", chain(events.DeleteEvent, authed, organizer))

	// Registrations
	regs := d.RegistrationController
	mux.HandleFunc("GET /events/{eventID}/availability", regs.GetAvailability)
	mux.HandleFunc("GET /events/{eventID}/registrations", chain(regs.ListEventRegistrations, authed, organizer))
	mux.HandleFunc("POST /registrations/{eventID}", chain(regs.Register, authed, participant, idempotent))
	mux.HandleFunc("DELETE /registrations/{eventID}", chain(regs.Cancel, authed, participant))
	mux.HandleFunc("GET /registrations/me", chain(regs.ListMyRegistrations, authed, participant))

	// Ops
	if d.HealthController != nil {
		mux.HandleFunc("GET /healthz", d.HealthController.Health)
	}
	if d.MetricsHandler != nil {
		mux.Handle("GET /metrics", d.MetricsHandler)
	}

	// Swagger
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	return mux
}

// NewHandler wraps the router with CORS and request logging.
func NewHandler(d RouterDeps) http.Handler {
	return middleware.CORS(d.CORSAllowedOrigins, middleware.LoggingMiddleware(d.Logger, d.Metrics, NewRouter(d)))
}
