package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/quill/pkg/auth"
	"github.com/platinummonkey/quill/pkg/httputil"
	"github.com/platinummonkey/quill/pkg/middleware"
	"github.com/platinummonkey/quill/pkg/observability"
)

// Server wires the handlers, authorization pipelines, and routes
type Server struct {
	router  *mux.Router
	logger  *observability.Logger
	metrics *observability.Metrics

	auth    *AuthHandlers
	notes   *NoteHandlers
	billing *BillingHandlers

	tokens       TokenIssuer
	users        UserDirectory
	accounts     AccountDirectory
	loginLimiter *middleware.LoginRateLimiter
	health       *observability.HealthChecker
}

// Deps carries the constructed services the server depends on.
// LoginLimiter and Health are optional.
type Deps struct {
	Users        UserDirectory
	Accounts     AccountDirectory
	Hasher       *auth.PasswordHasher
	Tokens       TokenIssuer
	Notes        NoteService
	Billing      BillingService
	LoginLimiter *middleware.LoginRateLimiter
	Health       *observability.HealthChecker
	Logger       *observability.Logger
	Metrics      *observability.Metrics
}

// NewServer creates the API server and sets up all routes
func NewServer(deps Deps) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		logger:       deps.Logger,
		metrics:      deps.Metrics,
		tokens:       deps.Tokens,
		users:        deps.Users,
		accounts:     deps.Accounts,
		loginLimiter: deps.LoginLimiter,
		health:       deps.Health,
	}
	s.auth = NewAuthHandlers(deps.Users, deps.Accounts, deps.Hasher, deps.Tokens, deps.Logger, deps.Metrics)
	s.notes = NewNoteHandlers(deps.Notes, deps.Logger, deps.Metrics)
	s.billing = NewBillingHandlers(deps.Billing, deps.Logger, deps.Metrics)

	s.setupRoutes()
	return s
}

// Router returns the configured handler for serving
func (s *Server) Router() http.Handler {
	return s.router
}

// countTokenRejections wraps the authenticate stage so rejected tokens are
// visible in metrics
func countTokenRejections(metrics *observability.Metrics, stage middleware.Stage) middleware.Stage {
	return func(ctx context.Context, r *http.Request) (context.Context, *middleware.Failure) {
		ctx, failure := stage(ctx, r)
		if failure != nil {
			metrics.TokenRejectionsTotal.WithLabelValues(failure.Message).Inc()
		}
		return ctx, failure
	}
}

func (s *Server) setupRoutes() {
	s.router.Use(httputil.RequestIDMiddleware)
	s.router.Use(httputil.RecoveryMiddleware)
	s.router.Use(httputil.LoggingMiddleware)
	s.router.Use(observability.HTTPMetricsMiddleware(s.metrics))

	authenticate := countTokenRejections(s.metrics, middleware.Authenticate(s.tokens, s.users))

	// Base chain shared by tenant-scoped routes: authenticate, bind the
	// tenant filter, reject suspended or deleted accounts.
	authed := func(extra ...middleware.Stage) func(http.Handler) http.Handler {
		stages := []middleware.Stage{
			authenticate,
			middleware.ResolveTenant(s.accounts),
			middleware.AccountStatus(),
		}
		return middleware.Pipeline(append(stages, extra...)...)
	}

	// Auth routes
	s.router.HandleFunc("/auth/register", s.auth.Register).Methods("POST")

	login := http.HandlerFunc(s.auth.Login)
	if s.loginLimiter != nil {
		s.router.Handle("/auth/login", s.loginLimiter.Middleware(login)).Methods("POST")
	} else {
		s.router.Handle("/auth/login", login).Methods("POST")
	}

	s.router.Handle("/auth/profile", authed()(http.HandlerFunc(s.auth.Profile))).Methods("GET")
	s.router.Handle("/auth/invite",
		authed(middleware.RequireRole(auth.RoleAdmin))(http.HandlerFunc(s.auth.Invite))).Methods("POST")
	s.router.Handle("/auth/change-password", authed()(http.HandlerFunc(s.auth.ChangePassword))).Methods("POST")
	s.router.Handle("/auth/logout", authed()(http.HandlerFunc(s.auth.Logout))).Methods("POST")

	// Note routes. Non-admins are restricted to their own notes via the
	// ownership stage; my-notes forces the owner scope for everyone.
	s.router.Handle("/notes",
		authed(middleware.RequirePermission(auth.PermissionNotesCreate))(http.HandlerFunc(s.notes.Create))).Methods("POST")
	s.router.Handle("/notes",
		authed(
			middleware.RequirePermission(auth.PermissionNotesRead),
			middleware.RestrictToOwner(),
		)(http.HandlerFunc(s.notes.List))).Methods("GET")
	s.router.Handle("/notes/my-notes",
		authed(middleware.RequirePermission(auth.PermissionNotesRead))(http.HandlerFunc(s.notes.MyNotes))).Methods("GET")
	s.router.Handle("/notes/{id:[0-9]+}",
		authed(
			middleware.RequirePermission(auth.PermissionNotesRead),
			middleware.RestrictToOwner(),
		)(http.HandlerFunc(s.notes.Get))).Methods("GET")
	s.router.Handle("/notes/{id:[0-9]+}",
		authed(
			middleware.RequirePermission(auth.PermissionNotesUpdate),
			middleware.RestrictToOwner(),
		)(http.HandlerFunc(s.notes.Update))).Methods("PUT")
	s.router.Handle("/notes/{id:[0-9]+}",
		authed(
			middleware.RequirePermission(auth.PermissionNotesDelete),
			middleware.RestrictToOwner(),
		)(http.HandlerFunc(s.notes.Delete))).Methods("DELETE")

	// Subscription routes
	s.router.HandleFunc("/subscription/plans", s.billing.Plans).Methods("GET")
	s.router.Handle("/subscription", authed()(http.HandlerFunc(s.billing.Subscription))).Methods("GET")
	s.router.Handle("/subscription/tenants/{accountSlug}/upgrade",
		middleware.Pipeline(
			authenticate,
			middleware.ResolveTenantBySlug(s.accounts),
			middleware.AccountStatus(),
			middleware.RequireRole(auth.RoleAdmin),
		)(http.HandlerFunc(s.billing.Upgrade))).Methods("POST")
	s.router.Handle("/subscription/verify-payment",
		authed(middleware.RequireRole(auth.RoleAdmin))(http.HandlerFunc(s.billing.VerifyPayment))).Methods("POST")
	s.router.Handle("/subscription/payments", authed()(http.HandlerFunc(s.billing.Payments))).Methods("GET")
	s.router.Handle("/subscription/cancel",
		authed(middleware.RequireRole(auth.RoleAdmin))(http.HandlerFunc(s.billing.Cancel))).Methods("POST")

	// Health routes
	if s.health != nil {
		s.router.HandleFunc("/health", s.health.Liveness).Methods("GET")
		s.router.HandleFunc("/health/detailed", s.health.Readiness).Methods("GET")
	}
}
