package api

import (
	"net/http"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/httpusers/pkg/events"
	"github.com/platinummonkey/httpusers/pkg/httputil"
	"github.com/platinummonkey/httpusers/pkg/middleware"
	"github.com/platinummonkey/httpusers/pkg/observability"
	"github.com/platinummonkey/httpusers/pkg/orgs"
	"github.com/platinummonkey/httpusers/pkg/permissions"
	"github.com/platinummonkey/httpusers/pkg/users"
)

// Options configures a Server. Users, Orgs, Catalog and Auth are
// required; everything else may be left zero.
type Options struct {
	Users   *users.Service
	Orgs    *orgs.Service
	Catalog *permissions.Catalog
	Auth    *middleware.Authenticator
	Events  events.Emitter
	Logger  *logrus.Logger

	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer
	Health   *observability.HealthChecker

	CORSOrigins  []string
	MaxBodyBytes int64
	Tracing      bool
}

// Server represents our API server
type Server struct {
	router  *mux.Router
	handler http.Handler

	users   *users.Service
	orgs    *orgs.Service
	catalog *permissions.Catalog
	auth    *middleware.Authenticator
	events  events.Emitter
	logger  *logrus.Logger
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		users:   opts.Users,
		orgs:    opts.Orgs,
		catalog: opts.Catalog,
		auth:    opts.Auth,
		events:  opts.Events,
		logger:  opts.Logger,
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.logger == nil {
		s.logger = logrus.New()
	}

	s.router.Use(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
		httputil.RecoveryMiddleware(s.logger),
		httputil.ContentTypeMiddleware,
	)
	if opts.MaxBodyBytes > 0 {
		s.router.Use(httputil.MaxBytesMiddleware(opts.MaxBodyBytes))
	}
	if opts.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(opts.Metrics))
	}
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFoundError(w, "Not found")
	})

	s.setupOpsRoutes(opts)
	s.setupRoutes()

	var h http.Handler = s.router
	if opts.Tracing {
		h = otelhttp.NewHandler(h, "httpusers")
	}
	if len(opts.CORSOrigins) > 0 {
		h = cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", httputil.RequestIDHeader},
			ExposedHeaders:   []string{httputil.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           300,
		})(h)
	}
	s.handler = h
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router returns the underlying router, mainly for route matching in tests
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) setupOpsRoutes(opts Options) {
	if opts.Health != nil {
		s.router.HandleFunc("/healthz", opts.Health.Liveness).Methods(http.MethodGet)
		s.router.HandleFunc("/readyz", opts.Health.Readiness).Methods(http.MethodGet)
	}
	if opts.Gatherer != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(opts.Gatherer)).Methods(http.MethodGet)
	}
}

// setupRoutes configures all the API routes. Literal paths are
// registered before the parameterised ones they would otherwise shadow.
func (s *Server) setupRoutes() {
	authed := s.auth.RequireAuth
	optional := s.auth.OptionalAuth
	password := middleware.RequirePasswordAuth
	passwordWrites := middleware.PasswordAuthForWrites
	selfOrAdmin := s.auth.SelfOrPermission("username", permissions.ModifyUsers)

	// Signup and account recovery
	s.handle("/users", s.createUser).Methods(http.MethodPost)
	s.handle("/users/email/taken", s.emailTaken).Methods(http.MethodPost)
	s.handle("/users/{username}/available", s.userAvailable).Methods(http.MethodGet)
	s.handle("/users/{username}/confirm", s.confirmUser, optional).Methods(http.MethodPost)
	s.handle("/users/{username}/forgot", s.forgotPassword).Methods(http.MethodPost)

	s.handle("/auth", s.authInfo, authed).Methods(http.MethodGet)
	s.handle("/users", s.listUsers, authed, s.auth.NeedPermission(permissions.ViewAllUsers)).Methods(http.MethodGet)
	s.handle("/users/me", s.currentUser, authed).Methods(http.MethodGet)
	s.handle("/search/{partial}", s.searchUsers, authed, s.auth.NeedPermission(permissions.Search)).Methods(http.MethodGet)

	// Users
	s.handle("/users/{username}", s.userResource, authed, selfOrAdmin, passwordWrites).
		Methods(http.MethodGet, http.MethodPut, http.MethodDelete).
		Name("user")
	s.handle("/users/{username}/permissions", s.userPermissions, authed, selfOrAdmin).
		Methods(http.MethodGet)
	s.handle("/users/{username}/permissions", s.changeUserPermission, authed, password, s.auth.NeedPermission(permissions.ModifyPermissions)).
		Methods(http.MethodPut, http.MethodDelete)

	// Keys
	s.handle("/keys", s.listAllKeys, authed, s.auth.NeedPermission(permissions.ViewAllUsers)).Methods(http.MethodGet)
	s.handle("/users/{username}/keys", s.listKeys, authed, selfOrAdmin).Methods(http.MethodGet)
	s.handle("/users/{username}/keys", s.addKey, authed, selfOrAdmin, password).Methods(http.MethodPost)
	s.handle("/users/{username}/keys/{name}", s.getKey, authed, selfOrAdmin).Methods(http.MethodGet)
	s.handle("/users/{username}/keys/{name}", s.putKey, authed, selfOrAdmin, password).Methods(http.MethodPut)
	s.handle("/users/{username}/keys/{name}", s.deleteKey, authed, selfOrAdmin, password).Methods(http.MethodDelete)

	// API tokens
	s.handle("/users/{username}/tokens", s.listTokens, authed, selfOrAdmin).Methods(http.MethodGet)
	s.handle("/users/{username}/tokens", s.createToken, authed, selfOrAdmin, password).Methods(http.MethodPost)
	s.handle("/users/{username}/tokens/{id}", s.setToken, authed, selfOrAdmin, password).Methods(http.MethodPut)
	s.handle("/users/{username}/tokens/{id}", s.deleteToken, authed, selfOrAdmin, password).Methods(http.MethodDelete)

	// Third-party tokens
	s.handle("/users/{username}/thirdparty", s.listThirdParty, authed, selfOrAdmin, password).Methods(http.MethodGet)
	s.handle("/users/{username}/thirdparty", s.addThirdParty, authed, selfOrAdmin, password).Methods(http.MethodPost)
	s.handle("/users/{username}/thirdparty/{id}", s.putThirdParty, authed, selfOrAdmin, password).Methods(http.MethodPut)
	s.handle("/users/{username}/thirdparty/{id}", s.deleteThirdParty, authed, selfOrAdmin, password).Methods(http.MethodDelete)

	// Permission catalog
	s.handle("/permissions", s.listPermissions, authed).Methods(http.MethodGet)
	s.handle("/permissions", s.createPermission, authed, password, s.auth.NeedPermission(permissions.ModifyPermissions)).Methods(http.MethodPost)
	s.handle("/permissions/{name}", s.getPermission, authed).Methods(http.MethodGet)
	s.handle("/permissions/{name}", s.deletePermission, authed, password, s.auth.NeedPermission(permissions.ModifyPermissions)).Methods(http.MethodDelete)

	// Organizations
	s.handle("/organizations", s.listOrganizations, authed).Methods(http.MethodGet)
	s.handle("/organizations/{id}/available", s.organizationAvailable).Methods(http.MethodGet)
	s.handle("/organizations/{id}/members", s.organizationMembers, authed).Methods(http.MethodGet)
	s.handle("/organizations/{id}/members/{member}", s.addOrganizationMember, authed, password).Methods(http.MethodPut, http.MethodPost)
	s.handle("/organizations/{id}/members/{member}", s.removeOrganizationMember, authed, password).Methods(http.MethodDelete)
	s.handle("/organizations/{id}/owners/{owner}", s.addOrganizationOwner, authed, password).Methods(http.MethodPut, http.MethodPost)
	s.handle("/organizations/{id}/owners/{owner}", s.removeOrganizationOwner, authed, password).Methods(http.MethodDelete)
	s.handle("/organizations/{id}", s.getOrganization, authed).Methods(http.MethodGet)
	s.handle("/organizations/{id}", s.createOrganization, authed, password).Methods(http.MethodPost)
	s.handle("/organizations/{id}", s.putOrganization, authed, password).Methods(http.MethodPut)
	s.handle("/organizations/{id}", s.deleteOrganization, authed, password).Methods(http.MethodDelete)
}

// handle registers h behind guards, outermost first
func (s *Server) handle(path string, h http.HandlerFunc, guards ...func(http.Handler) http.Handler) *mux.Route {
	return s.router.Handle(path, httputil.Chain(guards...)(h))
}
