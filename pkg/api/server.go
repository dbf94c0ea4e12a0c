package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/caregate/caregate/pkg/audit"
	"github.com/caregate/caregate/pkg/authz"
	"github.com/caregate/caregate/pkg/middleware"
	"github.com/caregate/caregate/pkg/ratelimit"
	"github.com/caregate/caregate/pkg/token"
)

// Server is the portal HTTP surface.
type Server struct {
	router   *mux.Router
	pipeline *middleware.Pipeline
	auth     *AuthHandlers
	portal   *PortalHandlers
	admin    *AdminHandlers
}

// NewServer wires handlers and routes through the pipeline.
func NewServer(pipeline *middleware.Pipeline, credentials CredentialStore, directory Directory, bruteForce *ratelimit.BruteForce) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		pipeline: pipeline,
		auth:     NewAuthHandlers(pipeline.Codec, credentials, bruteForce, pipeline.Metrics),
		portal:   NewPortalHandlers(directory),
		admin:    NewAdminHandlers(pipeline.Blocklist),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all portal routes with their gate lists and
// rate-limit policies.
func (s *Server) setupRoutes() {
	patientOwner := func(r *http.Request) string { return mux.Vars(r)["patientId"] }

	// Authentication routes: public, throttled per (ip, email) by the auth
	// policy, which only counts failed attempts.
	s.handle("/auth/login", s.auth.login, middleware.Route{
		Gates:    []authz.Gate{authz.Public()},
		Policy:   ratelimit.PolicyAuth,
		Resource: audit.ResourceToken,
		Action:   audit.ActionAuthLogin,
	}, http.MethodPost)
	s.handle("/auth/refresh", s.auth.refresh, middleware.Route{
		Gates:    []authz.Gate{authz.Public()},
		Policy:   ratelimit.PolicyAuth,
		Resource: audit.ResourceToken,
		Action:   audit.ActionAuthRefresh,
	}, http.MethodPost)
	s.handle("/auth/logout", s.auth.logout, middleware.Route{
		Gates:    []authz.Gate{authz.Authenticated()},
		Resource: audit.ResourceToken,
		Action:   audit.ActionAuthLogout,
	}, http.MethodPost)

	// Profile: any authenticated account, verified or not.
	s.handle("/api/v1/profile", s.portal.getProfile, middleware.Route{
		Gates:    []authz.Gate{authz.Authenticated()},
		Resource: audit.ResourcePatient,
	}, http.MethodGet)

	// Appointments: the owning patient, or clinical staff.
	appointmentGates := []authz.Gate{
		authz.Authenticated(),
		authz.OwnerOrRole(token.RoleDoctor, token.RoleAdmin),
	}
	s.handle("/api/v1/patients/{patientId}/appointments", s.portal.listAppointments, middleware.Route{
		Gates:    appointmentGates,
		OwnerID:  patientOwner,
		Resource: audit.ResourceAppointment,
	}, http.MethodGet)
	s.handle("/api/v1/patients/{patientId}/appointments", s.portal.createAppointment, middleware.Route{
		Gates:    appointmentGates,
		OwnerID:  patientOwner,
		Resource: audit.ResourceAppointment,
	}, http.MethodPost)
	s.handle("/api/v1/patients/{patientId}/appointments/{id}", s.portal.cancelAppointment, middleware.Route{
		Gates:    appointmentGates,
		OwnerID:  patientOwner,
		Resource: audit.ResourceAppointment,
	}, http.MethodDelete)

	// Prescriptions and records carry clinical data: the account must also
	// be verified.
	clinicalGates := []authz.Gate{
		authz.Authenticated(),
		authz.VerifiedOnly(),
		authz.OwnerOrRole(token.RoleDoctor, token.RoleAdmin),
	}
	s.handle("/api/v1/patients/{patientId}/prescriptions", s.portal.listPrescriptions, middleware.Route{
		Gates:    clinicalGates,
		OwnerID:  patientOwner,
		Resource: audit.ResourcePrescription,
	}, http.MethodGet)
	s.handle("/api/v1/patients/{patientId}/records", s.portal.listRecords, middleware.Route{
		Gates:    clinicalGates,
		OwnerID:  patientOwner,
		Resource: audit.ResourceRecord,
	}, http.MethodGet)

	// Admin blocklist management.
	adminGates := []authz.Gate{authz.Authenticated(), authz.Role(token.RoleAdmin)}
	s.handle("/api/v1/admin/blocklist", s.admin.blockIP, middleware.Route{
		Gates:    adminGates,
		Resource: audit.ResourceIP,
		Action:   audit.ActionAdminBlockIP,
	}, http.MethodPost)
	s.handle("/api/v1/admin/blocklist/{ip}", s.admin.unblockIP, middleware.Route{
		Gates:    adminGates,
		Resource: audit.ResourceIP,
		Action:   audit.ActionAdminUnblockIP,
	}, http.MethodDelete)
	s.handle("/api/v1/admin/blocklist/{ip}", s.admin.blockStatus, middleware.Route{
		Gates:    adminGates,
		Resource: audit.ResourceIP,
	}, http.MethodGet)
}

func (s *Server) handle(path string, handler http.HandlerFunc, route middleware.Route, methods ...string) {
	s.router.Handle(path, s.pipeline.Wrap(route, handler)).Methods(methods...)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
