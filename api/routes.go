package api

import (
	"net/http"

	"crisishub/api/handlers"
	"crisishub/core/rbac"

	"github.com/go-chi/chi/v5"
)

type routeHandlers struct {
	auth      *handlers.AuthHandler
	accounts  *handlers.AccountsHandler
	resources *handlers.ResourcesHandler
	incidents *handlers.IncidentsHandler
	dashboard *handlers.DashboardHandler
}

func (s *Server) Router() http.Handler {
	h := s.newRouteHandlers()

	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(s.securityHeadersMiddleware)
	r.Use(s.loggingMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.rateLimitMiddleware(h.auth.Login))
		r.Post("/auth/register", s.rateLimitMiddleware(h.auth.Register))
		r.Post("/auth/logout", s.withSession(h.auth.Logout))
		r.Get("/auth/me", s.withSession(h.auth.Me))

		r.Route("/users", func(r chi.Router) {
			manage := s.requirePermission(rbac.PermAccountsManage)
			r.Get("/", s.withSession(manage(h.accounts.List)))
			r.Post("/", s.withSession(manage(h.accounts.Create)))
			r.Get("/rescue-teams", s.withSession(manage(h.accounts.ListRescueTeams)))
			r.Get("/{id}", s.withSession(manage(h.accounts.Get)))
			r.Put("/{id}", s.withSession(manage(h.accounts.Update)))
			r.Post("/{id}/toggle-active", s.withSession(manage(h.accounts.ToggleActive)))
		})

		r.Route("/resources", func(r chi.Router) {
			manage := s.requirePermission(rbac.PermResourcesManage)
			r.Get("/", s.withSession(manage(h.resources.List)))
			r.Post("/", s.withSession(manage(h.resources.Create)))
			r.Get("/{id}", s.withSession(manage(h.resources.Get)))
			r.Put("/{id}", s.withSession(manage(h.resources.Update)))
		})

		r.Route("/incidents", func(r chi.Router) {
			r.Post("/", s.withSession(s.requirePermission(rbac.PermIncidentsReport)(h.incidents.Create)))
			r.Get("/", s.withSession(h.incidents.List))
			r.Get("/unassigned", s.withSession(s.requirePermission(rbac.PermIncidentsAccept)(h.incidents.ListUnassigned)))
			r.Get("/{id}", s.withSession(h.incidents.Get))
			r.Get("/{id}/events", s.withSession(h.incidents.ListEvents))
			r.Get("/{id}/resources", s.withSession(s.requireAnyPermission(rbac.PermIncidentsManage, rbac.PermIncidentsViewAll)(h.incidents.ListResources)))
			r.Post("/{id}/status", s.withSession(s.requirePermission(rbac.PermIncidentsUpdateStatus)(h.incidents.UpdateStatus)))
			r.Post("/{id}/accept", s.withSession(s.requirePermission(rbac.PermIncidentsAccept)(h.incidents.Accept)))
			r.Post("/{id}/assign-team", s.withSession(s.requirePermission(rbac.PermIncidentsManage)(h.incidents.AssignTeam)))
			r.Post("/{id}/assign-resource", s.withSession(s.requirePermission(rbac.PermIncidentsManage)(h.incidents.AssignResource)))
			r.Post("/{id}/release-resource", s.withSession(s.requirePermission(rbac.PermIncidentsManage)(h.incidents.ReleaseResource)))
		})

		r.Get("/audit", s.withSession(s.requirePermission(rbac.PermAccountsManage)(h.accounts.AuditLog)))

		r.Get("/dashboard/summary", s.withSession(h.dashboard.Summary))
		r.Get("/dashboard/analytics", s.withSession(s.requirePermission(rbac.PermDashboardAdmin)(h.dashboard.Analytics)))
	})

	return r
}
