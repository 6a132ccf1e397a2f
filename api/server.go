package api

import (
	"context"
	"net/http"
	"time"

	"crisishub/api/handlers"
	"crisishub/config"
	"crisishub/core/auth"
	"crisishub/core/dispatch"
	"crisishub/core/rbac"
	"crisishub/core/store"
	"crisishub/core/utils"
)

type BackgroundWorker interface {
	Start() error
	Stop()
}

type ServerDeps struct {
	Users     store.UsersStore
	Sessions  store.SessionStore
	Resources store.ResourcesStore
	Incidents store.IncidentsStore
	Audits    store.AuditStore
	Engine    *dispatch.Engine
}

type Server struct {
	cfg             *config.AppConfig
	logger          *utils.Logger
	policy          *rbac.Policy
	users           store.UsersStore
	sessions        store.SessionStore
	resources       store.ResourcesStore
	incidents       store.IncidentsStore
	audits          store.AuditStore
	engine          *dispatch.Engine
	sessionManager  *auth.SessionManager
	activityTracker *sessionActivity
	loginLimiter    *requestLimiter
	httpServer      *http.Server
}

func NewServer(cfg *config.AppConfig, deps ServerDeps, policy *rbac.Policy, logger *utils.Logger) *Server {
	s := &Server{
		cfg:             cfg,
		logger:          logger,
		policy:          policy,
		users:           deps.Users,
		sessions:        deps.Sessions,
		resources:       deps.Resources,
		incidents:       deps.Incidents,
		audits:          deps.Audits,
		engine:          deps.Engine,
		activityTracker: newSessionActivity(),
		loginLimiter:    newLimiter(5, time.Minute),
	}
	s.sessionManager = auth.NewSessionManager(deps.Sessions, cfg, logger)
	return s
}

func (s *Server) newRouteHandlers() routeHandlers {
	return routeHandlers{
		auth:      handlers.NewAuthHandler(s.cfg, s.users, s.sessions, s.sessionManager, s.policy, s.audits, s.logger),
		accounts:  handlers.NewAccountsHandler(s.users, s.sessions, s.policy, s.audits, s.logger),
		resources: handlers.NewResourcesHandler(s.resources, s.audits, s.logger),
		incidents: handlers.NewIncidentsHandler(s.cfg, s.incidents, s.users, s.resources, s.engine, s.policy, s.audits, s.logger),
		dashboard: handlers.NewDashboardHandler(s.users, s.resources, s.incidents, s.logger),
	}
}

func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if s.logger != nil {
		s.logger.Printf("HTTP listening on %s", s.cfg.ListenAddr)
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
