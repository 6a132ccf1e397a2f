package appbootstrap

import (
	"database/sql"

	"crisishub/api"
	"crisishub/config"
	"crisishub/core/dispatch"
	"crisishub/core/maintenance"
	"crisishub/core/store"
	"crisishub/core/utils"
)

type runtimeComposition struct {
	serverDeps api.ServerDeps
	sessions   store.SessionStore
	workers    []api.BackgroundWorker
}

func composeRuntime(cfg *config.AppConfig, db *sql.DB, logger *utils.Logger) (*runtimeComposition, error) {
	users := store.NewUsersStore(db)
	sessions := store.NewSessionsStore(db)
	resources := store.NewResourcesStore(db)
	incidents := store.NewIncidentsStore(db)
	audits := store.NewAuditStore(db)

	engine := dispatch.NewEngine(db, audits, logger)

	var workers []api.BackgroundWorker
	if cfg.Maintenance.Enabled {
		sweeper := maintenance.NewScheduler(cfg.Maintenance, sessions, audits, logger)
		workers = append(workers, sweeper)
	}

	return &runtimeComposition{
		serverDeps: api.ServerDeps{
			Users:     users,
			Sessions:  sessions,
			Resources: resources,
			Incidents: incidents,
			Audits:    audits,
			Engine:    engine,
		},
		sessions: sessions,
		workers:  workers,
	}, nil
}
