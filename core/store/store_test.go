package store_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"crisishub/config"
	"crisishub/core/store"
	"crisishub/core/utils"
)

func setupDB(t *testing.T) (context.Context, *sql.DB) {
	t.Helper()
	cfg := &config.AppConfig{
		DBDriver: "sqlite",
		DBURL:    filepath.Join(t.TempDir(), "test.db"),
	}
	logger := utils.NewLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	if err := store.ApplyMigrations(ctx, db, cfg, logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return ctx, db
}

func seedUser(t *testing.T, ctx context.Context, us store.UsersStore, username, role string) *store.User {
	t.Helper()
	u := &store.User{
		Username:     username,
		Email:        username + "@example.org",
		FullName:     "Test " + username,
		PasswordHash: "x",
		Role:         role,
		Active:       true,
	}
	if _, err := us.Create(ctx, u); err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
	return u
}

func TestUsersUniqueConstraints(t *testing.T) {
	ctx, db := setupDB(t)
	us := store.NewUsersStore(db)

	seedUser(t, ctx, us, "casey", store.RoleUser)

	dup := &store.User{Username: "casey", Email: "other@example.org", FullName: "Dup", PasswordHash: "x", Role: store.RoleUser, Active: true}
	if _, err := us.Create(ctx, dup); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("duplicate username err = %v, want ErrConflict", err)
	}
	dup = &store.User{Username: "casey2", Email: "casey@example.org", FullName: "Dup", PasswordHash: "x", Role: store.RoleUser, Active: true}
	if _, err := us.Create(ctx, dup); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("duplicate email err = %v, want ErrConflict", err)
	}
}

func TestUsersLookupIsCaseInsensitive(t *testing.T) {
	ctx, db := setupDB(t)
	us := store.NewUsersStore(db)
	seedUser(t, ctx, us, "casey", store.RoleUser)

	u, err := us.FindByUsername(ctx, "  Casey ")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if u == nil || u.Username != "casey" {
		t.Fatalf("lookup with mixed case failed: %+v", u)
	}
	missing, err := us.FindByUsername(ctx, "nobody")
	if err != nil {
		t.Fatalf("find missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown username")
	}
}

func TestUsersUpdateAndSetActive(t *testing.T) {
	ctx, db := setupDB(t)
	us := store.NewUsersStore(db)
	u := seedUser(t, ctx, us, "casey", store.RoleUser)

	u.Role = store.RoleRescueTeam
	u.FullName = "Casey Promoted"
	if err := us.Update(ctx, u); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := us.GetByID(ctx, u.ID)
	if got.Role != store.RoleRescueTeam || got.FullName != "Casey Promoted" {
		t.Fatalf("update not persisted: %+v", got)
	}

	if err := us.SetActive(ctx, u.ID, false); err != nil {
		t.Fatalf("set active: %v", err)
	}
	got, _ = us.GetByID(ctx, u.ID)
	if got.Active {
		t.Fatalf("user still active after deactivation")
	}
	if err := us.SetActive(ctx, 9999, false); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing user err = %v, want ErrNotFound", err)
	}
}

func TestIncidentEventOrdering(t *testing.T) {
	ctx, db := setupDB(t)
	us := store.NewUsersStore(db)
	is := store.NewIncidentsStore(db)
	u := seedUser(t, ctx, us, "casey", store.RoleUser)

	inc := &store.Incident{
		Title:        "Gas smell near the market",
		Description:  "Strong gas odor reported by several passersby",
		IncidentType: "utility",
		Priority:     store.PriorityMedium,
		Address:      "Market Square 1",
		ReportedBy:   u.ID,
	}
	id, err := is.Create(ctx, inc)
	if err != nil {
		t.Fatalf("create incident: %v", err)
	}

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO incident_events(incident_id, old_status, new_status, notes, updated_by, created_at)
			VALUES($1,$2,$3,$4,$5,$6)`,
			id, store.StatusPending, store.StatusPending, "note", u.ID, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("insert event: %v", err)
		}
	}
	events, err := is.ListEvents(ctx, id)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].CreatedAt.After(events[i-1].CreatedAt) {
			t.Fatalf("events not in newest-first order")
		}
	}
}

func TestIncidentFilters(t *testing.T) {
	ctx, db := setupDB(t)
	us := store.NewUsersStore(db)
	is := store.NewIncidentsStore(db)
	reporter := seedUser(t, ctx, us, "casey", store.RoleUser)
	other := seedUser(t, ctx, us, "riley", store.RoleUser)
	team := seedUser(t, ctx, us, "team1", store.RoleRescueTeam)

	mk := func(title, status, priority string, reportedBy int64, assigned *int64) {
		inc := &store.Incident{
			Title:          title,
			Description:    "description long enough for storage",
			IncidentType:   "other",
			Priority:       priority,
			Status:         status,
			Address:        "Somewhere 1",
			ReportedBy:     reportedBy,
			AssignedTeamID: assigned,
		}
		if _, err := is.Create(ctx, inc); err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
	}
	mk("Incident one", store.StatusPending, store.PriorityLow, reporter.ID, nil)
	mk("Incident two", store.StatusInProgress, store.PriorityHigh, reporter.ID, &team.ID)
	mk("Incident three", store.StatusResolved, store.PriorityHigh, other.ID, &team.ID)
	mk("Incident four", store.StatusClosed, store.PriorityCritical, other.ID, nil)

	count := func(f store.IncidentFilter) int {
		n, err := is.Count(ctx, f)
		if err != nil {
			t.Fatalf("count %+v: %v", f, err)
		}
		return n
	}
	if got := count(store.IncidentFilter{}); got != 4 {
		t.Fatalf("all = %d, want 4", got)
	}
	if got := count(store.IncidentFilter{ReportedBy: reporter.ID}); got != 2 {
		t.Fatalf("by reporter = %d, want 2", got)
	}
	if got := count(store.IncidentFilter{AssignedTo: team.ID}); got != 2 {
		t.Fatalf("by team = %d, want 2", got)
	}
	if got := count(store.IncidentFilter{Unassigned: true, OpenOnly: true}); got != 1 {
		t.Fatalf("unassigned open = %d, want 1", got)
	}
	if got := count(store.IncidentFilter{Priority: store.PriorityHigh}); got != 2 {
		t.Fatalf("high = %d, want 2", got)
	}
	if got := count(store.IncidentFilter{Status: store.StatusPending}); got != 1 {
		t.Fatalf("pending = %d, want 1", got)
	}

	items, err := is.List(ctx, store.IncidentFilter{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("limited list = %d, want 2", len(items))
	}
}

func TestIncidentGroupCounts(t *testing.T) {
	ctx, db := setupDB(t)
	us := store.NewUsersStore(db)
	is := store.NewIncidentsStore(db)
	u := seedUser(t, ctx, us, "casey", store.RoleUser)

	for _, typ := range []string{"fire", "fire", "medical"} {
		inc := &store.Incident{
			Title:        "Grouped incident " + typ,
			Description:  "description long enough for storage",
			IncidentType: typ,
			Priority:     store.PriorityMedium,
			Address:      "Somewhere 1",
			ReportedBy:   u.ID,
		}
		if _, err := is.Create(ctx, inc); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	byType, err := is.CountByType(ctx)
	if err != nil {
		t.Fatalf("count by type: %v", err)
	}
	got := map[string]int{}
	for _, sc := range byType {
		got[sc.Key] = sc.Count
	}
	if got["fire"] != 2 || got["medical"] != 1 {
		t.Fatalf("by type = %v", got)
	}

	byMonth, err := is.CountByMonth(ctx, 3)
	if err != nil {
		t.Fatalf("count by month: %v", err)
	}
	total := 0
	for _, mc := range byMonth {
		total += mc.Count
	}
	if total != 3 {
		t.Fatalf("month total = %d, want 3", total)
	}
}

func TestSessionsLifecycle(t *testing.T) {
	ctx, db := setupDB(t)
	us := store.NewUsersStore(db)
	ss := store.NewSessionsStore(db)
	u := seedUser(t, ctx, us, "casey", store.RoleUser)

	now := time.Now().UTC()
	rec := &store.SessionRecord{
		ID:         "sess-1",
		UserID:     u.ID,
		Username:   u.Username,
		Role:       u.Role,
		CSRFToken:  "token",
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(time.Hour),
	}
	if err := ss.SaveSession(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := ss.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.UserID != u.ID || got.CSRFToken != "token" {
		t.Fatalf("session roundtrip: %+v", got)
	}

	if err := ss.DeleteUserSessions(ctx, u.ID); err != nil {
		t.Fatalf("delete user sessions: %v", err)
	}
	if got, _ := ss.GetSession(ctx, "sess-1"); got != nil {
		t.Fatalf("session survived user-wide delete")
	}
}

func TestExpiredSessionIsGone(t *testing.T) {
	ctx, db := setupDB(t)
	us := store.NewUsersStore(db)
	ss := store.NewSessionsStore(db)
	u := seedUser(t, ctx, us, "casey", store.RoleUser)

	now := time.Now().UTC()
	rec := &store.SessionRecord{
		ID:         "sess-old",
		UserID:     u.ID,
		Username:   u.Username,
		Role:       u.Role,
		CSRFToken:  "token",
		CreatedAt:  now.Add(-2 * time.Hour),
		LastSeenAt: now.Add(-2 * time.Hour),
		ExpiresAt:  now.Add(-time.Hour),
	}
	if err := ss.SaveSession(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got, err := ss.GetSession(ctx, "sess-old"); err != nil || got != nil {
		t.Fatalf("expired session returned: %+v err=%v", got, err)
	}
	deleted, err := ss.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	// GetSession already reaped it, so the sweep finds nothing left
	if deleted != 0 {
		t.Fatalf("deleted = %d, want 0", deleted)
	}
}

func TestActiveResourceAssignmentIndex(t *testing.T) {
	ctx, db := setupDB(t)
	us := store.NewUsersStore(db)
	is := store.NewIncidentsStore(db)
	rs := store.NewResourcesStore(db)
	u := seedUser(t, ctx, us, "casey", store.RoleUser)

	inc := &store.Incident{
		Title:        "Flooded underpass",
		Description:  "Water level rising under the bridge",
		IncidentType: "natural_disaster",
		Priority:     store.PriorityHigh,
		Address:      "Bridge Road",
		ReportedBy:   u.ID,
	}
	incID, err := is.Create(ctx, inc)
	if err != nil {
		t.Fatalf("create incident: %v", err)
	}
	res := &store.Resource{Name: "Pump 1", ResourceType: store.ResourceTypeEquipment, AvailabilityStatus: store.AvailabilityAvailable}
	resID, err := rs.Create(ctx, res)
	if err != nil {
		t.Fatalf("create resource: %v", err)
	}

	now := time.Now().UTC()
	insert := func() error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO incident_resources(incident_id, resource_id, assigned_at)
			VALUES($1,$2,$3)`, incID, resID, now)
		return err
	}
	if err := insert(); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err = insert()
	if err == nil {
		t.Fatalf("second active assignment accepted, want unique violation")
	}
	if !store.IsUniqueViolation(err) {
		t.Fatalf("err = %v, not recognized as unique violation", err)
	}

	// releasing the first row frees the slot for a new assignment
	if _, err := db.ExecContext(ctx, `UPDATE incident_resources SET released_at=$1 WHERE incident_id=$2 AND resource_id=$3`,
		now, incID, resID); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := insert(); err != nil {
		t.Fatalf("insert after release: %v", err)
	}
}
