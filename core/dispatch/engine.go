// Package dispatch is the assignment and status-update engine: the only
// place incident state legally changes. Every operation runs inside a
// single transaction so the mutation and its incident_events row commit
// together or not at all.
package dispatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"crisishub/core/store"
	"crisishub/core/utils"
)

// Actor is the identity context supplied by the session layer. The
// engine trusts it completely; re-authentication is the caller's job.
type Actor struct {
	ID       int64
	Username string
	Role     string
}

func ActorFromSession(rec *store.SessionRecord) Actor {
	if rec == nil {
		return Actor{}
	}
	return Actor{ID: rec.UserID, Username: rec.Username, Role: rec.Role}
}

func (a Actor) isAdmin() bool {
	return a.Role == store.RoleAdmin
}

func (a Actor) isRescueTeam() bool {
	return a.Role == store.RoleRescueTeam
}

type Engine struct {
	db     *sql.DB
	audits store.AuditStore
	logger *utils.Logger
}

func NewEngine(db *sql.DB, audits store.AuditStore, logger *utils.Logger) *Engine {
	return &Engine{db: db, audits: audits, logger: logger}
}

// UpdateStatus sets the incident status and appends the matching event
// row. The actor must be the assigned rescue team or an admin. Setting
// the current status again is allowed and still recorded (old == new).
func (e *Engine) UpdateStatus(ctx context.Context, incidentID int64, actor Actor, newStatus, notes string) error {
	newStatus = strings.ToLower(strings.TrimSpace(newStatus))
	if !store.ValidStatus(newStatus) {
		return validationErr(fmt.Sprintf("unknown status %q", newStatus))
	}
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(err)
	}
	defer tx.Rollback()

	inc, err := getIncidentTx(ctx, tx, incidentID)
	if err != nil {
		return err
	}
	if !actor.isAdmin() && !(actor.isRescueTeam() && inc.AssignedTeamID != nil && *inc.AssignedTeamID == actor.ID) {
		return ErrForbidden
	}
	oldStatus := inc.Status
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE incidents SET status=$1, updated_at=$2 WHERE id=$3`,
		newStatus, now, incidentID); err != nil {
		return storeErr(err)
	}
	if err := insertEventTx(ctx, tx, incidentID, oldStatus, newStatus, notes, actor.ID, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeErr(err)
	}
	e.audits.Log(ctx, actor.Username, "incident.status_updated",
		fmt.Sprintf("incident=%d %s -> %s", incidentID, oldStatus, newStatus))
	if e.logger != nil {
		e.logger.Printf("DISPATCH status incident=%d user=%s %s -> %s", incidentID, actor.Username, oldStatus, newStatus)
	}
	return nil
}

// AssignTeam points the incident at a rescue team without touching its
// status. The event row records old == new on purpose: the event log is
// a general activity trail for the incident, not only transitions.
func (e *Engine) AssignTeam(ctx context.Context, incidentID int64, actor Actor, teamID int64, notes string) error {
	if !actor.isAdmin() {
		return ErrForbidden
	}
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(err)
	}
	defer tx.Rollback()

	inc, err := getIncidentTx(ctx, tx, incidentID)
	if err != nil {
		return err
	}
	team, err := getUserTx(ctx, tx, teamID)
	if err != nil {
		return err
	}
	if team == nil || team.Role != store.RoleRescueTeam || !team.Active {
		return validationErr("team must be an active rescue team")
	}
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE incidents SET assigned_team_id=$1, updated_at=$2 WHERE id=$3`,
		teamID, now, incidentID); err != nil {
		return storeErr(err)
	}
	if strings.TrimSpace(notes) == "" {
		notes = "Assigned to rescue team: " + team.FullName
	}
	if err := insertEventTx(ctx, tx, incidentID, inc.Status, inc.Status, notes, actor.ID, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeErr(err)
	}
	e.audits.Log(ctx, actor.Username, "incident.team_assigned",
		fmt.Sprintf("incident=%d team=%s", incidentID, team.Username))
	if e.logger != nil {
		e.logger.Printf("DISPATCH assign-team incident=%d team=%s by=%s", incidentID, team.Username, actor.Username)
	}
	return nil
}

// AcceptIncident lets a rescue team claim an unassigned incident. An
// already-assigned incident is rejected with ErrConflict and nothing is
// written.
func (e *Engine) AcceptIncident(ctx context.Context, incidentID int64, actor Actor) error {
	if !actor.isRescueTeam() {
		return ErrForbidden
	}
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(err)
	}
	defer tx.Rollback()

	inc, err := getIncidentTx(ctx, tx, incidentID)
	if err != nil {
		return err
	}
	if inc.AssignedTeamID != nil {
		return ErrConflict
	}
	team, err := getUserTx(ctx, tx, actor.ID)
	if err != nil {
		return err
	}
	if team == nil {
		return ErrForbidden
	}
	now := time.Now().UTC()
	status := inc.Status
	if status == store.StatusPending {
		status = store.StatusInProgress
	}
	if _, err := tx.ExecContext(ctx, `UPDATE incidents SET assigned_team_id=$1, status=$2, updated_at=$3 WHERE id=$4`,
		actor.ID, status, now, incidentID); err != nil {
		return storeErr(err)
	}
	notes := "Incident accepted by rescue team " + team.FullName
	if err := insertEventTx(ctx, tx, incidentID, store.StatusPending, store.StatusInProgress, notes, actor.ID, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeErr(err)
	}
	e.audits.Log(ctx, actor.Username, "incident.accepted", fmt.Sprintf("incident=%d", incidentID))
	if e.logger != nil {
		e.logger.Printf("DISPATCH accept incident=%d team=%s", incidentID, actor.Username)
	}
	return nil
}

// AssignResource attaches a resource to an incident and marks it
// in_use. Duplicate active assignments are refused: the pre-check
// catches the common case and the partial unique index on
// incident_resources backstops concurrent requests, so a racing insert
// also surfaces as ErrConflict instead of a second active row.
func (e *Engine) AssignResource(ctx context.Context, incidentID int64, actor Actor, resourceID int64, notes string) error {
	if !actor.isAdmin() {
		return ErrForbidden
	}
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(err)
	}
	defer tx.Rollback()

	inc, err := getIncidentTx(ctx, tx, incidentID)
	if err != nil {
		return err
	}
	res, err := getResourceTx(ctx, tx, resourceID)
	if err != nil {
		return err
	}
	var active int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM incident_resources
		WHERE incident_id=$1 AND resource_id=$2 AND released_at IS NULL`,
		incidentID, resourceID).Scan(&active); err != nil {
		return storeErr(err)
	}
	if active > 0 {
		return ErrConflict
	}
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO incident_resources(incident_id, resource_id, assigned_at, notes)
		VALUES($1,$2,$3,$4)`, incidentID, resourceID, now, notes); err != nil {
		if store.IsUniqueViolation(err) {
			return ErrConflict
		}
		return storeErr(err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE resources SET availability_status=$1, updated_at=$2 WHERE id=$3`,
		store.AvailabilityInUse, now, resourceID); err != nil {
		return storeErr(err)
	}
	if strings.TrimSpace(notes) == "" {
		notes = "Resource assigned: " + res.Name
	}
	if err := insertEventTx(ctx, tx, incidentID, inc.Status, inc.Status, notes, actor.ID, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeErr(err)
	}
	e.audits.Log(ctx, actor.Username, "incident.resource_assigned",
		fmt.Sprintf("incident=%d resource=%d", incidentID, resourceID))
	if e.logger != nil {
		e.logger.Printf("DISPATCH assign-resource incident=%d resource=%d by=%s", incidentID, resourceID, actor.Username)
	}
	return nil
}

// ReleaseResource ends an active assignment and returns the resource to
// the available pool.
func (e *Engine) ReleaseResource(ctx context.Context, incidentID int64, actor Actor, resourceID int64, notes string) error {
	if !actor.isAdmin() {
		return ErrForbidden
	}
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(err)
	}
	defer tx.Rollback()

	inc, err := getIncidentTx(ctx, tx, incidentID)
	if err != nil {
		return err
	}
	res, err := getResourceTx(ctx, tx, resourceID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
		UPDATE incident_resources SET released_at=$1
		WHERE incident_id=$2 AND resource_id=$3 AND released_at IS NULL`,
		now, incidentID, resourceID)
	if err != nil {
		return storeErr(err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `UPDATE resources SET availability_status=$1, updated_at=$2 WHERE id=$3`,
		store.AvailabilityAvailable, now, resourceID); err != nil {
		return storeErr(err)
	}
	if strings.TrimSpace(notes) == "" {
		notes = "Resource released: " + res.Name
	}
	if err := insertEventTx(ctx, tx, incidentID, inc.Status, inc.Status, notes, actor.ID, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeErr(err)
	}
	e.audits.Log(ctx, actor.Username, "incident.resource_released",
		fmt.Sprintf("incident=%d resource=%d", incidentID, resourceID))
	return nil
}

func getIncidentTx(ctx context.Context, tx *sql.Tx, id int64) (*store.Incident, error) {
	inc := &store.Incident{}
	err := tx.QueryRowContext(ctx, `
		SELECT id, status, assigned_team_id, reported_by FROM incidents WHERE id=$1`, id).Scan(
		&inc.ID, &inc.Status, &inc.AssignedTeamID, &inc.ReportedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storeErr(err)
	}
	return inc, nil
}

func getUserTx(ctx context.Context, tx *sql.Tx, id int64) (*store.User, error) {
	u := &store.User{}
	err := tx.QueryRowContext(ctx, `
		SELECT id, username, full_name, role, active FROM users WHERE id=$1`, id).Scan(
		&u.ID, &u.Username, &u.FullName, &u.Role, &u.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storeErr(err)
	}
	return u, nil
}

func getResourceTx(ctx context.Context, tx *sql.Tx, id int64) (*store.Resource, error) {
	r := &store.Resource{}
	err := tx.QueryRowContext(ctx, `
		SELECT id, name, availability_status FROM resources WHERE id=$1`, id).Scan(
		&r.ID, &r.Name, &r.AvailabilityStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storeErr(err)
	}
	return r, nil
}

func insertEventTx(ctx context.Context, tx *sql.Tx, incidentID int64, oldStatus, newStatus, notes string, updatedBy int64, at time.Time) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO incident_events(incident_id, old_status, new_status, notes, updated_by, created_at)
		VALUES($1,$2,$3,$4,$5,$6)`,
		incidentID, oldStatus, newStatus, notes, updatedBy, at); err != nil {
		return storeErr(err)
	}
	return nil
}
