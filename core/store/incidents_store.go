package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
	StatusClosed     = "closed"

	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

type Incident struct {
	ID             int64     `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	IncidentType   string    `json:"incident_type"`
	Priority       string    `json:"priority"`
	Status         string    `json:"status"`
	Address        string    `json:"address"`
	Latitude       *float64  `json:"latitude,omitempty"`
	Longitude      *float64  `json:"longitude,omitempty"`
	ImagePath      *string   `json:"image_path,omitempty"`
	ReportedBy     int64     `json:"reported_by"`
	AssignedTeamID *int64    `json:"assigned_team_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IncidentEvent is the append-only per-incident log. Assignment events
// record old_status == new_status; the table doubles as a generic
// activity trail, not a strict transition log.
type IncidentEvent struct {
	ID         int64     `json:"id"`
	IncidentID int64     `json:"incident_id"`
	OldStatus  string    `json:"old_status"`
	NewStatus  string    `json:"new_status"`
	Notes      string    `json:"notes,omitempty"`
	UpdatedBy  int64     `json:"updated_by"`
	CreatedAt  time.Time `json:"created_at"`
}

type IncidentResource struct {
	ID         int64      `json:"id"`
	IncidentID int64      `json:"incident_id"`
	ResourceID int64      `json:"resource_id"`
	AssignedAt time.Time  `json:"assigned_at"`
	ReleasedAt *time.Time `json:"released_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

type IncidentFilter struct {
	Status     string
	Priority   string
	ReportedBy int64
	AssignedTo int64
	Unassigned bool
	OpenOnly   bool
	Limit      int
	Offset     int
}

type StatusCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type MonthCount struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Count int `json:"count"`
}

type IncidentsStore interface {
	Create(ctx context.Context, inc *Incident) (int64, error)
	GetByID(ctx context.Context, id int64) (*Incident, error)
	List(ctx context.Context, filter IncidentFilter) ([]Incident, error)
	Count(ctx context.Context, filter IncidentFilter) (int, error)

	ListEvents(ctx context.Context, incidentID int64) ([]IncidentEvent, error)
	ListResourceAssignments(ctx context.Context, incidentID int64, activeOnly bool) ([]IncidentResource, error)

	CountByStatus(ctx context.Context) ([]StatusCount, error)
	CountByType(ctx context.Context) ([]StatusCount, error)
	CountByPriority(ctx context.Context) ([]StatusCount, error)
	CountByMonth(ctx context.Context, months int) ([]MonthCount, error)
}

type incidentsStore struct {
	db *sql.DB
}

func NewIncidentsStore(db *sql.DB) IncidentsStore {
	return &incidentsStore{db: db}
}

const incidentColumns = `id, title, description, incident_type, priority, status, address, latitude, longitude, image_path, reported_by, assigned_team_id, created_at, updated_at`

func (s *incidentsStore) Create(ctx context.Context, inc *Incident) (int64, error) {
	now := time.Now().UTC()
	if inc.Status == "" {
		inc.Status = StatusPending
	}
	if inc.Priority == "" {
		inc.Priority = PriorityMedium
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO incidents(title, description, incident_type, priority, status, address, latitude, longitude, image_path, reported_by, assigned_team_id, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING id`,
		inc.Title, inc.Description, inc.IncidentType, inc.Priority, inc.Status, inc.Address,
		inc.Latitude, inc.Longitude, inc.ImagePath, inc.ReportedBy, inc.AssignedTeamID, now, now).Scan(&id)
	if err != nil {
		return 0, err
	}
	inc.ID = id
	inc.CreatedAt = now
	inc.UpdatedAt = now
	return id, nil
}

func (s *incidentsStore) GetByID(ctx context.Context, id int64) (*Incident, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id=$1`, id)
	return scanIncident(row)
}

func scanIncident(row rowScanner) (*Incident, error) {
	inc := &Incident{}
	err := row.Scan(&inc.ID, &inc.Title, &inc.Description, &inc.IncidentType, &inc.Priority,
		&inc.Status, &inc.Address, &inc.Latitude, &inc.Longitude, &inc.ImagePath,
		&inc.ReportedBy, &inc.AssignedTeamID, &inc.CreatedAt, &inc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return inc, nil
}

func buildIncidentWhere(filter IncidentFilter, args *[]any) string {
	var clauses []string
	if filter.Status != "" {
		*args = append(*args, filter.Status)
		clauses = append(clauses, "status=$"+itoa(len(*args)))
	}
	if filter.Priority != "" {
		*args = append(*args, filter.Priority)
		clauses = append(clauses, "priority=$"+itoa(len(*args)))
	}
	if filter.ReportedBy > 0 {
		*args = append(*args, filter.ReportedBy)
		clauses = append(clauses, "reported_by=$"+itoa(len(*args)))
	}
	if filter.AssignedTo > 0 {
		*args = append(*args, filter.AssignedTo)
		clauses = append(clauses, "assigned_team_id=$"+itoa(len(*args)))
	}
	if filter.Unassigned {
		clauses = append(clauses, "assigned_team_id IS NULL")
	}
	if filter.OpenOnly {
		clauses = append(clauses, "status IN ('pending', 'in_progress')")
	}
	if len(clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}

func (s *incidentsStore) List(ctx context.Context, filter IncidentFilter) ([]Incident, error) {
	var args []any
	query := `SELECT ` + incidentColumns + ` FROM incidents` + buildIncidentWhere(filter, &args)
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + itoa(len(args))
		if filter.Offset > 0 {
			args = append(args, filter.Offset)
			query += " OFFSET $" + itoa(len(args))
		}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Incident
	for rows.Next() {
		inc := Incident{}
		if err := rows.Scan(&inc.ID, &inc.Title, &inc.Description, &inc.IncidentType, &inc.Priority,
			&inc.Status, &inc.Address, &inc.Latitude, &inc.Longitude, &inc.ImagePath,
			&inc.ReportedBy, &inc.AssignedTeamID, &inc.CreatedAt, &inc.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

func (s *incidentsStore) Count(ctx context.Context, filter IncidentFilter) (int, error) {
	var args []any
	query := `SELECT COUNT(*) FROM incidents` + buildIncidentWhere(filter, &args)
	var count int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

func (s *incidentsStore) ListEvents(ctx context.Context, incidentID int64) ([]IncidentEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, incident_id, old_status, new_status, notes, updated_by, created_at
		FROM incident_events WHERE incident_id=$1
		ORDER BY created_at DESC, id DESC`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []IncidentEvent
	for rows.Next() {
		ev := IncidentEvent{}
		if err := rows.Scan(&ev.ID, &ev.IncidentID, &ev.OldStatus, &ev.NewStatus, &ev.Notes,
			&ev.UpdatedBy, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *incidentsStore) ListResourceAssignments(ctx context.Context, incidentID int64, activeOnly bool) ([]IncidentResource, error) {
	query := `
		SELECT id, incident_id, resource_id, assigned_at, released_at, notes
		FROM incident_resources WHERE incident_id=$1`
	if activeOnly {
		query += ` AND released_at IS NULL`
	}
	query += ` ORDER BY assigned_at DESC`
	rows, err := s.db.QueryContext(ctx, query, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []IncidentResource
	for rows.Next() {
		ir := IncidentResource{}
		if err := rows.Scan(&ir.ID, &ir.IncidentID, &ir.ResourceID, &ir.AssignedAt, &ir.ReleasedAt, &ir.Notes); err != nil {
			return nil, err
		}
		out = append(out, ir)
	}
	return out, rows.Err()
}

func (s *incidentsStore) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	return s.groupCount(ctx, "status")
}

func (s *incidentsStore) CountByType(ctx context.Context) ([]StatusCount, error) {
	return s.groupCount(ctx, "incident_type")
}

func (s *incidentsStore) CountByPriority(ctx context.Context) ([]StatusCount, error) {
	return s.groupCount(ctx, "priority")
}

func (s *incidentsStore) groupCount(ctx context.Context, column string) ([]StatusCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+column+`, COUNT(*) FROM incidents GROUP BY `+column+` ORDER BY `+column)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StatusCount
	for rows.Next() {
		sc := StatusCount{}
		if err := rows.Scan(&sc.Key, &sc.Count); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// CountByMonth aggregates created incidents per calendar month over the
// trailing window. Month extraction is done in Go so the same query
// runs under both drivers.
func (s *incidentsStore) CountByMonth(ctx context.Context, months int) ([]MonthCount, error) {
	if months <= 0 {
		months = 12
	}
	since := time.Now().UTC().AddDate(0, -months, 0)
	rows, err := s.db.QueryContext(ctx, `SELECT created_at FROM incidents WHERE created_at >= $1 ORDER BY created_at`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[[2]int]int{}
	var keys [][2]int
	for rows.Next() {
		var created time.Time
		if err := rows.Scan(&created); err != nil {
			return nil, err
		}
		key := [2]int{created.Year(), int(created.Month())}
		if _, ok := counts[key]; !ok {
			keys = append(keys, key)
		}
		counts[key]++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]MonthCount, 0, len(keys))
	for _, key := range keys {
		out = append(out, MonthCount{Year: key[0], Month: key[1], Count: counts[key]})
	}
	return out, nil
}
