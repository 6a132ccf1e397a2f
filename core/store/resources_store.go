package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

const (
	ResourceTypeVehicle   = "vehicle"
	ResourceTypeEquipment = "equipment"
	ResourceTypePersonnel = "personnel"

	AvailabilityAvailable   = "available"
	AvailabilityInUse       = "in_use"
	AvailabilityMaintenance = "maintenance"
)

func ValidResourceType(t string) bool {
	switch t {
	case ResourceTypeVehicle, ResourceTypeEquipment, ResourceTypePersonnel:
		return true
	}
	return false
}

func ValidAvailability(s string) bool {
	switch s {
	case AvailabilityAvailable, AvailabilityInUse, AvailabilityMaintenance:
		return true
	}
	return false
}

type Resource struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	ResourceType       string    `json:"resource_type"`
	Description        string    `json:"description,omitempty"`
	AvailabilityStatus string    `json:"availability_status"`
	Location           string    `json:"location,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type ResourceFilter struct {
	Type         string
	Availability string
	Limit        int
	Offset       int
}

type ResourcesStore interface {
	Create(ctx context.Context, r *Resource) (int64, error)
	Update(ctx context.Context, r *Resource) error
	GetByID(ctx context.Context, id int64) (*Resource, error)
	List(ctx context.Context, filter ResourceFilter) ([]Resource, error)
	Count(ctx context.Context) (int, error)
}

type resourcesStore struct {
	db *sql.DB
}

func NewResourcesStore(db *sql.DB) ResourcesStore {
	return &resourcesStore{db: db}
}

const resourceColumns = `id, name, resource_type, description, availability_status, location, created_at, updated_at`

func (s *resourcesStore) Create(ctx context.Context, r *Resource) (int64, error) {
	now := time.Now().UTC()
	if r.AvailabilityStatus == "" {
		r.AvailabilityStatus = AvailabilityAvailable
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO resources(name, resource_type, description, availability_status, location, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		r.Name, r.ResourceType, r.Description, r.AvailabilityStatus, r.Location, now, now).Scan(&id)
	if err != nil {
		return 0, err
	}
	r.ID = id
	r.CreatedAt = now
	r.UpdatedAt = now
	return id, nil
}

func (s *resourcesStore) Update(ctx context.Context, r *Resource) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE resources SET name=$1, resource_type=$2, description=$3, availability_status=$4, location=$5, updated_at=$6
		WHERE id=$7`,
		r.Name, r.ResourceType, r.Description, r.AvailabilityStatus, r.Location, now, r.ID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	r.UpdatedAt = now
	return nil
}

func (s *resourcesStore) GetByID(ctx context.Context, id int64) (*Resource, error) {
	r := &Resource{}
	err := s.db.QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id=$1`, id).Scan(
		&r.ID, &r.Name, &r.ResourceType, &r.Description, &r.AvailabilityStatus, &r.Location, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

func (s *resourcesStore) List(ctx context.Context, filter ResourceFilter) ([]Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources`
	var clauses []string
	var args []any
	if filter.Type != "" {
		args = append(args, filter.Type)
		clauses = append(clauses, "resource_type=$"+itoa(len(args)))
	}
	if filter.Availability != "" {
		args = append(args, filter.Availability)
		clauses = append(clauses, "availability_status=$"+itoa(len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
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
	var out []Resource
	for rows.Next() {
		r := Resource{}
		if err := rows.Scan(&r.ID, &r.Name, &r.ResourceType, &r.Description, &r.AvailabilityStatus,
			&r.Location, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *resourcesStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM resources`).Scan(&count)
	return count, err
}
