package clinics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores clinics in the relational database.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("clinics: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

// Create inserts a new clinic row.
func (r *PostgresRepository) Create(ctx context.Context, clinic *Clinic) (*Clinic, error) {
	id := clinic.ID
	if id == "" {
		id = uuid.NewString()
	}
	query := `
		INSERT INTO clinics (id, name, name_ar, code, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	var createdAt time.Time
	if err := r.pool.QueryRow(ctx, query,
		id,
		clinic.Name,
		clinic.NameAr,
		clinic.Code,
		clinic.Active,
	).Scan(&createdAt); err != nil {
		return nil, fmt.Errorf("clinics: insert failed: %w", err)
	}

	out := *clinic
	out.ID = id
	out.CreatedAt = createdAt
	return &out, nil
}

// GetByID fetches a clinic by id.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Clinic, error) {
	query := `
		SELECT id, name, name_ar, code, active, created_at
		FROM clinics
		WHERE id = $1
	`
	var c Clinic
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.Name,
		&c.NameAr,
		&c.Code,
		&c.Active,
		&c.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClinicNotFound
		}
		return nil, fmt.Errorf("clinics: query failed: %w", err)
	}
	return &c, nil
}

// List returns all clinics ordered by code.
func (r *PostgresRepository) List(ctx context.Context) ([]Clinic, error) {
	query := `
		SELECT id, name, name_ar, code, active, created_at
		FROM clinics
		ORDER BY code
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("clinics: list failed: %w", err)
	}
	defer rows.Close()

	var out []Clinic
	for rows.Next() {
		var c Clinic
		if err := rows.Scan(&c.ID, &c.Name, &c.NameAr, &c.Code, &c.Active, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("clinics: scan failed: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("clinics: rows failed: %w", err)
	}
	return out, nil
}
