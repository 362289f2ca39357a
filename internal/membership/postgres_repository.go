package membership

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores memberships in the relational database.
type PostgresRepository struct {
	db querier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("membership: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithQuerier(db querier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ListForUser returns every membership for the user with the clinic fields
// joined in, ordered by join time.
func (r *PostgresRepository) ListForUser(ctx context.Context, userID string) ([]Membership, error) {
	query := `
		SELECT m.user_id, m.clinic_id, m.role, m.has_relationship, m.joined_at,
		       c.name, c.name_ar, c.code
		FROM clinic_memberships m
		JOIN clinics c ON c.id = m.clinic_id
		WHERE m.user_id = $1
		ORDER BY m.joined_at
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("membership: list failed: %w", err)
	}
	defer rows.Close()

	var out []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(
			&m.UserID,
			&m.ClinicID,
			&m.Role,
			&m.HasRelationship,
			&m.JoinedAt,
			&m.ClinicName,
			&m.ClinicNameAr,
			&m.ClinicCode,
		); err != nil {
			return nil, fmt.Errorf("membership: scan failed: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("membership: rows failed: %w", err)
	}
	return out, nil
}

// ListForClinic returns the clinic's memberships ordered by join time.
func (r *PostgresRepository) ListForClinic(ctx context.Context, clinicID string) ([]Membership, error) {
	query := `
		SELECT m.user_id, m.clinic_id, m.role, m.has_relationship, m.joined_at,
		       c.name, c.name_ar, c.code
		FROM clinic_memberships m
		JOIN clinics c ON c.id = m.clinic_id
		WHERE m.clinic_id = $1
		ORDER BY m.joined_at
	`
	rows, err := r.db.Query(ctx, query, clinicID)
	if err != nil {
		return nil, fmt.Errorf("membership: list failed: %w", err)
	}
	defer rows.Close()

	var out []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(
			&m.UserID,
			&m.ClinicID,
			&m.Role,
			&m.HasRelationship,
			&m.JoinedAt,
			&m.ClinicName,
			&m.ClinicNameAr,
			&m.ClinicCode,
		); err != nil {
			return nil, fmt.Errorf("membership: scan failed: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("membership: rows failed: %w", err)
	}
	return out, nil
}

// Get returns the membership for a user/clinic pair.
func (r *PostgresRepository) Get(ctx context.Context, userID, clinicID string) (*Membership, error) {
	query := `
		SELECT user_id, clinic_id, role, has_relationship, joined_at
		FROM clinic_memberships
		WHERE user_id = $1 AND clinic_id = $2
	`
	var m Membership
	if err := r.db.QueryRow(ctx, query, userID, clinicID).Scan(
		&m.UserID,
		&m.ClinicID,
		&m.Role,
		&m.HasRelationship,
		&m.JoinedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("membership: query failed: %w", err)
	}
	return &m, nil
}

// Grant inserts a membership, reactivating a previously revoked row for the
// same pair. The unique constraint keeps one role per user per clinic.
func (r *PostgresRepository) Grant(ctx context.Context, m *Membership) error {
	if !ValidRole(m.Role) {
		return ErrInvalidRole
	}
	query := `
		INSERT INTO clinic_memberships (user_id, clinic_id, role, has_relationship)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (user_id, clinic_id) DO UPDATE
		SET role = EXCLUDED.role, has_relationship = TRUE
		WHERE clinic_memberships.has_relationship = FALSE
	`
	ct, err := r.db.Exec(ctx, query, m.UserID, m.ClinicID, m.Role)
	if err != nil {
		return fmt.Errorf("membership: grant failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrAlreadyMember
	}
	return nil
}

// Revoke flips has_relationship off, keeping the row visible.
func (r *PostgresRepository) Revoke(ctx context.Context, userID, clinicID string) error {
	query := `
		UPDATE clinic_memberships
		SET has_relationship = FALSE
		WHERE user_id = $1 AND clinic_id = $2
	`
	ct, err := r.db.Exec(ctx, query, userID, clinicID)
	if err != nil {
		return fmt.Errorf("membership: revoke failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ChangeRole updates the role on an active membership.
func (r *PostgresRepository) ChangeRole(ctx context.Context, userID, clinicID, role string) error {
	if !ValidRole(role) {
		return ErrInvalidRole
	}
	query := `
		UPDATE clinic_memberships
		SET role = $3
		WHERE user_id = $1 AND clinic_id = $2 AND has_relationship = TRUE
	`
	ct, err := r.db.Exec(ctx, query, userID, clinicID, role)
	if err != nil {
		return fmt.Errorf("membership: change role failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		// The update skips revoked rows, so a zero count is ambiguous.
		m, getErr := r.Get(ctx, userID, clinicID)
		if getErr != nil {
			return getErr
		}
		if !m.HasRelationship {
			return ErrNotActive
		}
		return ErrNotFound
	}
	return nil
}
