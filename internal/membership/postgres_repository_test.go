package membership

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestPostgresListForUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newPostgresRepositoryWithQuerier(mock)

	joined := time.Now().UTC()
	rows := pgxmock.NewRows([]string{"user_id", "clinic_id", "role", "has_relationship", "joined_at", "name", "name_ar", "code"}).
		AddRow("user-1", "clinic-1", RoleDoctor, true, joined, "Downtown Clinic", "عيادة وسط المدينة", "DT01").
		AddRow("user-1", "clinic-2", RoleNurse, false, joined, "Harbor Clinic", "عيادة الميناء", "HB02")
	mock.ExpectQuery("SELECT m.user_id").WithArgs("user-1").WillReturnRows(rows)

	memberships, err := repo.ListForUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(memberships) != 2 {
		t.Fatalf("expected 2 memberships, got %d", len(memberships))
	}
	if memberships[0].ClinicCode != "DT01" || !memberships[0].HasRelationship {
		t.Fatalf("unexpected first membership %+v", memberships[0])
	}
	if memberships[1].HasRelationship {
		t.Fatal("expected second membership to be inactive")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresGrantConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newPostgresRepositoryWithQuerier(mock)

	mock.ExpectExec("INSERT INTO clinic_memberships").
		WithArgs("user-1", "clinic-1", RoleStaff).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err = repo.Grant(context.Background(), &Membership{UserID: "user-1", ClinicID: "clinic-1", Role: RoleStaff})
	if err != ErrAlreadyMember {
		t.Fatalf("expected ErrAlreadyMember, got %v", err)
	}
}

func TestPostgresRevokeMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newPostgresRepositoryWithQuerier(mock)

	mock.ExpectExec("UPDATE clinic_memberships").
		WithArgs("user-1", "clinic-9").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.Revoke(context.Background(), "user-1", "clinic-9"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresChangeRoleOnRevokedRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newPostgresRepositoryWithQuerier(mock)

	// The update targets has_relationship = TRUE, so a revoked row yields
	// zero affected rows and a follow-up lookup.
	mock.ExpectExec("UPDATE clinic_memberships").
		WithArgs("user-1", "clinic-1", RoleDoctor).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT user_id").
		WithArgs("user-1", "clinic-1").
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "clinic_id", "role", "has_relationship", "joined_at"}).
			AddRow("user-1", "clinic-1", RoleNurse, false, time.Now().UTC()))

	if err := repo.ChangeRole(context.Background(), "user-1", "clinic-1", RoleDoctor); err != ErrNotActive {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresChangeRoleMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newPostgresRepositoryWithQuerier(mock)

	mock.ExpectExec("UPDATE clinic_memberships").
		WithArgs("user-9", "clinic-1", RoleDoctor).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT user_id").
		WithArgs("user-9", "clinic-1").
		WillReturnError(pgx.ErrNoRows)

	if err := repo.ChangeRole(context.Background(), "user-9", "clinic-1", RoleDoctor); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresGrantRejectsUnknownRole(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := newPostgresRepositoryWithQuerier(mock)

	err = repo.Grant(context.Background(), &Membership{UserID: "user-1", ClinicID: "clinic-1", Role: "janitor"})
	if err != ErrInvalidRole {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}
