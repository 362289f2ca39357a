// Package audit records immutable security events: who logged in, who
// switched into which clinic, and which access attempts were denied.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// EventType identifies the kind of audit event.
type EventType string

const (
	EventLogin             EventType = "identity.login"
	EventLogout            EventType = "identity.logout"
	EventClinicSelected    EventType = "tenancy.clinic_selected"
	EventClinicSwitched    EventType = "tenancy.clinic_switched"
	EventSwitchDenied      EventType = "tenancy.switch_denied"
	EventAccessDenied      EventType = "guard.access_denied"
	EventMembershipGranted EventType = "membership.granted"
	EventMembershipRevoked EventType = "membership.revoked"
	EventRoleChanged       EventType = "membership.role_changed"
)

// Event represents an immutable audit record.
type Event struct {
	ID        string          `json:"id"`
	EventType EventType       `json:"event_type"`
	UserID    string          `json:"user_id"`
	ClinicID  string          `json:"clinic_id,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Service handles audit logging. A nil Service is a no-op so callers do not
// need to guard every record call.
type Service struct {
	db *sql.DB
}

// NewService creates a new audit service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Record persists an audit event.
func (s *Service) Record(ctx context.Context, event Event) error {
	if s == nil || s.db == nil {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_events (id, event_type, user_id, clinic_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.UserID,
		nullString(event.ClinicID),
		event.Details,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to record event: %w", err)
	}
	return nil
}

// RecordSwitch logs a clinic switch or initial selection.
func (s *Service) RecordSwitch(ctx context.Context, userID, clinicID, role string, initial bool) error {
	eventType := EventClinicSwitched
	if initial {
		eventType = EventClinicSelected
	}
	details, _ := json.Marshal(map[string]string{"clinic_role": role})
	return s.Record(ctx, Event{EventType: eventType, UserID: userID, ClinicID: clinicID, Details: details})
}

// RecordSwitchDenied logs a rejected switch attempt with the denial reason.
func (s *Service) RecordSwitchDenied(ctx context.Context, userID, clinicID, reason string) error {
	details, _ := json.Marshal(map[string]string{"reason": reason})
	return s.Record(ctx, Event{EventType: EventSwitchDenied, UserID: userID, ClinicID: clinicID, Details: details})
}

// RecordAccessDenied logs a role check failure on a guarded route.
func (s *Service) RecordAccessDenied(ctx context.Context, userID, clinicID, path string, requiredRoles []string) error {
	details, _ := json.Marshal(map[string]any{"path": path, "required_roles": requiredRoles})
	return s.Record(ctx, Event{EventType: EventAccessDenied, UserID: userID, ClinicID: clinicID, Details: details})
}

// List returns events filtered by type, newest first. An empty type list
// returns every event.
func (s *Service) List(ctx context.Context, eventTypes []EventType, limit int) ([]Event, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	types := make([]string, len(eventTypes))
	for i, t := range eventTypes {
		types[i] = string(t)
	}

	query := `
		SELECT id, event_type, user_id, clinic_id, details, created_at
		FROM audit_events
		WHERE cardinality($1::text[]) = 0 OR event_type = ANY($1)
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(types), limit)
	if err != nil {
		return nil, fmt.Errorf("audit: list failed: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e        Event
			clinicID sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.EventType, &e.UserID, &clinicID, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan failed: %w", err)
		}
		e.ClinicID = clinicID.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: rows failed: %w", err)
	}
	return out, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
