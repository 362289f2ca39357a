package membership

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository defines the interface for membership storage.
type Repository interface {
	// ListForUser returns every membership for the user, active or not.
	ListForUser(ctx context.Context, userID string) ([]Membership, error)
	// ListForClinic returns every membership under a clinic, for staff
	// administration.
	ListForClinic(ctx context.Context, clinicID string) ([]Membership, error)
	// Get returns the membership for a user/clinic pair regardless of state.
	Get(ctx context.Context, userID, clinicID string) (*Membership, error)
	Grant(ctx context.Context, m *Membership) error
	// Revoke flips has_relationship off; the row is kept so the membership
	// stays visible in listings.
	Revoke(ctx context.Context, userID, clinicID string) error
	ChangeRole(ctx context.Context, userID, clinicID, role string) error
}

type memKey struct{ userID, clinicID string }

// InMemoryRepository stores memberships in memory, used in tests and local runs.
type InMemoryRepository struct {
	mu      sync.RWMutex
	entries map[memKey]*Membership
}

// NewInMemoryRepository creates a new in-memory membership repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{entries: make(map[memKey]*Membership)}
}

// ListForUser returns the user's memberships ordered by join time.
func (r *InMemoryRepository) ListForUser(ctx context.Context, userID string) ([]Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Membership
	for key, m := range r.entries {
		if key.userID == userID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

// ListForClinic returns the clinic's memberships ordered by join time.
func (r *InMemoryRepository) ListForClinic(ctx context.Context, clinicID string) ([]Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Membership
	for key, m := range r.entries {
		if key.clinicID == clinicID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

// Get returns the membership for a user/clinic pair.
func (r *InMemoryRepository) Get(ctx context.Context, userID, clinicID string) (*Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.entries[memKey{userID, clinicID}]
	if !ok {
		return nil, ErrNotFound
	}
	out := *m
	return &out, nil
}

// Grant adds a membership. One role per user per clinic.
func (r *InMemoryRepository) Grant(ctx context.Context, m *Membership) error {
	if !ValidRole(m.Role) {
		return ErrInvalidRole
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := memKey{m.UserID, m.ClinicID}
	if existing, ok := r.entries[key]; ok && existing.HasRelationship {
		return ErrAlreadyMember
	}
	stored := *m
	stored.HasRelationship = true
	if stored.JoinedAt.IsZero() {
		stored.JoinedAt = time.Now().UTC()
	}
	r.entries[key] = &stored
	return nil
}

// Revoke deactivates a membership without deleting it.
func (r *InMemoryRepository) Revoke(ctx context.Context, userID, clinicID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.entries[memKey{userID, clinicID}]
	if !ok {
		return ErrNotFound
	}
	m.HasRelationship = false
	return nil
}

// ChangeRole updates the role on an active membership.
func (r *InMemoryRepository) ChangeRole(ctx context.Context, userID, clinicID, role string) error {
	if !ValidRole(role) {
		return ErrInvalidRole
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.entries[memKey{userID, clinicID}]
	if !ok {
		return ErrNotFound
	}
	if !m.HasRelationship {
		return ErrNotActive
	}
	m.Role = role
	return nil
}
