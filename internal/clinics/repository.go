package clinics

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrClinicNotFound indicates no clinic exists for the given id.
var ErrClinicNotFound = errors.New("clinics: clinic not found")

// Repository defines the interface for clinic storage.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Clinic, error)
	Create(ctx context.Context, clinic *Clinic) (*Clinic, error)
	List(ctx context.Context) ([]Clinic, error)
}

// InMemoryRepository stores clinics in memory, used in tests and local runs.
type InMemoryRepository struct {
	mu      sync.RWMutex
	clinics map[string]*Clinic
}

// NewInMemoryRepository creates a new in-memory clinic repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{clinics: make(map[string]*Clinic)}
}

// Create stores a new clinic, assigning an id when absent.
func (r *InMemoryRepository) Create(ctx context.Context, clinic *Clinic) (*Clinic, error) {
	stored := *clinic
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	r.clinics[stored.ID] = &stored
	r.mu.Unlock()

	out := stored
	return &out, nil
}

// GetByID retrieves a clinic by id.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Clinic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clinic, ok := r.clinics[id]
	if !ok {
		return nil, ErrClinicNotFound
	}
	out := *clinic
	return &out, nil
}

// List returns all clinics ordered by code.
func (r *InMemoryRepository) List(ctx context.Context) ([]Clinic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Clinic, 0, len(r.clinics))
	for _, c := range r.clinics {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}
