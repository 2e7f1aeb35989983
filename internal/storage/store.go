package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/example/ride-notify/internal/models"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("not found")

// DocumentStore is the read model the engine consults, plus the single
// write it is allowed to make: clearing a stale delivery token.
type DocumentStore interface {
	GetUser(ctx context.Context, id string) (models.User, error)
	GetTrip(ctx context.Context, id string) (models.Trip, error)
	// OpenTrips returns trips in status active or in_progress.
	OpenTrips(ctx context.Context) ([]models.Trip, error)
	// ClearDeliveryToken nulls the user's token if it still equals token,
	// so a token registered after the failed send survives. Clearing an
	// absent or replaced token, or a missing user, is not an error.
	ClearDeliveryToken(ctx context.Context, userID, token string) error
}

type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]models.User
	trips map[string]models.Trip
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]models.User), trips: make(map[string]models.Trip)}
}

func (m *MemoryStore) PutUser(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *MemoryStore) PutTrip(t models.Trip) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips[t.ID] = t
}

func (m *MemoryStore) GetUser(_ context.Context, id string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}

func (m *MemoryStore) GetTrip(_ context.Context, id string) (models.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trips[id]
	if !ok {
		return models.Trip{}, ErrNotFound
	}
	return t, nil
}

// OpenTrips returns open trips ordered by id.
func (m *MemoryStore) OpenTrips(_ context.Context) ([]models.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Trip, 0, len(m.trips))
	for _, t := range m.trips {
		if t.Status.Open() {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) ClearDeliveryToken(_ context.Context, userID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || u.Token() != token {
		return nil
	}
	u.FCMToken = nil
	m.users[userID] = u
	return nil
}
