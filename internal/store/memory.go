// Package store persists the user tree. Memory keeps everything in process and is what
// the service runs on without a database; Postgres is the durable implementation.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"nearby/core-go/internal/geo"
	"nearby/core-go/internal/models"
)

type memoryUser struct {
	user    models.User
	cell    string
	friends map[string]time.Time
	recents map[string]models.RecentUser
}

// Memory is a goroutine-safe in-process store with a geohash cell index over user
// locations.
type Memory struct {
	mu        sync.RWMutex
	users     map[string]*memoryUser
	byPhone   map[string]string
	cells     map[string]map[string]struct{}
	precision int
}

func NewMemory() *Memory {
	return &Memory{
		users:     make(map[string]*memoryUser),
		byPhone:   make(map[string]string),
		cells:     make(map[string]map[string]struct{}),
		precision: geo.DefaultCellPrecision,
	}
}

func (m *Memory) Ping(context.Context) error {
	return nil
}

func (m *Memory) CreateUser(_ context.Context, u models.User) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.byPhone[u.Phone]; taken {
		return models.User{}, models.ErrPhoneTaken
	}

	u.ID = uuid.NewString()
	mu := &memoryUser{
		user:    cloneUser(u),
		friends: make(map[string]time.Time),
		recents: make(map[string]models.RecentUser),
	}
	m.users[u.ID] = mu
	m.byPhone[u.Phone] = u.ID
	m.reindex(mu)
	return cloneUser(mu.user), nil
}

func (m *Memory) GetUser(_ context.Context, id string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mu, ok := m.users[id]
	if !ok {
		return models.User{}, models.ErrNotFound
	}
	return cloneUser(mu.user), nil
}

func (m *Memory) FindUserByPhone(_ context.Context, phone string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byPhone[phone]
	if !ok {
		return models.User{}, models.ErrNotFound
	}
	return cloneUser(m.users[id].user), nil
}

func (m *Memory) ListUsers(context.Context) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.User, 0, len(m.users))
	for _, mu := range m.users {
		out = append(out, cloneUser(mu.user))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) UpdateProfile(_ context.Context, id string, p models.Profile) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mu, ok := m.users[id]
	if !ok {
		return models.User{}, models.ErrNotFound
	}
	if owner, taken := m.byPhone[p.Phone]; taken && owner != id {
		return models.User{}, models.ErrPhoneTaken
	}

	delete(m.byPhone, mu.user.Phone)
	m.byPhone[p.Phone] = id
	mu.user.Name = p.Name
	mu.user.Phone = p.Phone
	mu.user.Description = p.Description
	return cloneUser(mu.user), nil
}

func (m *Memory) SetActive(_ context.Context, id string, active bool, at time.Time) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mu, ok := m.users[id]
	if !ok {
		return models.User{}, models.ErrNotFound
	}
	mu.user.IsActive = active
	if at.After(mu.user.LastSeenAt) {
		mu.user.LastSeenAt = at
	}
	return cloneUser(mu.user), nil
}

func (m *Memory) UpdateLocation(_ context.Context, id string, loc models.Location) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mu, ok := m.users[id]
	if !ok {
		return models.User{}, models.ErrNotFound
	}
	l := loc
	mu.user.Location = &l
	if loc.LastUpdated.After(mu.user.LastSeenAt) {
		mu.user.LastSeenAt = loc.LastUpdated
	}
	m.reindex(mu)
	return cloneUser(mu.user), nil
}

// ListActiveNear returns active users with a location inside the bounding box of the
// disc of radiusMeters around center. The result is a superset; callers apply the
// exact distance check.
func (m *Memory) ListActiveNear(_ context.Context, center geo.Point, radiusMeters float64) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	box := geo.BoundingBox(center, radiusMeters)
	var out []models.User
	add := func(mu *memoryUser) {
		u := mu.user
		if !u.IsActive || u.Location == nil {
			return
		}
		if box.Contains(geo.Point{Lat: u.Location.Latitude, Lon: u.Location.Longitude}) {
			out = append(out, cloneUser(u))
		}
	}

	if cells, ok := geo.CoverCells(center, radiusMeters, m.precision); ok {
		for _, c := range cells {
			for id := range m.cells[c] {
				add(m.users[id])
			}
		}
	} else {
		for _, mu := range m.users {
			add(mu)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) MarkStaleInactive(_ context.Context, cutoff time.Time, keep []string) ([]string, error) {
	skip := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		skip[id] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id, mu := range m.users {
		if _, ok := skip[id]; ok {
			continue
		}
		if mu.user.IsActive && mu.user.LastSeenAt.Before(cutoff) {
			mu.user.IsActive = false
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) AddFriend(_ context.Context, userID, friendID string) error {
	if userID == friendID {
		return models.ErrSelfReference
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	mu, ok := m.users[userID]
	if !ok {
		return models.ErrNotFound
	}
	if _, ok := m.users[friendID]; !ok {
		return models.ErrNotFound
	}
	if _, exists := mu.friends[friendID]; !exists {
		mu.friends[friendID] = time.Now()
	}
	return nil
}

func (m *Memory) RemoveFriend(_ context.Context, userID, friendID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mu, ok := m.users[userID]; ok {
		delete(mu.friends, friendID)
	}
	return nil
}

func (m *Memory) ListFriendIDs(_ context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mu, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	ids := make([]string, 0, len(mu.friends))
	for id := range mu.friends {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ti, tj := mu.friends[ids[i]], mu.friends[ids[j]]
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return ids[i] < ids[j]
	})
	return ids, nil
}

func (m *Memory) UpsertRecentUser(_ context.Context, ownerID string, r models.RecentUser) (models.RecentUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mu, ok := m.users[ownerID]
	if !ok {
		return models.RecentUser{}, models.ErrNotFound
	}
	r.User = cloneUser(r.User)
	mu.recents[r.ID] = r
	return cloneRecent(r), nil
}

func (m *Memory) ListRecentUsers(_ context.Context, ownerID string) ([]models.RecentUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mu, ok := m.users[ownerID]
	if !ok {
		return nil, nil
	}
	out := make([]models.RecentUser, 0, len(mu.recents))
	for _, r := range mu.recents {
		out = append(out, cloneRecent(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].LastSeen.After(out[j].LastSeen)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// reindex moves mu to the cell of its current location. Callers hold m.mu.
func (m *Memory) reindex(mu *memoryUser) {
	id := mu.user.ID
	if mu.cell != "" {
		if set := m.cells[mu.cell]; set != nil {
			delete(set, id)
			if len(set) == 0 {
				delete(m.cells, mu.cell)
			}
		}
		mu.cell = ""
	}
	if mu.user.Location == nil {
		return
	}
	cell := geo.Cell(geo.Point{Lat: mu.user.Location.Latitude, Lon: mu.user.Location.Longitude}, m.precision)
	set := m.cells[cell]
	if set == nil {
		set = make(map[string]struct{})
		m.cells[cell] = set
	}
	set[id] = struct{}{}
	mu.cell = cell
}

func cloneUser(u models.User) models.User {
	if u.Location != nil {
		l := *u.Location
		u.Location = &l
	}
	return u
}

func cloneRecent(r models.RecentUser) models.RecentUser {
	r.User = cloneUser(r.User)
	return r
}
