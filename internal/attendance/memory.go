package attendance

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store for development and tests. It enforces
// the same unique and referential constraints as the relational schema.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[string]User
	devices    map[string]Device
	attendance map[string]Attendance
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]User),
		devices:    make(map[string]Device),
		attendance: make(map[string]Attendance),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Ping(context.Context) error { return nil }

// ── users ───────────────────────────────────────────────────────────────────

func (s *MemoryStore) CreateUser(_ context.Context, u User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.admissionTaken(u.AdmissionNumber, "") {
		return User{}, &ConflictError{Field: FieldAdmissionNumber}
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, &NotFoundError{Resource: "user"}
	}
	return u, nil
}

func (s *MemoryStore) UpdateUser(_ context.Context, u User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.users[u.ID]
	if !ok {
		return User{}, &NotFoundError{Resource: "user"}
	}
	if s.admissionTaken(u.AdmissionNumber, u.ID) {
		return User{}, &ConflictError{Field: FieldAdmissionNumber}
	}
	u.CreatedAt = old.CreatedAt
	s.users[u.ID] = u
	return u, nil
}

func (s *MemoryStore) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return &NotFoundError{Resource: "user"}
	}
	for aid, a := range s.attendance {
		if a.UserID == id {
			delete(s.attendance, aid)
		}
	}
	delete(s.users, id)
	return nil
}

func (s *MemoryStore) ListUsers(_ context.Context, f UserFilter) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := s.matchUsers(f.Search)
	return window(matched, f.Offset, f.Limit), nil
}

func (s *MemoryStore) CountUsers(_ context.Context, f UserFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matchUsers(f.Search)), nil
}

func (s *MemoryStore) matchUsers(search string) []User {
	needle := strings.ToLower(search)
	var out []User
	for _, u := range s.users {
		if needle == "" ||
			strings.Contains(strings.ToLower(u.Name), needle) ||
			strings.Contains(strings.ToLower(u.AdmissionNumber), needle) ||
			strings.Contains(strings.ToLower(u.Email), needle) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *MemoryStore) admissionTaken(admission, exceptID string) bool {
	for id, u := range s.users {
		if id != exceptID && u.AdmissionNumber == admission {
			return true
		}
	}
	return false
}

// ── devices ─────────────────────────────────────────────────────────────────

func (s *MemoryStore) CreateDevice(_ context.Context, d Device) (Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.devices {
		if other.DeviceID == d.DeviceID {
			return Device{}, &ConflictError{Field: FieldDeviceID}
		}
		if other.Token == d.Token {
			return Device{}, &ConflictError{Field: FieldToken}
		}
	}
	s.devices[d.ID] = d
	return d, nil
}

func (s *MemoryStore) GetDevice(_ context.Context, id string) (Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[id]
	if !ok {
		return Device{}, &NotFoundError{Resource: "device"}
	}
	return d, nil
}

func (s *MemoryStore) DeviceByToken(_ context.Context, token string) (Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.devices {
		if token != "" && d.Token == token {
			return d, nil
		}
	}
	return Device{}, &NotFoundError{Resource: "device"}
}

func (s *MemoryStore) SetDeviceToken(_ context.Context, id, token string) (Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[id]
	if !ok {
		return Device{}, &NotFoundError{Resource: "device"}
	}
	for oid, other := range s.devices {
		if oid != id && other.Token == token {
			return Device{}, &ConflictError{Field: FieldToken}
		}
	}
	d.Token = token
	s.devices[id] = d
	return d, nil
}

func (s *MemoryStore) DeleteDevice(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[id]; !ok {
		return &NotFoundError{Resource: "device"}
	}
	for aid, a := range s.attendance {
		if a.DeviceID == id {
			delete(s.attendance, aid)
		}
	}
	delete(s.devices, id)
	return nil
}

func (s *MemoryStore) ListDevices(context.Context) ([]DeviceSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int, len(s.devices))
	for _, a := range s.attendance {
		counts[a.DeviceID]++
	}
	out := make([]DeviceSummary, 0, len(s.devices))
	for id, d := range s.devices {
		out = append(out, DeviceSummary{Device: d, Count: DeviceCounts{Attendance: counts[id]}})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// ── attendance ──────────────────────────────────────────────────────────────

func (s *MemoryStore) InsertAttendance(_ context.Context, a Attendance) (Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[a.UserID]
	if !ok {
		return Attendance{}, &NotFoundError{Resource: "user"}
	}
	d, ok := s.devices[a.DeviceID]
	if !ok {
		return Attendance{}, &NotFoundError{Resource: "device"}
	}
	a.User, a.Device = nil, nil
	s.attendance[a.ID] = a
	a.User, a.Device = &u, &d
	return a, nil
}

func (s *MemoryStore) ListAttendance(_ context.Context, f Filter) ([]Attendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page := window(s.matchAttendance(f), f.Offset, f.Limit)
	for i := range page {
		u, d := s.users[page[i].UserID], s.devices[page[i].DeviceID]
		page[i].User, page[i].Device = &u, &d
	}
	return page, nil
}

func (s *MemoryStore) CountAttendance(_ context.Context, f Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matchAttendance(f)), nil
}

func (s *MemoryStore) matchAttendance(f Filter) []Attendance {
	var out []Attendance
	for _, a := range s.attendance {
		switch {
		case f.UserID != "" && a.UserID != f.UserID:
		case f.DeviceID != "" && a.DeviceID != f.DeviceID:
		case f.From != nil && a.CreatedAt.Before(*f.From):
		case f.To != nil && a.CreatedAt.After(*f.To):
		default:
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// window returns items[offset:offset+limit], clipped. A non-positive limit
// means no upper bound.
func window[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	if offset < 0 {
		offset = 0
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]T, end-offset)
	copy(out, items[offset:end])
	return out
}
