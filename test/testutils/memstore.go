package testutils

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"shifttrack/model"
	"shifttrack/repository"
)

// MemStore is an in-memory stand-in for the Mongo stores with the same conditional
// update, unique live session and ordering rules.
type MemStore struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	users    map[string]*model.User
	archive  map[string]ArchivedSession
	geo      map[string]string
	errs     map[string]error

	// BeforeUpdate, when set, runs before each Update is applied and may mutate the
	// stored copy through the store to simulate a concurrent writer.
	BeforeUpdate func(s *model.Session)
	// BeforeInsert is the Insert counterpart, used to land a competing start first.
	BeforeInsert func(s *model.Session)
}

type ArchivedSession struct {
	Session    model.Session
	ArchivedAt time.Time
}

var (
	_ repository.SessionStore = (*MemStore)(nil)
	_ repository.UserStore    = (*memUsers)(nil)
	_ repository.ArchiveStore = (*MemStore)(nil)
	_ repository.GeoCache     = (*MemStore)(nil)
)

func NewMemStore() *MemStore {
	return &MemStore{
		sessions: make(map[string]*model.Session),
		users:    make(map[string]*model.User),
		archive:  make(map[string]ArchivedSession),
		geo:      make(map[string]string),
		errs:     make(map[string]error),
	}
}

// FailNext makes the next call of op ("insert", "get", "find", "update", ...) return err.
func (m *MemStore) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[op] = err
}

func (m *MemStore) takeErr(op string) error {
	err := m.errs[op]
	delete(m.errs, op)
	return err
}

func (m *MemStore) AddUser(u model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.UserID] = &u
}

// Put stores a session as-is, bypassing the live uniqueness check. Useful for
// seeding states the service would never produce.
func (m *MemStore) Put(s *model.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := s.Clone()
	c.Live = c.Status.IsLive()
	m.sessions[c.SessionID] = c
}

// Session returns a copy of the stored session, or nil.
func (m *MemStore) Session(id string) *model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id].Clone()
}

// SessionsFor returns copies of the user's sessions with one of the statuses, newest first.
func (m *MemStore) SessionsFor(userID string, statuses []model.SessionStatus) []*model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := m.match(model.SessionQuery{UserIDs: []string{userID}, Statuses: statuses})
	out := make([]*model.Session, 0, len(matched))
	for _, s := range matched {
		out = append(out, s.Clone())
	}
	return out
}

func (m *MemStore) User(id string) *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil
	}
	c := *u
	return &c
}

func (m *MemStore) Archived() map[string]ArchivedSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]ArchivedSession, len(m.archive))
	for k, v := range m.archive {
		out[k] = v
	}
	return out
}

func (m *MemStore) liveConflict(s *model.Session) bool {
	if !s.Status.IsLive() {
		return false
	}
	for id, other := range m.sessions {
		if id != s.SessionID && other.UserID == s.UserID && other.Live {
			return true
		}
	}
	return false
}

func (m *MemStore) Insert(_ context.Context, s *model.Session) error {
	if m.BeforeInsert != nil {
		m.BeforeInsert(s)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr("insert"); err != nil {
		return err
	}
	if s.SessionID == "" || s.UserID == "" {
		return fmt.Errorf("invalid session data: missing required fields")
	}
	if _, exists := m.sessions[s.SessionID]; exists {
		return fmt.Errorf("duplicate session id %s", s.SessionID)
	}
	if m.liveConflict(s) {
		return repository.ErrDuplicateLive
	}
	s.Live = s.Status.IsLive()
	m.sessions[s.SessionID] = s.Clone()
	return nil
}

func (m *MemStore) Get(_ context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr("get"); err != nil {
		return nil, err
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemStore) Find(_ context.Context, q model.SessionQuery) ([]*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr("find"); err != nil {
		return nil, err
	}
	matched := m.match(q)
	start := int(q.Skip)
	if start > len(matched) {
		start = len(matched)
	}
	matched = matched[start:]
	if q.Limit > 0 && int(q.Limit) < len(matched) {
		matched = matched[:q.Limit]
	}
	out := make([]*model.Session, 0, len(matched))
	for _, s := range matched {
		out = append(out, s.Clone())
	}
	return out, nil
}

func (m *MemStore) Count(_ context.Context, q model.SessionQuery) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr("count"); err != nil {
		return 0, err
	}
	return int64(len(m.match(q))), nil
}

func (m *MemStore) Update(_ context.Context, s *model.Session) error {
	if m.BeforeUpdate != nil {
		m.BeforeUpdate(s)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr("update"); err != nil {
		return err
	}
	stored, ok := m.sessions[s.SessionID]
	if !ok || stored.Version != s.Version {
		return repository.ErrVersionConflict
	}
	if m.liveConflict(s) {
		return repository.ErrDuplicateLive
	}
	next := s.Clone()
	next.Live = next.Status.IsLive()
	next.Version = s.Version + 1
	m.sessions[s.SessionID] = next

	s.Live = next.Live
	s.Version = next.Version
	return nil
}

func (m *MemStore) LatestPerUser(_ context.Context, statuses []model.SessionStatus) ([]model.PresenceRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr("latest"); err != nil {
		return nil, err
	}

	latest := map[string]*model.Session{}
	for _, s := range m.match(model.SessionQuery{Statuses: statuses}) {
		if _, seen := latest[s.UserID]; !seen {
			latest[s.UserID] = s
		}
	}

	rows := make([]model.PresenceRow, 0, len(latest))
	for userID, s := range latest {
		u, ok := m.users[userID]
		if !ok {
			continue
		}
		rows = append(rows, model.PresenceRow{Session: *s.Clone(), User: *u})
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].User.Name < rows[j].User.Name
	})
	return rows, nil
}

// match returns the sessions satisfying q, newest CreatedAt first unless SortAsc.
func (m *MemStore) match(q model.SessionQuery) []*model.Session {
	var out []*model.Session
	for _, s := range m.sessions {
		if matches(s, q) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		if q.SortAsc {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func matches(s *model.Session, q model.SessionQuery) bool {
	if len(q.UserIDs) > 0 && !contains(q.UserIDs, s.UserID) {
		return false
	}
	if len(q.Statuses) > 0 {
		found := false
		for _, st := range q.Statuses {
			if s.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.IsIdle != nil && s.IsIdle != *q.IsIdle {
		return false
	}
	if !q.LastActivityBefore.IsZero() && !s.LastActivity.Before(q.LastActivityBefore) {
		return false
	}
	if !q.LastActivityAtOrAfter.IsZero() && s.LastActivity.Before(q.LastActivityAtOrAfter) {
		return false
	}
	if !q.CreatedBefore.IsZero() && !s.CreatedAt.Before(q.CreatedBefore) {
		return false
	}
	if !q.CreatedAtOrBefore.IsZero() && s.CreatedAt.After(q.CreatedAtOrBefore) {
		return false
	}
	if !q.CreatedAtOrAfter.IsZero() && s.CreatedAt.Before(q.CreatedAtOrAfter) {
		return false
	}
	if !q.LoginAtOrAfter.IsZero() && s.LoginTime.Before(q.LoginAtOrAfter) {
		return false
	}
	if q.TotalDurationAbove != nil && s.TotalDuration <= *q.TotalDurationAbove {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Users returns the UserStore view over the same data, so session rows can be joined
// with profiles the way the aggregation pipeline does.
func (m *MemStore) Users() repository.UserStore {
	return &memUsers{m: m}
}

type memUsers struct {
	m *MemStore
}

func (u *memUsers) Get(_ context.Context, id string) (*model.User, error) {
	user := u.m.User(id)
	if user == nil {
		return nil, repository.ErrNotFound
	}
	return user, nil
}

func (u *memUsers) SetActive(ctx context.Context, userID string, active bool) error {
	return u.m.setActive(userID, active)
}

func (u *memUsers) FindByIDs(_ context.Context, ids []string) (map[string]*model.User, error) {
	return u.m.findByIDs(ids), nil
}

func (u *memUsers) FindIDsByEmployeeID(_ context.Context, employeeID string) ([]string, error) {
	return u.m.idsByEmployee(employeeID), nil
}

func (u *memUsers) CountUsers(_ context.Context) (int64, int64, error) {
	return u.m.countUsers()
}

func (m *MemStore) setActive(userID string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr("set_active"); err != nil {
		return err
	}
	if u, ok := m.users[userID]; ok {
		u.IsActive = active
	}
	return nil
}

func (m *MemStore) findByIDs(ids []string) map[string]*model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*model.User, len(ids))
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			c := *u
			out[id] = &c
		}
	}
	return out
}

func (m *MemStore) idsByEmployee(employeeID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, u := range m.users {
		if u.EmployeeID == employeeID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (m *MemStore) countUsers() (total, active int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr("count_users"); err != nil {
		return 0, 0, err
	}
	for _, u := range m.users {
		total++
		if u.IsActive {
			active++
		}
	}
	return total, active, nil
}

// ArchiveStore

func (m *MemStore) ArchiveBefore(_ context.Context, cutoff time.Time, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr("archive"); err != nil {
		return 0, err
	}
	var candidates []*model.Session
	for _, s := range m.match(model.SessionQuery{CreatedBefore: cutoff, SortAsc: true}) {
		if !s.Live {
			candidates = append(candidates, s)
		}
	}
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	now := time.Now()
	for _, s := range candidates {
		m.archive[s.SessionID] = ArchivedSession{Session: *s.Clone(), ArchivedAt: now}
		delete(m.sessions, s.SessionID)
	}
	return len(candidates), nil
}

func (m *MemStore) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr("purge"); err != nil {
		return 0, err
	}
	var n int64
	for id, a := range m.archive {
		if a.Session.CreatedAt.Before(cutoff) {
			delete(m.archive, id)
			n++
		}
	}
	return n, nil
}

// GeoCache

func (m *MemStore) Lookup(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.geo[key]
	return name, ok, nil
}

func (m *MemStore) Store(_ context.Context, key, name, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.geo[key] = name
	return nil
}
