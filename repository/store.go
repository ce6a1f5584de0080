package repository

import (
	"context"
	"errors"
	"time"

	"shifttrack/model"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict means the session changed since it was read; re-read and retry.
	ErrVersionConflict = errors.New("session was modified concurrently")
	// ErrDuplicateLive means the user already holds a live session.
	ErrDuplicateLive = errors.New("user already has a live session")
)

// SessionStore persists sessions. Update is a conditional write keyed by the
// session's Version and bumps it on success.
type SessionStore interface {
	Insert(ctx context.Context, s *model.Session) error
	Get(ctx context.Context, sessionID string) (*model.Session, error)
	Find(ctx context.Context, q model.SessionQuery) ([]*model.Session, error)
	Count(ctx context.Context, q model.SessionQuery) (int64, error)
	Update(ctx context.Context, s *model.Session) error
	// LatestPerUser returns each user's most recently created session with one of the
	// given statuses, joined with the user's profile, ordered by user name.
	LatestPerUser(ctx context.Context, statuses []model.SessionStatus) ([]model.PresenceRow, error)
}

type UserStore interface {
	Get(ctx context.Context, userID string) (*model.User, error)
	SetActive(ctx context.Context, userID string, active bool) error
	FindByIDs(ctx context.Context, userIDs []string) (map[string]*model.User, error)
	FindIDsByEmployeeID(ctx context.Context, employeeID string) ([]string, error)
	CountUsers(ctx context.Context) (total, active int64, err error)
}

// ArchiveStore moves terminal sessions to cold storage and purges it.
type ArchiveStore interface {
	ArchiveBefore(ctx context.Context, cutoff time.Time, limit int) (int, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type GeoCache interface {
	Lookup(ctx context.Context, key string) (name string, found bool, err error)
	Store(ctx context.Context, key, name, provider string) error
}
