package model

import "time"

type SessionStatus string

const (
	StatusOnline       SessionStatus = "online"
	StatusDisconnected SessionStatus = "disconnected"
	StatusOffline      SessionStatus = "offline"
)

// LiveStatuses are the non-terminal statuses; a user holds at most one live session.
var LiveStatuses = []SessionStatus{StatusOnline, StatusDisconnected}

// AllStatuses is used by the latest-session-per-user view.
var AllStatuses = []SessionStatus{StatusOnline, StatusDisconnected, StatusOffline}

func (s SessionStatus) IsLive() bool {
	return s == StatusOnline || s == StatusDisconnected
}

// Session is one attendance record. TotalDuration counts active in-window seconds only.
type Session struct {
	SessionID      string        `bson:"_id" json:"session_id"`
	UserID         string        `bson:"user_id" json:"user_id"`
	LoginTime      time.Time     `bson:"login_time" json:"login_time"`
	LogoutTime     *time.Time    `bson:"logout_time,omitempty" json:"logout_time,omitempty"`
	LastActivity   time.Time     `bson:"last_activity" json:"last_activity"`
	CreatedAt      time.Time     `bson:"created_at" json:"created_at"`
	TotalDuration  int64         `bson:"total_duration" json:"total_duration"`
	Status         SessionStatus `bson:"status" json:"status"`
	Live           bool          `bson:"live" json:"-"`
	IsIdle         bool          `bson:"is_idle" json:"is_idle"`
	IdleStartedAt  *time.Time    `bson:"idle_started_at,omitempty" json:"idle_started_at,omitempty"`
	IdleEndedAt    *time.Time    `bson:"idle_ended_at,omitempty" json:"idle_ended_at,omitempty"`
	DisconnectedAt *time.Time    `bson:"disconnected_at,omitempty" json:"disconnected_at,omitempty"`
	IsLate         bool          `bson:"is_late" json:"is_late"`
	LateByMin      int           `bson:"late_by_min" json:"late_by_min"`
	Device         string        `bson:"device" json:"device"`
	IPAddress      string        `bson:"ip_address" json:"ip_address"`
	Location       string        `bson:"location" json:"location"`
	LocationName   string        `bson:"location_name" json:"location_name"`
	Version        int64         `bson:"version" json:"-"`
}

// SetStatus keeps the indexed Live flag in step with Status.
func (s *Session) SetStatus(status SessionStatus) {
	s.Status = status
	s.Live = status.IsLive()
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.LogoutTime = cloneTime(s.LogoutTime)
	c.IdleStartedAt = cloneTime(s.IdleStartedAt)
	c.IdleEndedAt = cloneTime(s.IdleEndedAt)
	c.DisconnectedAt = cloneTime(s.DisconnectedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// TimePtr is a small helper for the optional timestamp fields.
func TimePtr(t time.Time) *time.Time {
	return &t
}

// SessionQuery is the store-level filter shared by the Mongo repository and test stores.
// Zero values mean "no constraint". Results are ordered by CreatedAt, newest first unless SortAsc.
type SessionQuery struct {
	UserIDs               []string
	Statuses              []SessionStatus
	IsIdle                *bool
	LastActivityBefore    time.Time
	LastActivityAtOrAfter time.Time
	CreatedBefore         time.Time
	CreatedAtOrAfter      time.Time
	CreatedAtOrBefore     time.Time
	LoginAtOrAfter        time.Time
	TotalDurationAbove    *int64
	SortAsc               bool
	Skip                  int64
	Limit                 int64
}

func BoolPtr(b bool) *bool {
	return &b
}

func Int64Ptr(v int64) *int64 {
	return &v
}
