package model

import "time"

// PresenceRow is one result of the "latest session per user joined with profile" query.
type PresenceRow struct {
	Session Session
	User    User
}

// PresenceEntry is the dashboard view of a user's latest session.
// TotalDuration includes the live, never persisted, tail for online sessions.
type PresenceEntry struct {
	UserID         string        `json:"user_id"`
	Name           string        `json:"name"`
	EmployeeID     string        `json:"employee_id"`
	Role           string        `json:"role"`
	SessionID      string        `json:"session_id"`
	LoginTime      time.Time     `json:"login_time"`
	LogoutTime     *time.Time    `json:"logout_time"`
	Status         SessionStatus `json:"status"`
	TotalDuration  int64         `json:"total_duration"`
	StoredDuration int64         `json:"stored_duration"`
	Device         string        `json:"device,omitempty"`
	Location       string        `json:"location,omitempty"`
	LocationName   string        `json:"location_name,omitempty"`
	IPAddress      string        `json:"ip,omitempty"`
	LastActivity   time.Time     `json:"last_activity"`
	IsIdle         bool          `json:"is_idle"`
	IsLate         bool          `json:"is_late"`
	LateByMin      int           `json:"late_by_min"`
	CreatedAt      time.Time     `json:"created_at"`
	Connected      bool          `json:"connected"`
}

type PresenceCounts struct {
	Online       int64 `json:"online"`
	Offline      int64 `json:"offline"`
	Disconnected int64 `json:"disconnected"`
	Idle         int64 `json:"idle"`
	Total        int64 `json:"total"`
}

// PresenceSnapshot is the payload pushed to observers as "users_list_update".
type PresenceSnapshot struct {
	Users     []PresenceEntry `json:"users"`
	Counts    PresenceCounts  `json:"counts"`
	EmittedAt time.Time       `json:"emitted_at"`
}

type Stats struct {
	TotalUsers      int64 `json:"total_users"`
	OnlineUsers     int64 `json:"online_users"`
	InactiveUsers   int64 `json:"inactive_users"`
	OfflineUsers    int64 `json:"offline_users"`
	OnlineUsersLive int64 `json:"online_users_live"`
	Disconnected    int64 `json:"disconnected"`
	IdleUsers       int64 `json:"idle_users"`
	LateJoinUsers   int64 `json:"late_join_users"`
}

type AlertUser struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	EmployeeID string `json:"employee_id"`
}

type LateJoinAlert struct {
	SessionID string     `json:"session_id"`
	User      *AlertUser `json:"user"`
	LoginTime time.Time  `json:"login_time"`
}

type ExtendedShiftAlert struct {
	SessionID     string     `json:"session_id"`
	User          *AlertUser `json:"user"`
	TotalDuration int64      `json:"total_duration"`
	Live          bool       `json:"live"`
}

type DisconnectAlert struct {
	SessionID      string     `json:"session_id"`
	User           *AlertUser `json:"user"`
	CreatedAt      time.Time  `json:"created_at"`
	DisconnectedAt *time.Time `json:"disconnected_at,omitempty"`
}

type Alerts struct {
	LateJoin          []LateJoinAlert      `json:"late_join"`
	ExtendedShift     []ExtendedShiftAlert `json:"extended_shift"`
	RecentDisconnects []DisconnectAlert    `json:"recent_disconnects"`
}
