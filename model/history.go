package model

import "time"

const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

// MaxHistorySkip bounds (page-1)*limit so the store skip never overflows.
const MaxHistorySkip = 1<<31 - 1

type HistoryFilter struct {
	From       time.Time
	To         time.Time
	UserID     string
	EmployeeID string
	Status     SessionStatus
	Page       int
	Limit      int
}

// Normalize clamps paging into the supported range.
func (f *HistoryFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultHistoryLimit
	}
	if f.Limit > MaxHistoryLimit {
		f.Limit = MaxHistoryLimit
	}
	if maxPage := MaxHistorySkip/f.Limit + 1; f.Page > maxPage {
		f.Page = maxPage
	}
}

// Skip is the number of rows before the current page.
func (f *HistoryFilter) Skip() int64 {
	return int64(f.Page-1) * int64(f.Limit)
}

type HistoryEntry struct {
	SessionID     string        `json:"session_id"`
	User          *AlertUser    `json:"user"`
	LoginTime     time.Time     `json:"login_time"`
	LogoutTime    *time.Time    `json:"logout_time"`
	TotalDuration int64         `json:"total_duration"`
	TotalMinutes  int64         `json:"total_minutes"`
	TotalHours    float64       `json:"total_hours"`
	Status        SessionStatus `json:"status"`
	IsLate        bool          `json:"is_late"`
	LateByMin     int           `json:"late_by_min"`
	Device        string        `json:"device,omitempty"`
	Location      string        `json:"location,omitempty"`
	LocationName  string        `json:"location_name,omitempty"`
	IPAddress     string        `json:"ip,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

type HistoryPage struct {
	Sessions []HistoryEntry `json:"sessions"`
	Page     int            `json:"page"`
	Limit    int            `json:"limit"`
	Total    int64          `json:"total"`
}
