// Package presence builds the latest-session-per-user view behind the dashboards,
// computes stats and alerts from it, and publishes snapshots to observers.
package presence

import (
	"context"
	"fmt"
	"math"
	"time"

	"shifttrack/model"
	"shifttrack/repository"
	"shifttrack/shift"
	"shifttrack/utils"
)

const (
	alertLimit       = 50
	disconnectWindow = 24 * time.Hour
)

// Aggregator reads current state from the stores. It never writes; the live duration
// it reports for online sessions is display only.
type Aggregator struct {
	sessions repository.SessionStore
	users    repository.UserStore
	policy   *shift.Policy
	clock    utils.Clock
	hub      *Hub
}

func NewAggregator(sessions repository.SessionStore, users repository.UserStore, policy *shift.Policy, clock utils.Clock, hub *Hub) *Aggregator {
	if clock == nil {
		clock = utils.RealClock{}
	}
	return &Aggregator{sessions: sessions, users: users, policy: policy, clock: clock, hub: hub}
}

// LiveTotal is the stored total plus the unaccounted tail since lastActivity for
// online, non-idle sessions.
func (a *Aggregator) LiveTotal(s *model.Session, now time.Time) int64 {
	total := s.TotalDuration
	if total < 0 {
		total = 0
	}
	if s.Status == model.StatusOnline && !s.IsIdle {
		total += a.policy.ActiveSeconds(s, s.LastActivity, now)
	}
	return total
}

func (a *Aggregator) entry(row model.PresenceRow, now time.Time) model.PresenceEntry {
	s := row.Session
	e := model.PresenceEntry{
		UserID:         row.User.UserID,
		Name:           row.User.Name,
		EmployeeID:     row.User.EmployeeID,
		Role:           row.User.Role,
		SessionID:      s.SessionID,
		LoginTime:      s.LoginTime,
		LogoutTime:     s.LogoutTime,
		Status:         s.Status,
		TotalDuration:  a.LiveTotal(&s, now),
		StoredDuration: s.TotalDuration,
		Device:         s.Device,
		Location:       s.Location,
		LocationName:   s.LocationName,
		IPAddress:      s.IPAddress,
		LastActivity:   s.LastActivity,
		IsIdle:         s.IsIdle,
		IsLate:         s.IsLate,
		LateByMin:      s.LateByMin,
		CreatedAt:      s.CreatedAt,
	}
	if e.UserID == "" {
		e.UserID = s.UserID
	}
	if a.hub != nil {
		e.Connected = a.hub.IsConnected(e.UserID)
	}
	return e
}

// Snapshot is the payload pushed to observers.
func (a *Aggregator) Snapshot(ctx context.Context) (*model.PresenceSnapshot, error) {
	now := a.clock.Now()

	rows, err := a.sessions.LatestPerUser(ctx, model.AllStatuses)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest sessions: %w", err)
	}
	total, active, err := a.users.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	snap := &model.PresenceSnapshot{
		Users:     make([]model.PresenceEntry, 0, len(rows)),
		EmittedAt: now,
	}
	byStatus := map[model.SessionStatus]int64{}
	for _, row := range rows {
		snap.Users = append(snap.Users, a.entry(row, now))
		byStatus[row.Session.Status]++
		if row.Session.Status == model.StatusOnline && row.Session.IsIdle {
			snap.Counts.Idle++
		}
	}
	snap.Counts.Online = active
	snap.Counts.Offline = max(total-active, 0)
	snap.Counts.Disconnected = byStatus[model.StatusDisconnected]
	snap.Counts.Total = total

	for _, st := range model.AllStatuses {
		utils.LiveSessions.WithLabelValues(string(st)).Set(float64(byStatus[st]))
	}
	return snap, nil
}

// ListActive returns the latest live session of each user with their profile.
func (a *Aggregator) ListActive(ctx context.Context) ([]model.PresenceEntry, error) {
	now := a.clock.Now()
	rows, err := a.sessions.LatestPerUser(ctx, model.LiveStatuses)
	if err != nil {
		return nil, fmt.Errorf("failed to load active sessions: %w", err)
	}
	entries := make([]model.PresenceEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, a.entry(row, now))
	}
	return entries, nil
}

func (a *Aggregator) Stats(ctx context.Context) (*model.Stats, error) {
	total, active, err := a.users.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	rows, err := a.sessions.LatestPerUser(ctx, model.AllStatuses)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest sessions: %w", err)
	}

	stats := &model.Stats{
		TotalUsers:    total,
		OnlineUsers:   active,
		InactiveUsers: max(total-active, 0),
	}
	for _, row := range rows {
		switch row.Session.Status {
		case model.StatusOnline:
			stats.OnlineUsersLive++
			if row.Session.IsIdle {
				stats.IdleUsers++
			}
		case model.StatusOffline:
			stats.OfflineUsers++
		case model.StatusDisconnected:
			stats.Disconnected++
		}
	}

	late, err := a.lateToday(ctx)
	if err != nil {
		return nil, err
	}
	unique := make(map[string]struct{}, len(late))
	for _, s := range late {
		unique[s.UserID] = struct{}{}
	}
	stats.LateJoinUsers = int64(len(unique))
	return stats, nil
}

// lateToday returns today's sessions whose login breaks any late-join rule.
func (a *Aggregator) lateToday(ctx context.Context) ([]*model.Session, error) {
	today, err := a.sessions.Find(ctx, model.SessionQuery{
		LoginAtOrAfter: a.policy.StartOfDay(a.clock.Now()),
		Statuses:       model.AllStatuses,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load today's sessions: %w", err)
	}
	late := make([]*model.Session, 0, len(today))
	for _, s := range today {
		if a.policy.IsLateJoin(s.LoginTime) {
			late = append(late, s)
		}
	}
	return late, nil
}

func (a *Aggregator) Alerts(ctx context.Context) (*model.Alerts, error) {
	now := a.clock.Now()
	shiftSeconds := int64(a.policy.ShiftLength() / time.Second)

	late, err := a.lateToday(ctx)
	if err != nil {
		return nil, err
	}
	stored, err := a.sessions.Find(ctx, model.SessionQuery{
		TotalDurationAbove: model.Int64Ptr(shiftSeconds),
		Limit:              alertLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load extended sessions: %w", err)
	}
	online, err := a.sessions.Find(ctx, model.SessionQuery{
		Statuses: []model.SessionStatus{model.StatusOnline},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load online sessions: %w", err)
	}
	disconnects, err := a.sessions.Find(ctx, model.SessionQuery{
		Statuses:         []model.SessionStatus{model.StatusDisconnected},
		CreatedAtOrAfter: now.Add(-disconnectWindow),
		Limit:            alertLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load recent disconnects: %w", err)
	}

	var liveOver []*model.Session
	liveTotals := map[string]int64{}
	for _, s := range online {
		if t := a.LiveTotal(s, now); t > shiftSeconds && s.TotalDuration <= shiftSeconds {
			liveOver = append(liveOver, s)
			liveTotals[s.SessionID] = t
		}
	}

	users, err := a.users.FindByIDs(ctx, userIDs(late, stored, liveOver, disconnects))
	if err != nil {
		return nil, fmt.Errorf("failed to load alert users: %w", err)
	}

	alerts := &model.Alerts{
		LateJoin:          make([]model.LateJoinAlert, 0, len(late)),
		ExtendedShift:     make([]model.ExtendedShiftAlert, 0, len(stored)+len(liveOver)),
		RecentDisconnects: make([]model.DisconnectAlert, 0, len(disconnects)),
	}
	for _, s := range late {
		alerts.LateJoin = append(alerts.LateJoin, model.LateJoinAlert{
			SessionID: s.SessionID,
			User:      alertUser(users, s.UserID),
			LoginTime: s.LoginTime,
		})
	}
	for _, s := range stored {
		alerts.ExtendedShift = append(alerts.ExtendedShift, model.ExtendedShiftAlert{
			SessionID:     s.SessionID,
			User:          alertUser(users, s.UserID),
			TotalDuration: s.TotalDuration,
		})
	}
	for _, s := range liveOver {
		alerts.ExtendedShift = append(alerts.ExtendedShift, model.ExtendedShiftAlert{
			SessionID:     s.SessionID,
			User:          alertUser(users, s.UserID),
			TotalDuration: liveTotals[s.SessionID],
			Live:          true,
		})
	}
	for _, s := range disconnects {
		alerts.RecentDisconnects = append(alerts.RecentDisconnects, model.DisconnectAlert{
			SessionID:      s.SessionID,
			User:           alertUser(users, s.UserID),
			CreatedAt:      s.CreatedAt,
			DisconnectedAt: s.DisconnectedAt,
		})
	}
	return alerts, nil
}

// ListHistory pages through sessions, newest first.
func (a *Aggregator) ListHistory(ctx context.Context, f model.HistoryFilter) (*model.HistoryPage, error) {
	f.Normalize()
	page := &model.HistoryPage{Sessions: []model.HistoryEntry{}, Page: f.Page, Limit: f.Limit}

	q := model.SessionQuery{
		CreatedAtOrAfter:  f.From,
		CreatedAtOrBefore: f.To,
		Skip:              f.Skip(),
		Limit:             int64(f.Limit),
	}
	if f.Status != "" {
		q.Statuses = []model.SessionStatus{f.Status}
	}
	if f.UserID != "" {
		q.UserIDs = []string{f.UserID}
	}
	if f.EmployeeID != "" {
		ids, err := a.users.FindIDsByEmployeeID(ctx, f.EmployeeID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve employee id: %w", err)
		}
		if f.UserID != "" {
			ids = intersect(ids, f.UserID)
		}
		if len(ids) == 0 {
			return page, nil
		}
		q.UserIDs = ids
	}

	total, err := a.sessions.Count(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	sessions, err := a.sessions.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}
	users, err := a.users.FindByIDs(ctx, userIDs(sessions))
	if err != nil {
		return nil, fmt.Errorf("failed to load session users: %w", err)
	}

	page.Total = total
	for _, s := range sessions {
		page.Sessions = append(page.Sessions, model.HistoryEntry{
			SessionID:     s.SessionID,
			User:          alertUser(users, s.UserID),
			LoginTime:     s.LoginTime,
			LogoutTime:    s.LogoutTime,
			TotalDuration: s.TotalDuration,
			TotalMinutes:  int64(math.Round(float64(s.TotalDuration) / 60)),
			TotalHours:    math.Round(float64(s.TotalDuration)/3600*100) / 100,
			Status:        s.Status,
			IsLate:        s.IsLate,
			LateByMin:     s.LateByMin,
			Device:        s.Device,
			Location:      s.Location,
			LocationName:  s.LocationName,
			IPAddress:     s.IPAddress,
			CreatedAt:     s.CreatedAt,
		})
	}
	return page, nil
}

func userIDs(groups ...[]*model.Session) []string {
	seen := map[string]struct{}{}
	var ids []string
	for _, group := range groups {
		for _, s := range group {
			if _, ok := seen[s.UserID]; ok {
				continue
			}
			seen[s.UserID] = struct{}{}
			ids = append(ids, s.UserID)
		}
	}
	return ids
}

func intersect(ids []string, userID string) []string {
	for _, id := range ids {
		if id == userID {
			return []string{userID}
		}
	}
	return nil
}

func alertUser(users map[string]*model.User, userID string) *model.AlertUser {
	u, ok := users[userID]
	if !ok {
		return nil
	}
	return &model.AlertUser{ID: u.UserID, Name: u.Name, EmployeeID: u.EmployeeID}
}
