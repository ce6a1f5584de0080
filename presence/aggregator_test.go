package presence

import (
	"context"
	"fmt"
	"math"
	"testing"

	"shifttrack/model"
	"shifttrack/shift"
	"shifttrack/test/testutils"

	"github.com/google/go-cmp/cmp"
)

type presenceFixture struct {
	store  *testutils.MemStore
	policy *shift.Policy
	clock  *testutils.FakeClock
	hub    *Hub
	agg    *Aggregator
}

func newPresenceFixture(t *testing.T, hour, minute int) *presenceFixture {
	t.Helper()
	p := testutils.Policy(t)
	store := testutils.NewMemStore()
	store.AddUser(model.User{UserID: "u1", Name: "Asha", EmployeeID: "E001", Role: model.RoleEmployee, IsActive: true})
	store.AddUser(model.User{UserID: "u2", Name: "Ravi", EmployeeID: "E002", Role: model.RoleEmployee, IsActive: true})
	store.AddUser(model.User{UserID: "u3", Name: "Meena", EmployeeID: "E003", Role: model.RoleTeamLead})
	store.AddUser(model.User{UserID: "u4", Name: "Zoya", EmployeeID: "E004", Role: model.RoleEmployee})

	clock := testutils.NewFakeClock(testutils.At(p, 0, hour, minute))
	hub := NewHub()
	t.Cleanup(hub.Close)
	return &presenceFixture{
		store:  store,
		policy: p,
		clock:  clock,
		hub:    hub,
		agg:    NewAggregator(store, store.Users(), p, clock, hub),
	}
}

type sessionSeed struct {
	id, user  string
	day       int
	loginH    int
	loginM    int
	lastH     int
	lastM     int
	total     int64
	status    model.SessionStatus
	idle      bool
	lateByMin int
}

func (f *presenceFixture) put(specs ...sessionSeed) {
	for _, sp := range specs {
		login := testutils.At(f.policy, sp.day, sp.loginH, sp.loginM)
		last := testutils.At(f.policy, sp.day, sp.lastH, sp.lastM)
		s := &model.Session{
			SessionID:     sp.id,
			UserID:        sp.user,
			LoginTime:     login,
			LastActivity:  last,
			CreatedAt:     login,
			TotalDuration: sp.total,
			IsIdle:        sp.idle,
			IsLate:        sp.lateByMin > 0,
			LateByMin:     sp.lateByMin,
		}
		switch sp.status {
		case model.StatusDisconnected:
			s.DisconnectedAt = model.TimePtr(last)
		case model.StatusOffline:
			s.LogoutTime = model.TimePtr(last)
		}
		s.SetStatus(sp.status)
		f.store.Put(s)
	}
}

func (f *presenceFixture) seedDay() {
	f.put(
		sessionSeed{id: "u1-yesterday", user: "u1", day: -1, loginH: 10, loginM: 30, lastH: 18, lastM: 30, total: 28800, status: model.StatusOffline},
		sessionSeed{id: "s1", user: "u1", loginH: 10, loginM: 30, lastH: 11, lastM: 50, total: 4800, status: model.StatusOnline},
		sessionSeed{id: "s2", user: "u2", loginH: 10, loginM: 40, lastH: 11, lastM: 0, total: 1200, status: model.StatusOnline, idle: true, lateByMin: 10},
		sessionSeed{id: "s3", user: "u3", loginH: 10, loginM: 31, lastH: 11, lastM: 30, total: 3540, status: model.StatusDisconnected},
	)
}

func TestSnapshot(t *testing.T) {
	f := newPresenceFixture(t, 12, 0)
	f.seedDay()

	_, unsubscribe := f.hub.Subscribe("u1")
	defer unsubscribe()

	snap, err := f.agg.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	wantCounts := model.PresenceCounts{Online: 2, Offline: 2, Disconnected: 1, Idle: 1, Total: 4}
	if diff := cmp.Diff(wantCounts, snap.Counts); diff != "" {
		t.Errorf("Counts mismatch (-want +got):\n%s", diff)
	}

	type row struct {
		Name      string
		SessionID string
		Status    model.SessionStatus
		Total     int64
		Stored    int64
		Connected bool
	}
	var got []row
	for _, e := range snap.Users {
		got = append(got, row{e.Name, e.SessionID, e.Status, e.TotalDuration, e.StoredDuration, e.Connected})
	}
	want := []row{
		{"Asha", "s1", model.StatusOnline, 5400, 4800, true},
		{"Meena", "s3", model.StatusDisconnected, 3540, 3540, false},
		{"Ravi", "s2", model.StatusOnline, 1200, 1200, false},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Users mismatch (-want +got):\n%s", diff)
	}
	if !snap.EmittedAt.Equal(f.clock.Now()) {
		t.Errorf("Expected emittedAt %v, got %v", f.clock.Now(), snap.EmittedAt)
	}

	// The live tail is never written back.
	if stored := f.store.Session("s1"); stored.TotalDuration != 4800 {
		t.Errorf("Expected stored total untouched, got %d", stored.TotalDuration)
	}
}

func TestLiveTotal(t *testing.T) {
	f := newPresenceFixture(t, 19, 0)
	s := &model.Session{
		LoginTime:     testutils.At(f.policy, 0, 10, 30),
		LastActivity:  testutils.At(f.policy, 0, 18, 0),
		TotalDuration: 27000,
		Status:        model.StatusOnline,
	}

	if got := f.agg.LiveTotal(s, f.clock.Now()); got != 28800 {
		t.Errorf("Expected the tail clamped at shift end (28800), got %d", got)
	}
	s.IsIdle = true
	if got := f.agg.LiveTotal(s, f.clock.Now()); got != 27000 {
		t.Errorf("Expected no tail while idle, got %d", got)
	}
	s.IsIdle = false
	s.Status = model.StatusDisconnected
	if got := f.agg.LiveTotal(s, f.clock.Now()); got != 27000 {
		t.Errorf("Expected no tail while disconnected, got %d", got)
	}
}

func TestListActive(t *testing.T) {
	f := newPresenceFixture(t, 12, 0)
	f.seedDay()
	f.put(sessionSeed{id: "u4-done", user: "u4", loginH: 10, loginM: 30, lastH: 11, lastM: 0, total: 1800, status: model.StatusOffline})

	entries, err := f.agg.ListActive(context.Background())
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	var ids []string
	for _, e := range entries {
		ids = append(ids, e.SessionID)
	}
	if diff := cmp.Diff([]string{"s1", "s3", "s2"}, ids); diff != "" {
		t.Errorf("Active sessions mismatch (-want +got):\n%s", diff)
	}
}

func TestStats(t *testing.T) {
	f := newPresenceFixture(t, 12, 0)
	f.seedDay()
	// A second late login for the same user counts once.
	f.put(sessionSeed{id: "s2-earlier", user: "u2", loginH: 10, loginM: 38, lastH: 10, lastM: 39, total: 60, status: model.StatusOffline})

	stats, err := f.agg.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}

	want := &model.Stats{
		TotalUsers:      4,
		OnlineUsers:     2,
		InactiveUsers:   2,
		OfflineUsers:    0,
		OnlineUsersLive: 2,
		Disconnected:    1,
		IdleUsers:       1,
		LateJoinUsers:   1,
	}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Errorf("Stats mismatch (-want +got):\n%s", diff)
	}
}

func TestAlerts(t *testing.T) {
	f := newPresenceFixture(t, 18, 20)
	f.put(
		// Stored total already past the shift length.
		sessionSeed{id: "long-yesterday", user: "u2", day: -1, loginH: 9, loginM: 0, lastH: 20, lastM: 0, total: 30000, status: model.StatusOffline},
		// Only the live tail pushes this one over.
		sessionSeed{id: "live-over", user: "u1", loginH: 10, loginM: 30, lastH: 18, lastM: 0, total: 28000, status: model.StatusOnline},
		sessionSeed{id: "late", user: "u2", loginH: 10, loginM: 40, lastH: 18, lastM: 0, total: 26400, status: model.StatusOnline, lateByMin: 10},
		sessionSeed{id: "dropped", user: "u3", loginH: 10, loginM: 31, lastH: 17, lastM: 0, total: 23340, status: model.StatusDisconnected},
		sessionSeed{id: "dropped-old", user: "u4", day: -2, loginH: 10, loginM: 30, lastH: 12, lastM: 0, total: 5400, status: model.StatusDisconnected},
	)

	alerts, err := f.agg.Alerts(context.Background())
	if err != nil {
		t.Fatalf("Alerts failed: %v", err)
	}

	var late []string
	for _, a := range alerts.LateJoin {
		late = append(late, a.SessionID)
	}
	if diff := cmp.Diff([]string{"late"}, late); diff != "" {
		t.Errorf("Late join mismatch (-want +got):\n%s", diff)
	}
	if alerts.LateJoin[0].User == nil || alerts.LateJoin[0].User.Name != "Ravi" {
		t.Errorf("Expected late join joined with Ravi, got %+v", alerts.LateJoin[0].User)
	}

	wantExtended := []model.ExtendedShiftAlert{
		{SessionID: "long-yesterday", User: &model.AlertUser{ID: "u2", Name: "Ravi", EmployeeID: "E002"}, TotalDuration: 30000},
		{SessionID: "live-over", User: &model.AlertUser{ID: "u1", Name: "Asha", EmployeeID: "E001"}, TotalDuration: 29200, Live: true},
	}
	if diff := cmp.Diff(wantExtended, alerts.ExtendedShift); diff != "" {
		t.Errorf("Extended shift mismatch (-want +got):\n%s", diff)
	}

	var dropped []string
	for _, a := range alerts.RecentDisconnects {
		dropped = append(dropped, a.SessionID)
	}
	if diff := cmp.Diff([]string{"dropped"}, dropped); diff != "" {
		t.Errorf("Recent disconnects mismatch (-want +got):\n%s", diff)
	}
}

func TestListHistory(t *testing.T) {
	f := newPresenceFixture(t, 12, 0)
	for day := -4; day <= 0; day++ {
		id := fmt.Sprintf("u1-day%d", day+4)
		f.put(sessionSeed{id: id, user: "u1", day: day, loginH: 10, loginM: 30, lastH: 12, lastM: 0, total: 5430, status: model.StatusOffline})
	}
	f.put(sessionSeed{id: "u2-today", user: "u2", loginH: 10, loginM: 40, lastH: 11, lastM: 0, total: 1200, status: model.StatusOnline})
	ctx := context.Background()

	t.Run("Pages newest first", func(t *testing.T) {
		page, err := f.agg.ListHistory(ctx, model.HistoryFilter{UserID: "u1", Page: 2, Limit: 2})
		if err != nil {
			t.Fatalf("ListHistory failed: %v", err)
		}
		if page.Total != 5 || page.Page != 2 || page.Limit != 2 {
			t.Errorf("Unexpected paging: total=%d page=%d limit=%d", page.Total, page.Page, page.Limit)
		}
		var ids []string
		for _, s := range page.Sessions {
			ids = append(ids, s.SessionID)
		}
		if diff := cmp.Diff([]string{"u1-day2", "u1-day1"}, ids); diff != "" {
			t.Errorf("Page mismatch (-want +got):\n%s", diff)
		}
		first := page.Sessions[0]
		if first.TotalMinutes != 91 || first.TotalHours != 1.51 {
			t.Errorf("Expected 91 minutes and 1.51 hours, got %d and %v", first.TotalMinutes, first.TotalHours)
		}
		if first.User == nil || first.User.EmployeeID != "E001" {
			t.Errorf("Expected user joined, got %+v", first.User)
		}
	})

	t.Run("Date range and status", func(t *testing.T) {
		page, err := f.agg.ListHistory(ctx, model.HistoryFilter{
			From:   testutils.At(f.policy, 0, 0, 0),
			To:     testutils.At(f.policy, 0, 23, 59),
			Status: model.StatusOnline,
		})
		if err != nil {
			t.Fatalf("ListHistory failed: %v", err)
		}
		if page.Total != 1 || page.Sessions[0].SessionID != "u2-today" {
			t.Errorf("Expected only u2-today, got %+v", page.Sessions)
		}
		if page.Limit != model.DefaultHistoryLimit || page.Page != 1 {
			t.Errorf("Expected default paging, got page=%d limit=%d", page.Page, page.Limit)
		}
	})

	t.Run("Employee id", func(t *testing.T) {
		page, err := f.agg.ListHistory(ctx, model.HistoryFilter{EmployeeID: "E002"})
		if err != nil {
			t.Fatalf("ListHistory failed: %v", err)
		}
		if page.Total != 1 || page.Sessions[0].User.ID != "u2" {
			t.Errorf("Expected u2's session, got %+v", page.Sessions)
		}
	})

	t.Run("Employee id not matching user id", func(t *testing.T) {
		page, err := f.agg.ListHistory(ctx, model.HistoryFilter{EmployeeID: "E002", UserID: "u1"})
		if err != nil {
			t.Fatalf("ListHistory failed: %v", err)
		}
		if page.Total != 0 || len(page.Sessions) != 0 {
			t.Errorf("Expected an empty page, got %+v", page)
		}
	})

	t.Run("Page far past the end", func(t *testing.T) {
		page, err := f.agg.ListHistory(ctx, model.HistoryFilter{UserID: "u1", Page: math.MaxInt/100 + 2, Limit: 100})
		if err != nil {
			t.Fatalf("ListHistory failed: %v", err)
		}
		if len(page.Sessions) != 0 || page.Total != 5 {
			t.Errorf("Expected no rows out of 5, got %d rows out of %d", len(page.Sessions), page.Total)
		}
		if page.Page != model.MaxHistorySkip/100+1 {
			t.Errorf("Expected the page capped to %d, got %d", model.MaxHistorySkip/100+1, page.Page)
		}
	})
}

func TestSnapshotStoreFailure(t *testing.T) {
	f := newPresenceFixture(t, 12, 0)
	f.store.FailNext("latest", context.DeadlineExceeded)

	if _, err := f.agg.Snapshot(context.Background()); err == nil {
		t.Errorf("Expected the store failure to surface")
	}
}
