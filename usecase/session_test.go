package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shifttrack/model"
	"shifttrack/repository"
	"shifttrack/shift"
	"shifttrack/test/testutils"

	"github.com/google/go-cmp/cmp"
)

type recordingNotifier struct {
	mu      sync.Mutex
	reasons []string
}

func (n *recordingNotifier) Trigger(reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reasons = append(n.reasons, reason)
}

func (n *recordingNotifier) Reasons() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.reasons...)
}

type stubGeocoder struct {
	name  string
	err   error
	calls int
}

func (g *stubGeocoder) Resolve(ctx context.Context, lat, lng float64) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return g.name, nil
}

type fixture struct {
	store    *testutils.MemStore
	clock    *testutils.FakeClock
	policy   *shift.Policy
	notifier *recordingNotifier
	svc      *SessionService
}

func newFixture(t *testing.T, geocoder Geocoder) *fixture {
	t.Helper()
	policy := testutils.Policy(t)
	store := testutils.NewMemStore()
	store.AddUser(model.User{UserID: "user1", Name: "Asha", EmployeeID: "E001", Role: model.RoleEmployee})
	store.AddUser(model.User{UserID: "user2", Name: "Ravi", EmployeeID: "E002", Role: model.RoleEmployee})

	clock := testutils.NewFakeClock(testutils.At(policy, 0, 10, 30))
	notifier := &recordingNotifier{}
	deps := SessionServiceDeps{
		Sessions: store,
		Users:    store.Users(),
		Policy:   policy,
		Clock:    clock,
		Notifier: notifier,
	}
	if geocoder != nil {
		deps.Geocoder = geocoder
	}
	return &fixture{
		store:    store,
		clock:    clock,
		policy:   policy,
		notifier: notifier,
		svc:      NewSessionService(deps),
	}
}

func (f *fixture) at(hour, minute int) time.Time {
	t := testutils.At(f.policy, 0, hour, minute)
	f.clock.Set(t)
	return t
}

func (f *fixture) start(t *testing.T, userID string) *StartResult {
	t.Helper()
	res, err := f.svc.Start(context.Background(), StartRequest{UserID: userID, Device: "laptop"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return res
}

func TestStartLateness(t *testing.T) {
	tests := []struct {
		name       string
		hour, min  int
		wantLate   bool
		wantLateBy int
	}{
		{name: "On time", hour: 10, min: 30, wantLate: false, wantLateBy: 0},
		{name: "Inside grace", hour: 10, min: 34, wantLate: false, wantLateBy: 0},
		{name: "After grace", hour: 10, min: 36, wantLate: true, wantLateBy: 6},
		{name: "Early bird", hour: 9, min: 0, wantLate: false, wantLateBy: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			now := f.at(tt.hour, tt.min)

			res := f.start(t, "user1")
			if res.Resumed {
				t.Errorf("Expected a new session, got a resume")
			}
			s := res.Session
			if s.IsLate != tt.wantLate || s.LateByMin != tt.wantLateBy {
				t.Errorf("Expected late=%v by %d, got late=%v by %d", tt.wantLate, tt.wantLateBy, s.IsLate, s.LateByMin)
			}
			if !s.LoginTime.Equal(now) || !s.CreatedAt.Equal(now) || s.TotalDuration != 0 {
				t.Errorf("Unexpected new session fields: %+v", s)
			}
			if s.Status != model.StatusOnline || s.IsIdle {
				t.Errorf("Expected online and not idle, got %s idle=%v", s.Status, s.IsIdle)
			}
			if !f.store.User("user1").IsActive {
				t.Errorf("Expected user to be marked active")
			}
		})
	}
}

func TestStartResumesSameDaySession(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first := f.start(t, "user1").Session

	f.at(11, 0)
	if _, err := f.svc.Disconnect(ctx, ByUser("user1")); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	now := f.at(11, 30)
	res, err := f.svc.Start(ctx, StartRequest{UserID: "user1", IPAddress: "10.0.0.7"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !res.Resumed {
		t.Fatalf("Expected resume of %s", first.SessionID)
	}
	s := res.Session
	if s.SessionID != first.SessionID {
		t.Errorf("Expected session %s, got %s", first.SessionID, s.SessionID)
	}
	if s.Status != model.StatusOnline {
		t.Errorf("Expected online, got %s", s.Status)
	}
	if s.TotalDuration != 1800 {
		t.Errorf("Expected the disconnected gap to be skipped (1800s), got %d", s.TotalDuration)
	}
	if !s.LastActivity.Equal(now) {
		t.Errorf("Expected lastActivity %v, got %v", now, s.LastActivity)
	}
	if s.Device != "laptop" || s.IPAddress != "10.0.0.7" {
		t.Errorf("Expected device kept and ip refreshed, got %q %q", s.Device, s.IPAddress)
	}

	live, _ := f.store.Count(ctx, model.SessionQuery{UserIDs: []string{"user1"}, Statuses: model.LiveStatuses})
	if live != 1 {
		t.Errorf("Expected exactly one live session, got %d", live)
	}
}

func TestStartForceClosesPriorDaySession(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	yesterdayLast := testutils.At(f.policy, -1, 17, 0)
	f.store.Put(&model.Session{
		SessionID:     "stale",
		UserID:        "user1",
		LoginTime:     testutils.At(f.policy, -1, 10, 30),
		LastActivity:  yesterdayLast,
		CreatedAt:     testutils.At(f.policy, -1, 10, 30),
		TotalDuration: 23400,
		Status:        model.StatusDisconnected,
	})

	f.at(10, 31)
	res := f.start(t, "user1")
	if res.Resumed || res.Session.SessionID == "stale" {
		t.Fatalf("Expected a fresh session, got %+v", res)
	}

	stale := f.store.Session("stale")
	if stale.Status != model.StatusOffline {
		t.Errorf("Expected stale session offline, got %s", stale.Status)
	}
	if stale.LogoutTime == nil || !stale.LogoutTime.Equal(yesterdayLast) {
		t.Errorf("Expected logout at last activity %v, got %v", yesterdayLast, stale.LogoutTime)
	}
	if stale.TotalDuration != 23400 {
		t.Errorf("Expected duration unchanged, got %d", stale.TotalDuration)
	}

	live, _ := f.store.Count(ctx, model.SessionQuery{UserIDs: []string{"user1"}, Statuses: model.LiveStatuses})
	if live != 1 {
		t.Errorf("Expected exactly one live session, got %d", live)
	}
}

func TestRecordActivityAccumulates(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	s := f.start(t, "user1").Session

	f.at(10, 35)
	if _, err := f.svc.RecordActivity(ctx, ByUser("user1")); err != nil {
		t.Fatalf("RecordActivity failed: %v", err)
	}
	f.at(10, 50)
	got, err := f.svc.RecordActivity(ctx, ByID(s.SessionID).OwnedBy("user1"))
	if err != nil {
		t.Fatalf("RecordActivity failed: %v", err)
	}
	if got.TotalDuration != 1200 {
		t.Errorf("Expected 1200 seconds, got %d", got.TotalDuration)
	}
	if stored := f.store.Session(s.SessionID); stored.TotalDuration != 1200 {
		t.Errorf("Expected stored 1200 seconds, got %d", stored.TotalDuration)
	}
}

func TestRecordActivityClampsToShiftEnd(t *testing.T) {
	f := newFixture(t, nil)

	f.at(18, 25)
	f.start(t, "user1")

	f.at(18, 40)
	got, err := f.svc.RecordActivity(context.Background(), ByUser("user1"))
	if err != nil {
		t.Fatalf("RecordActivity failed: %v", err)
	}
	if got.TotalDuration != 300 {
		t.Errorf("Expected 300 seconds, got %d", got.TotalDuration)
	}
}

func TestRecordActivityAfterIdleDoesNotCountIdleTime(t *testing.T) {
	f := newFixture(t, nil)
	s := f.start(t, "user1").Session

	stored := f.store.Session(s.SessionID)
	stored.IsIdle = true
	stored.IdleStartedAt = model.TimePtr(stored.LastActivity)
	f.store.Put(stored)

	now := f.at(11, 0)
	got, err := f.svc.RecordActivity(context.Background(), ByUser("user1"))
	if err != nil {
		t.Fatalf("RecordActivity failed: %v", err)
	}
	if got.TotalDuration != 0 {
		t.Errorf("Expected idle time not counted, got %d", got.TotalDuration)
	}
	if got.IsIdle || got.IdleEndedAt == nil || !got.IdleEndedAt.Equal(now) {
		t.Errorf("Expected idle cleared at %v, got idle=%v ended=%v", now, got.IsIdle, got.IdleEndedAt)
	}
}

func TestRecordActivityReconnects(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.start(t, "user1")

	f.at(10, 40)
	if _, err := f.svc.Disconnect(ctx, ByUser("user1")); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	f.at(12, 0)
	got, err := f.svc.RecordActivity(ctx, ByUser("user1"))
	if err != nil {
		t.Fatalf("RecordActivity failed: %v", err)
	}
	if got.Status != model.StatusOnline {
		t.Errorf("Expected online, got %s", got.Status)
	}
	if got.TotalDuration != 600 {
		t.Errorf("Expected only the pre-disconnect 600 seconds, got %d", got.TotalDuration)
	}
}

func TestNoActiveSession(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() (*model.Session, error)
	}{
		{"Activity by user", func() (*model.Session, error) { return f.svc.RecordActivity(ctx, ByUser("user1")) }},
		{"Activity by unknown id", func() (*model.Session, error) { return f.svc.RecordActivity(ctx, ByID("missing")) }},
		{"End by user", func() (*model.Session, error) { return f.svc.End(ctx, ByUser("user1")) }},
		{"End with empty lookup", func() (*model.Session, error) { return f.svc.End(ctx, Lookup{}) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := tt.call()
			if !errors.Is(err, ErrNoActiveSession) {
				t.Errorf("Expected ErrNoActiveSession, got %v", err)
			}
			if s != nil {
				t.Errorf("Expected no session, got %+v", s)
			}
		})
	}
}

func TestLookupRejectsForeignSession(t *testing.T) {
	f := newFixture(t, nil)
	s := f.start(t, "user1").Session

	_, err := f.svc.End(context.Background(), ByID(s.SessionID).OwnedBy("user2"))
	if !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("Expected ErrNoActiveSession, got %v", err)
	}
	if got := f.store.Session(s.SessionID); got.Status != model.StatusOnline {
		t.Errorf("Expected session untouched, got %s", got.Status)
	}
}

func TestEnd(t *testing.T) {
	tests := []struct {
		name       string
		endH, endM int
		wantTotal  int64
		wantLogout time.Time
	}{
		{name: "Inside window", endH: 11, endM: 0, wantTotal: 1800},
		{name: "After shift end", endH: 19, endM: 0, wantTotal: 8 * 3600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			s := f.start(t, "user1").Session

			now := f.at(tt.endH, tt.endM)
			got, err := f.svc.End(context.Background(), ByUser("user1"))
			if err != nil {
				t.Fatalf("End failed: %v", err)
			}
			if got.SessionID != s.SessionID || got.Status != model.StatusOffline {
				t.Errorf("Expected %s offline, got %s %s", s.SessionID, got.SessionID, got.Status)
			}
			if got.TotalDuration != tt.wantTotal {
				t.Errorf("Expected %d seconds, got %d", tt.wantTotal, got.TotalDuration)
			}
			wantLogout := f.policy.Clamp(now)
			if got.LogoutTime == nil || !got.LogoutTime.Equal(wantLogout) {
				t.Errorf("Expected logout %v, got %v", wantLogout, got.LogoutTime)
			}
			if f.store.User("user1").IsActive {
				t.Errorf("Expected user marked inactive")
			}
			if diff := cmp.Diff([]string{"end"}, f.notifier.Reasons()); diff != "" {
				t.Errorf("Notifier triggers mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEndByIDClosesDisconnectedSession(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	s := f.start(t, "user1").Session

	f.at(11, 0)
	if _, err := f.svc.Disconnect(ctx, ByUser("user1")); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	// A user lookup only sees online sessions.
	f.at(11, 30)
	if _, err := f.svc.End(ctx, ByUser("user1")); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("Expected ErrNoActiveSession, got %v", err)
	}

	got, err := f.svc.End(ctx, ByID(s.SessionID))
	if err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if got.TotalDuration != 1800 {
		t.Errorf("Expected disconnected gap excluded (1800), got %d", got.TotalDuration)
	}
	if got.Status != model.StatusOffline {
		t.Errorf("Expected offline, got %s", got.Status)
	}
}

func TestDisconnect(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	t.Run("No session is a no-op", func(t *testing.T) {
		s, err := f.svc.Disconnect(ctx, ByUser("user1"))
		if err != nil || s != nil {
			t.Fatalf("Expected nil, nil; got %+v, %v", s, err)
		}
	})

	f.start(t, "user1")
	now := f.at(17, 0)

	t.Run("Parks session", func(t *testing.T) {
		s, err := f.svc.Disconnect(ctx, ByUser("user1"))
		if err != nil {
			t.Fatalf("Disconnect failed: %v", err)
		}
		if s.Status != model.StatusDisconnected {
			t.Errorf("Expected disconnected, got %s", s.Status)
		}
		if s.LogoutTime != nil {
			t.Errorf("Expected no logout time, got %v", s.LogoutTime)
		}
		if !s.LastActivity.Equal(now) || s.DisconnectedAt == nil || !s.DisconnectedAt.Equal(now) {
			t.Errorf("Expected lastActivity and disconnectedAt %v, got %v %v", now, s.LastActivity, s.DisconnectedAt)
		}
		if s.TotalDuration != int64(6*3600+30*60) {
			t.Errorf("Expected 23400 seconds, got %d", s.TotalDuration)
		}
		if !f.store.User("user1").IsActive {
			t.Errorf("Expected user to stay active")
		}
	})

	t.Run("Repeat is idempotent", func(t *testing.T) {
		f.at(17, 3)
		s, err := f.svc.Disconnect(ctx, ByUser("user1"))
		if err != nil {
			t.Fatalf("Disconnect failed: %v", err)
		}
		if !s.LastActivity.Equal(now) || s.TotalDuration != int64(6*3600+30*60) {
			t.Errorf("Expected session unchanged, got %+v", s)
		}
	})

	if diff := cmp.Diff([]string{"disconnect"}, f.notifier.Reasons()); diff != "" {
		t.Errorf("Notifier triggers mismatch (-want +got):\n%s", diff)
	}
}

func TestMutateRetriesOnVersionConflict(t *testing.T) {
	f := newFixture(t, nil)
	s := f.start(t, "user1").Session

	raced := false
	f.store.BeforeUpdate = func(pending *model.Session) {
		if raced {
			return
		}
		raced = true
		// A watcher lands its own write first.
		other := f.store.Session(pending.SessionID)
		other.Device = "phone"
		other.Version++
		f.store.Put(other)
	}

	f.at(10, 40)
	got, err := f.svc.RecordActivity(context.Background(), ByUser("user1"))
	if err != nil {
		t.Fatalf("RecordActivity failed: %v", err)
	}
	if got.TotalDuration != 600 || got.Device != "phone" {
		t.Errorf("Expected retry on fresh read, got total=%d device=%q", got.TotalDuration, got.Device)
	}
	if stored := f.store.Session(s.SessionID); stored.TotalDuration != 600 {
		t.Errorf("Expected stored 600 seconds, got %d", stored.TotalDuration)
	}
}

func TestMutateGivesUpAfterRepeatedConflicts(t *testing.T) {
	f := newFixture(t, nil)
	f.start(t, "user1")

	f.store.BeforeUpdate = func(pending *model.Session) {
		other := f.store.Session(pending.SessionID)
		other.Version++
		f.store.Put(other)
	}

	f.at(10, 40)
	_, err := f.svc.RecordActivity(context.Background(), ByUser("user1"))
	var se *StoreError
	if !errors.As(err, &se) {
		t.Fatalf("Expected *StoreError, got %v", err)
	}
	if !errors.Is(err, repository.ErrVersionConflict) {
		t.Errorf("Expected wrapped ErrVersionConflict, got %v", err)
	}
}

func TestStoreFailureSurfaces(t *testing.T) {
	f := newFixture(t, nil)
	f.start(t, "user1")

	boom := errors.New("connection reset")
	f.store.FailNext("find", boom)

	_, err := f.svc.RecordActivity(context.Background(), ByUser("user1"))
	var se *StoreError
	if !errors.As(err, &se) || !errors.Is(err, boom) {
		t.Fatalf("Expected StoreError wrapping %v, got %v", boom, err)
	}
	if errors.Is(err, ErrNoActiveSession) {
		t.Errorf("Store failures must not look like a missing session")
	}
}

func TestUserPresenceFailureDoesNotFailStart(t *testing.T) {
	f := newFixture(t, nil)
	f.store.FailNext("set_active", errors.New("users collection unavailable"))

	res := f.start(t, "user1")
	if res.Session == nil {
		t.Fatalf("Expected a session")
	}
}

func TestStartResolvesLocation(t *testing.T) {
	tests := []struct {
		name      string
		geocoder  *stubGeocoder
		location  string
		wantName  string
		wantCalls int
	}{
		{"Resolved", &stubGeocoder{name: "Koramangala, Bengaluru"}, "12.9352,77.6245", "Koramangala, Bengaluru", 1},
		{"Geocoder fails", &stubGeocoder{err: context.DeadlineExceeded}, "12.9352,77.6245", "", 1},
		{"Not coordinates", &stubGeocoder{name: "unused"}, "Head office", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.geocoder)
			res, err := f.svc.Start(context.Background(), StartRequest{UserID: "user1", Location: tt.location})
			if err != nil {
				t.Fatalf("Start failed: %v", err)
			}
			if res.Session.Location != tt.location {
				t.Errorf("Expected raw location %q, got %q", tt.location, res.Session.Location)
			}
			if res.Session.LocationName != tt.wantName {
				t.Errorf("Expected location name %q, got %q", tt.wantName, res.Session.LocationName)
			}
			if tt.geocoder.calls != tt.wantCalls {
				t.Errorf("Expected %d geocoder calls, got %d", tt.wantCalls, tt.geocoder.calls)
			}
		})
	}
}

func TestTotalDurationNeverDecreases(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	s := f.start(t, "user1").Session

	steps := []struct {
		hour, min int
		op        func() (*model.Session, error)
	}{
		{10, 45, func() (*model.Session, error) { return f.svc.RecordActivity(ctx, ByUser("user1")) }},
		{11, 0, func() (*model.Session, error) { return f.svc.Disconnect(ctx, ByUser("user1")) }},
		{11, 20, func() (*model.Session, error) { return f.svc.RecordActivity(ctx, ByUser("user1")) }},
		{11, 10, func() (*model.Session, error) { return f.svc.RecordActivity(ctx, ByUser("user1")) }},
		{13, 0, func() (*model.Session, error) { return f.svc.RecordActivity(ctx, ByUser("user1")) }},
		{19, 30, func() (*model.Session, error) { return f.svc.End(ctx, ByID(s.SessionID)) }},
	}

	var prev int64
	prevActivity := s.LastActivity
	for i, step := range steps {
		f.at(step.hour, step.min)
		got, err := step.op()
		if err != nil {
			t.Fatalf("Step %d failed: %v", i, err)
		}
		if got.TotalDuration < prev {
			t.Fatalf("Step %d: totalDuration went from %d to %d", i, prev, got.TotalDuration)
		}
		if got.LastActivity.Before(prevActivity) {
			t.Fatalf("Step %d: lastActivity moved back from %v to %v", i, prevActivity, got.LastActivity)
		}
		prev, prevActivity = got.TotalDuration, got.LastActivity
	}

	// 10:30-11:00 before the disconnect, then 11:20-18:30 after reconnecting.
	want := int64(30*60 + 7*3600 + 10*60)
	if prev != want {
		t.Errorf("Expected %d seconds in total, got %d", want, prev)
	}
}

func TestStartRetriesAfterDuplicateLive(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(f *fixture) string
		wantResumed bool
	}{
		{
			name: "Duplicate without a winner creates on retry",
			setup: func(f *fixture) string {
				f.store.FailNext("insert", repository.ErrDuplicateLive)
				return ""
			},
			wantResumed: false,
		},
		{
			name: "Competing start lands first",
			setup: func(f *fixture) string {
				winner := &model.Session{
					SessionID:    "winner",
					UserID:       "user1",
					LoginTime:    f.clock.Now(),
					LastActivity: f.clock.Now(),
					CreatedAt:    f.clock.Now(),
					Device:       "phone",
				}
				winner.SetStatus(model.StatusOnline)
				landed := false
				f.store.BeforeInsert = func(*model.Session) {
					if landed {
						return
					}
					landed = true
					f.store.Put(winner)
				}
				return "winner"
			},
			wantResumed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			wantID := tt.setup(f)

			res := f.start(t, "user1")
			if res.Resumed != tt.wantResumed {
				t.Errorf("Expected resumed=%v, got %v", tt.wantResumed, res.Resumed)
			}
			if wantID != "" && res.Session.SessionID != wantID {
				t.Errorf("Expected the competing session %s to be resumed, got %s", wantID, res.Session.SessionID)
			}

			live := f.store.SessionsFor("user1", model.LiveStatuses)
			if len(live) != 1 || live[0].SessionID != res.Session.SessionID {
				t.Errorf("Expected exactly the returned session live, got %d live sessions", len(live))
			}
		})
	}
}

func TestConcurrentStartsKeepOneLiveSession(t *testing.T) {
	const callers = 10
	f := newFixture(t, nil)

	var (
		wg      sync.WaitGroup
		ready   = make(chan struct{})
		results = make([]*StartResult, callers)
		errs    = make([]error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-ready
			results[i], errs[i] = f.svc.Start(context.Background(), StartRequest{UserID: "user1", Device: "laptop"})
		}(i)
	}
	close(ready)
	wg.Wait()

	created := 0
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("Start %d failed: %v", i, errs[i])
		}
		if !results[i].Resumed {
			created++
		}
		if results[i].Session.SessionID != results[0].Session.SessionID {
			t.Errorf("Start %d returned session %s, expected %s", i, results[i].Session.SessionID, results[0].Session.SessionID)
		}
	}
	if created != 1 {
		t.Errorf("Expected exactly one created session and %d resumes, got %d created", callers-1, created)
	}
	if live := f.store.SessionsFor("user1", model.LiveStatuses); len(live) != 1 {
		t.Errorf("Expected one live session, got %d", len(live))
	}
}

func TestStartGeocodesOnlyNewLocations(t *testing.T) {
	geocoder := &stubGeocoder{name: "Koramangala, Bengaluru"}
	f := newFixture(t, geocoder)
	ctx := context.Background()

	steps := []struct {
		name      string
		location  string
		wantName  string
		wantCalls int
	}{
		{"Create resolves", "12.9352,77.6245", "Koramangala, Bengaluru", 1},
		{"Resume at the same spot", "12.9352,77.6245", "Koramangala, Bengaluru", 1},
		{"Resume without a location", "", "Koramangala, Bengaluru", 1},
		{"Resume somewhere else", "12.9716,77.5946", "Indiranagar, Bengaluru", 2},
	}

	for _, step := range steps {
		if step.wantCalls == 2 {
			geocoder.name = "Indiranagar, Bengaluru"
		}
		res, err := f.svc.Start(ctx, StartRequest{UserID: "user1", Location: step.location})
		if err != nil {
			t.Fatalf("%s: Start failed: %v", step.name, err)
		}
		if res.Session.LocationName != step.wantName {
			t.Errorf("%s: expected location name %q, got %q", step.name, step.wantName, res.Session.LocationName)
		}
		if geocoder.calls != step.wantCalls {
			t.Errorf("%s: expected %d geocoder calls, got %d", step.name, step.wantCalls, geocoder.calls)
		}
	}
}
