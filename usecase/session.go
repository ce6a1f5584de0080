package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"shifttrack/model"
	"shifttrack/repository"
	"shifttrack/shift"
	"shifttrack/utils"

	"github.com/google/uuid"
)

// maxAttempts bounds the read-modify-write retries on a version conflict.
const maxAttempts = 3

// Geocoder resolves coordinates to a display name. Implementations cache.
type Geocoder interface {
	Resolve(ctx context.Context, lat, lng float64) (string, error)
}

// Notifier asks the presence publisher for an immediate snapshot.
type Notifier interface {
	Trigger(reason string)
}

type nopNotifier struct{}

func (nopNotifier) Trigger(string) {}

type SessionServiceDeps struct {
	Sessions       repository.SessionStore
	Users          repository.UserStore
	Policy         *shift.Policy
	Clock          utils.Clock
	Geocoder       Geocoder
	GeocodeTimeout time.Duration
	Notifier       Notifier
}

// SessionService owns the session lifecycle. It keeps no accounting state in memory;
// every transition is a conditional write against the store.
type SessionService struct {
	sessions       repository.SessionStore
	users          repository.UserStore
	policy         *shift.Policy
	clock          utils.Clock
	geocoder       Geocoder
	geocodeTimeout time.Duration
	notifier       Notifier
}

func NewSessionService(deps SessionServiceDeps) *SessionService {
	svc := &SessionService{
		sessions:       deps.Sessions,
		users:          deps.Users,
		policy:         deps.Policy,
		clock:          deps.Clock,
		geocoder:       deps.Geocoder,
		geocodeTimeout: deps.GeocodeTimeout,
		notifier:       deps.Notifier,
	}
	if svc.clock == nil {
		svc.clock = utils.RealClock{}
	}
	if svc.notifier == nil {
		svc.notifier = nopNotifier{}
	}
	if svc.geocodeTimeout <= 0 {
		svc.geocodeTimeout = 3 * time.Second
	}
	return svc
}

type StartRequest struct {
	UserID    string
	Device    string
	UserAgent string
	IPAddress string
	Location  string
}

type StartResult struct {
	Session *model.Session
	Resumed bool
}

// Start resumes the user's live session from today or creates a new one.
// A live session from an earlier day is force-closed first.
func (svc *SessionService) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	if req.UserID == "" {
		return nil, errors.New("user ID is required")
	}

	device := utils.DeviceLabel(req.Device, req.UserAgent)

	// Geocoding happens at most once, and only when a create or a location change needs it.
	var resolved bool
	var locationName string
	nameFor := func() string {
		if !resolved {
			locationName = svc.resolveLocation(ctx, req.Location)
			resolved = true
		}
		return locationName
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err := svc.start(ctx, req, device, nameFor)
		if !retryable(err) {
			if err != nil {
				log.Printf("Session start for user %s failed: %v", req.UserID, err)
			}
			return result, storeErr("start", err)
		}
		utils.UpdateConflicts.WithLabelValues("start").Inc()
		lastErr = err
	}
	return nil, storeErr("start", lastErr)
}

func (svc *SessionService) start(ctx context.Context, req StartRequest, device string, locationName func() string) (*StartResult, error) {
	now := svc.clock.Now()

	live, err := resolve(ctx, svc.sessions, ByUser(req.UserID), model.LiveStatuses)
	if err != nil && !errors.Is(err, ErrNoActiveSession) {
		return nil, err
	}

	if live != nil && !svc.policy.SameDay(live.CreatedAt, now) {
		if err := svc.forceClose(ctx, live); err != nil {
			return nil, err
		}
		live = nil
	}

	if live != nil {
		if req.Device != "" || live.Device == "" {
			live.Device = device
		}
		if req.IPAddress != "" {
			live.IPAddress = req.IPAddress
		}
		if req.Location != "" && req.Location != live.Location {
			live.Location = req.Location
			live.LocationName = locationName()
		}
		if live.IsIdle {
			live.IdleEndedAt = model.TimePtr(now)
		}
		live.IsIdle = false
		live.SetStatus(model.StatusOnline)
		advance(live, now)

		if err := svc.sessions.Update(ctx, live); err != nil {
			return nil, err
		}
		svc.setUserActive(ctx, live.UserID, true)
		utils.TrackTransition("resume")
		return &StartResult{Session: live, Resumed: true}, nil
	}

	isLate, lateBy := svc.policy.Lateness(now)
	session := &model.Session{
		SessionID:    uuid.New().String(),
		UserID:       req.UserID,
		LoginTime:    now,
		LastActivity: now,
		CreatedAt:    now,
		IsLate:       isLate,
		LateByMin:    lateBy,
		Device:       device,
		IPAddress:    req.IPAddress,
		Location:     req.Location,
		LocationName: locationName(),
	}
	session.SetStatus(model.StatusOnline)

	if err := svc.sessions.Insert(ctx, session); err != nil {
		return nil, err
	}
	svc.setUserActive(ctx, session.UserID, true)
	utils.TrackTransition("create")
	return &StartResult{Session: session, Resumed: false}, nil
}

// forceClose finalizes a prior-day session at its last activity.
func (svc *SessionService) forceClose(ctx context.Context, s *model.Session) error {
	svc.policy.AddActiveSeconds(s, s.LastActivity, s.LastActivity)
	s.LogoutTime = model.TimePtr(s.LastActivity)
	s.IsIdle = false
	s.SetStatus(model.StatusOffline)
	if err := svc.sessions.Update(ctx, s); err != nil {
		return err
	}
	utils.TrackTransition("force_close")
	return nil
}

// RecordActivity refreshes the target session. A disconnected session comes back
// online without counting the gap.
func (svc *SessionService) RecordActivity(ctx context.Context, l Lookup) (*model.Session, error) {
	return svc.mutate(ctx, "activity", l, model.LiveStatuses, func(s *model.Session, now time.Time) {
		if s.Status == model.StatusDisconnected {
			s.SetStatus(model.StatusOnline)
			utils.TrackTransition("reconnect")
		} else if !s.IsIdle && !s.LastActivity.IsZero() {
			svc.account(s, s.LastActivity, now)
		}
		if s.IsIdle {
			s.IdleEndedAt = model.TimePtr(now)
			s.IsIdle = false
		}
		advance(s, now)
	}, func(ctx context.Context, s *model.Session) {
		svc.setUserActive(ctx, s.UserID, true)
		utils.TrackTransition("activity")
	})
}

// End closes the target session. A user lookup only matches online sessions.
func (svc *SessionService) End(ctx context.Context, l Lookup) (*model.Session, error) {
	statuses := model.LiveStatuses
	if l.SessionID == "" {
		statuses = []model.SessionStatus{model.StatusOnline}
	}
	return svc.mutate(ctx, "end", l, statuses, func(s *model.Session, now time.Time) {
		if s.Status == model.StatusOnline && !s.IsIdle {
			svc.account(s, s.LastActivity, now)
		}
		s.LogoutTime = model.TimePtr(svc.policy.Clamp(now))
		s.IsIdle = false
		s.SetStatus(model.StatusOffline)
	}, func(ctx context.Context, s *model.Session) {
		svc.setUserActive(ctx, s.UserID, false)
		utils.TrackTransition("end")
		svc.notifier.Trigger("end")
	})
}

// Disconnect parks the target session as disconnected. The shift stays open, so
// neither logoutTime nor the user's presence flag change. Missing sessions are a no-op.
func (svc *SessionService) Disconnect(ctx context.Context, l Lookup) (*model.Session, error) {
	session, err := svc.mutate(ctx, "disconnect", l, model.LiveStatuses, func(s *model.Session, now time.Time) {
		if s.Status == model.StatusDisconnected {
			return
		}
		if !s.IsIdle {
			svc.account(s, s.LastActivity, now)
		}
		advance(s, now)
		s.DisconnectedAt = model.TimePtr(s.LastActivity)
		s.SetStatus(model.StatusDisconnected)
	}, func(ctx context.Context, s *model.Session) {
		utils.TrackTransition("disconnect")
		svc.notifier.Trigger("disconnect")
	})
	if errors.Is(err, ErrNoActiveSession) {
		return nil, nil
	}
	return session, err
}

// mutate runs one read-modify-write against the store, retrying on version conflicts.
// after runs once the write has landed.
func (svc *SessionService) mutate(
	ctx context.Context,
	op string,
	l Lookup,
	statuses []model.SessionStatus,
	apply func(s *model.Session, now time.Time),
	after func(ctx context.Context, s *model.Session),
) (*model.Session, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		s, err := resolve(ctx, svc.sessions, l, statuses)
		if err != nil {
			return nil, err
		}

		before := *s
		apply(s, svc.clock.Now())
		if sessionUnchanged(&before, s) {
			return s, nil
		}

		err = svc.sessions.Update(ctx, s)
		if err == nil {
			after(ctx, s)
			return s, nil
		}
		if !retryable(err) {
			log.Printf("Session %s %s failed: %v", s.SessionID, op, err)
			return nil, storeErr(op, err)
		}
		utils.UpdateConflicts.WithLabelValues(op).Inc()
		lastErr = err
	}
	log.Printf("Giving up on %s after %d conflicting attempts: %v", op, maxAttempts, lastErr)
	return nil, storeErr(op, fmt.Errorf("%d attempts: %w", maxAttempts, lastErr))
}

func (svc *SessionService) account(s *model.Session, from, to time.Time) {
	if delta := svc.policy.AddActiveSeconds(s, from, to); delta > 0 {
		utils.AccountedSeconds.Add(float64(delta))
	}
}

func (svc *SessionService) setUserActive(ctx context.Context, userID string, active bool) {
	if err := svc.users.SetActive(ctx, userID, active); err != nil {
		utils.TrackError("database", "user_presence_update_failed")
		log.Printf("Failed to set presence for user %s: %v", userID, err)
	}
}

// resolveLocation is best effort and bounded by the geocode timeout.
func (svc *SessionService) resolveLocation(ctx context.Context, location string) string {
	if svc.geocoder == nil || location == "" {
		return ""
	}
	lat, lng, ok := utils.ParseCoordinates(location)
	if !ok {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, svc.geocodeTimeout)
	defer cancel()

	name, err := svc.geocoder.Resolve(ctx, lat, lng)
	if err != nil {
		utils.TrackError("geocode", "resolve_failed")
		log.Printf("Location lookup for %q skipped: %v", location, err)
		return ""
	}
	return name
}

// advance moves lastActivity forward, never back.
func advance(s *model.Session, now time.Time) {
	if now.After(s.LastActivity) {
		s.LastActivity = now
	}
}

func retryable(err error) bool {
	return errors.Is(err, repository.ErrVersionConflict) || errors.Is(err, repository.ErrDuplicateLive)
}

func sessionUnchanged(before, after *model.Session) bool {
	return before.Status == after.Status &&
		before.IsIdle == after.IsIdle &&
		before.TotalDuration == after.TotalDuration &&
		before.LastActivity.Equal(after.LastActivity)
}
