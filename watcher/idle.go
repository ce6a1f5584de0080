package watcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"shifttrack/model"
	"shifttrack/repository"
	"shifttrack/utils"
)

// IdleWatcher flags online sessions whose last activity is older than the threshold.
// Accounting already stopped at lastActivity, so no time is added here.
type IdleWatcher struct {
	sessions  repository.SessionStore
	clock     utils.Clock
	threshold time.Duration
	interval  time.Duration
}

func NewIdleWatcher(sessions repository.SessionStore, clock utils.Clock, threshold, interval time.Duration) *IdleWatcher {
	return &IdleWatcher{sessions: sessions, clock: clock, threshold: threshold, interval: interval}
}

func (w *IdleWatcher) Sweep(ctx context.Context) (int, error) {
	now := w.clock.Now()

	marked, markErr := w.markIdle(ctx, now)
	cleared, clearErr := w.clearIdle(ctx, now)
	return marked + cleared, errors.Join(markErr, clearErr)
}

func (w *IdleWatcher) markIdle(ctx context.Context, now time.Time) (int, error) {
	stale, err := w.sessions.Find(ctx, model.SessionQuery{
		Statuses:           []model.SessionStatus{model.StatusOnline},
		IsIdle:             model.BoolPtr(false),
		LastActivityBefore: now.Add(-w.threshold),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to find stale sessions: %w", err)
	}

	updated, err := applyEach(ctx, w.sessions, "idle", stale, func(s *model.Session) {
		s.IsIdle = true
		s.IdleStartedAt = model.TimePtr(s.LastActivity)
	})
	return len(updated), err
}

// clearIdle repairs sessions that saw activity between sweeps without going
// through the activity path.
func (w *IdleWatcher) clearIdle(ctx context.Context, now time.Time) (int, error) {
	window := w.threshold - w.interval
	if window < 0 {
		window = 0
	}
	fresh, err := w.sessions.Find(ctx, model.SessionQuery{
		Statuses:              []model.SessionStatus{model.StatusOnline},
		IsIdle:                model.BoolPtr(true),
		LastActivityAtOrAfter: now.Add(-window),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to find recovered sessions: %w", err)
	}

	updated, err := applyEach(ctx, w.sessions, "unidle", fresh, func(s *model.Session) {
		s.IsIdle = false
		s.IdleEndedAt = model.TimePtr(s.LastActivity)
	})
	return len(updated), err
}

// applyEach writes each session after mutating it and returns the ones written.
// Sessions that changed since they were read are skipped; the next sweep sees their new state.
func applyEach(ctx context.Context, store repository.SessionStore, transition string, sessions []*model.Session, mutate func(s *model.Session)) ([]*model.Session, error) {
	var (
		updated []*model.Session
		errs    []error
	)
	for _, s := range sessions {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		mutate(s)
		err := store.Update(ctx, s)
		switch {
		case err == nil:
			updated = append(updated, s)
			utils.TrackTransition(transition)
		case errors.Is(err, repository.ErrVersionConflict):
			utils.UpdateConflicts.WithLabelValues("watcher").Inc()
			log.Printf("Session %s changed during %s sweep, skipping", s.SessionID, transition)
		default:
			errs = append(errs, fmt.Errorf("session %s: %w", s.SessionID, err))
		}
	}
	return updated, errors.Join(errs...)
}
