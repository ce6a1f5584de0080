package watcher

import (
	"context"
	"fmt"
	"log"
	"time"

	"shifttrack/model"
	"shifttrack/repository"
	"shifttrack/utils"
)

// DisconnectWatcher finalizes sessions left disconnected past the threshold.
type DisconnectWatcher struct {
	sessions  repository.SessionStore
	users     repository.UserStore
	clock     utils.Clock
	threshold time.Duration
}

func NewDisconnectWatcher(sessions repository.SessionStore, users repository.UserStore, clock utils.Clock, threshold time.Duration) *DisconnectWatcher {
	return &DisconnectWatcher{sessions: sessions, users: users, clock: clock, threshold: threshold}
}

func (w *DisconnectWatcher) Sweep(ctx context.Context) (int, error) {
	now := w.clock.Now()

	expired, err := w.sessions.Find(ctx, model.SessionQuery{
		Statuses:           []model.SessionStatus{model.StatusDisconnected},
		LastActivityBefore: now.Add(-w.threshold),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to find expired disconnects: %w", err)
	}

	closed, err := applyEach(ctx, w.sessions, "timeout", expired, func(s *model.Session) {
		s.LogoutTime = model.TimePtr(s.LastActivity)
		s.IsIdle = false
		s.SetStatus(model.StatusOffline)
	})
	for _, s := range closed {
		releaseUser(ctx, w.sessions, w.users, s.UserID)
	}
	return len(closed), err
}

// releaseUser marks the user inactive unless another of their sessions is still online.
func releaseUser(ctx context.Context, sessions repository.SessionStore, users repository.UserStore, userID string) {
	online, err := sessions.Count(ctx, model.SessionQuery{
		UserIDs:  []string{userID},
		Statuses: []model.SessionStatus{model.StatusOnline},
	})
	if err != nil {
		log.Printf("Failed to count online sessions for user %s: %v", userID, err)
		return
	}
	if online > 0 {
		return
	}
	if err := users.SetActive(ctx, userID, false); err != nil {
		utils.TrackError("database", "user_presence_update_failed")
		log.Printf("Failed to mark user %s inactive: %v", userID, err)
	}
}
