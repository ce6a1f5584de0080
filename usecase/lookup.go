package usecase

import (
	"context"
	"errors"

	"shifttrack/model"
	"shifttrack/repository"
)

// Lookup names the session an operation targets: an explicit session id, or the
// newest live session of a user.
type Lookup struct {
	SessionID string
	UserID    string
}

func ByID(sessionID string) Lookup {
	return Lookup{SessionID: sessionID}
}

func ByUser(userID string) Lookup {
	return Lookup{UserID: userID}
}

// OwnedBy restricts an id lookup to sessions of userID.
func (l Lookup) OwnedBy(userID string) Lookup {
	l.UserID = userID
	return l
}

func (l Lookup) IsZero() bool {
	return l.SessionID == "" && l.UserID == ""
}

func hasStatus(s *model.Session, statuses []model.SessionStatus) bool {
	for _, st := range statuses {
		if s.Status == st {
			return true
		}
	}
	return false
}

// resolve returns the targeted session if its status is one of statuses.
// Ties between several live sessions of a user go to the newest CreatedAt.
func resolve(ctx context.Context, store repository.SessionStore, l Lookup, statuses []model.SessionStatus) (*model.Session, error) {
	if l.SessionID != "" {
		s, err := store.Get(ctx, l.SessionID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoActiveSession
		}
		if err != nil {
			return nil, storeErr("get", err)
		}
		if !hasStatus(s, statuses) || (l.UserID != "" && s.UserID != l.UserID) {
			return nil, ErrNoActiveSession
		}
		return s, nil
	}
	if l.UserID == "" {
		return nil, ErrNoActiveSession
	}

	found, err := store.Find(ctx, model.SessionQuery{
		UserIDs:  []string{l.UserID},
		Statuses: statuses,
		Limit:    1,
	})
	if err != nil {
		return nil, storeErr("find", err)
	}
	if len(found) == 0 {
		return nil, ErrNoActiveSession
	}
	return found[0], nil
}
