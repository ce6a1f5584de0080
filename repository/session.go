package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shifttrack/model"
	"shifttrack/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type SessionRepo struct {
	MongoCollection *mongo.Collection
	UsersCollection string
	Timeout         time.Duration
}

func (r *SessionRepo) Insert(ctx context.Context, session *model.Session) error {
	timer := utils.TrackDBOperation("insert", "sessions")
	defer timer.ObserveDuration()

	if session == nil {
		utils.TrackError("database", "nil_session")
		return fmt.Errorf("session cannot be nil")
	}
	if session.SessionID == "" || session.UserID == "" {
		utils.TrackError("database", "invalid_session_data")
		return fmt.Errorf("invalid session data: missing required fields")
	}

	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	session.Live = session.Status.IsLive()
	if _, err := r.MongoCollection.InsertOne(ctx, session); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateLive
		}
		utils.TrackError("database", "session_creation_failed")
		return fmt.Errorf("failed to create session in database: %w", err)
	}
	return nil
}

func (r *SessionRepo) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	timer := utils.TrackDBOperation("find", "sessions")
	defer timer.ObserveDuration()

	if sessionID == "" {
		return nil, ErrNotFound
	}

	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	var session model.Session
	err := r.MongoCollection.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		utils.TrackError("database", "session_fetch_failed")
		return nil, fmt.Errorf("failed to fetch session from database: %w", err)
	}
	return &session, nil
}

func (r *SessionRepo) Find(ctx context.Context, q model.SessionQuery) ([]*model.Session, error) {
	timer := utils.TrackDBOperation("find", "sessions")
	defer timer.ObserveDuration()

	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	order := -1
	if q.SortAsc {
		order = 1
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: order}})
	if q.Skip > 0 {
		opts.SetSkip(q.Skip)
	}
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}

	cursor, err := r.MongoCollection.Find(ctx, sessionFilter(q), opts)
	if err != nil {
		utils.TrackError("database", "session_query_failed")
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var sessions []*model.Session
	if err = cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepo) Count(ctx context.Context, q model.SessionQuery) (int64, error) {
	timer := utils.TrackDBOperation("count", "sessions")
	defer timer.ObserveDuration()

	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	count, err := r.MongoCollection.CountDocuments(ctx, sessionFilter(q))
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

// Update replaces the session only if nobody wrote it since it was read.
func (r *SessionRepo) Update(ctx context.Context, session *model.Session) error {
	timer := utils.TrackDBOperation("update", "sessions")
	defer timer.ObserveDuration()

	if session == nil {
		return fmt.Errorf("session cannot be nil")
	}

	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	next := session.Clone()
	next.Live = next.Status.IsLive()
	next.Version = session.Version + 1

	result, err := r.MongoCollection.ReplaceOne(ctx,
		bson.M{"_id": session.SessionID, "version": session.Version},
		next,
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateLive
		}
		utils.TrackError("database", "session_update_failed")
		return fmt.Errorf("failed to update session in database: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrVersionConflict
	}

	session.Live = next.Live
	session.Version = next.Version
	return nil
}

func (r *SessionRepo) LatestPerUser(ctx context.Context, statuses []model.SessionStatus) ([]model.PresenceRow, error) {
	timer := utils.TrackDBOperation("aggregate", "sessions")
	defer timer.ObserveDuration()

	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"status": bson.M{"$in": statuses}}}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$user_id"},
			{Key: "session", Value: bson.M{"$first": "$$ROOT"}},
		}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         r.UsersCollection,
			"localField":   "_id",
			"foreignField": "_id",
			"as":           "user",
		}}},
		{{Key: "$unwind", Value: "$user"}},
		{{Key: "$sort", Value: bson.D{{Key: "user.name", Value: 1}}}},
	}

	cursor, err := r.MongoCollection.Aggregate(ctx, pipeline)
	if err != nil {
		utils.TrackError("database", "latest_per_user_failed")
		return nil, fmt.Errorf("failed to aggregate latest sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []struct {
		Session model.Session `bson:"session"`
		User    model.User    `bson:"user"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode latest sessions: %w", err)
	}

	rows := make([]model.PresenceRow, 0, len(docs))
	for _, d := range docs {
		rows = append(rows, model.PresenceRow{Session: d.Session, User: d.User})
	}
	return rows, nil
}

func sessionFilter(q model.SessionQuery) bson.M {
	filter := bson.M{}
	if len(q.UserIDs) == 1 {
		filter["user_id"] = q.UserIDs[0]
	} else if len(q.UserIDs) > 1 {
		filter["user_id"] = bson.M{"$in": q.UserIDs}
	}
	if len(q.Statuses) == 1 {
		filter["status"] = q.Statuses[0]
	} else if len(q.Statuses) > 1 {
		filter["status"] = bson.M{"$in": q.Statuses}
	}
	if q.IsIdle != nil {
		if *q.IsIdle {
			filter["is_idle"] = true
		} else {
			filter["is_idle"] = bson.M{"$ne": true}
		}
	}

	lastActivity := bson.M{}
	if !q.LastActivityBefore.IsZero() {
		lastActivity["$lt"] = q.LastActivityBefore
	}
	if !q.LastActivityAtOrAfter.IsZero() {
		lastActivity["$gte"] = q.LastActivityAtOrAfter
	}
	if len(lastActivity) > 0 {
		filter["last_activity"] = lastActivity
	}

	created := bson.M{}
	if !q.CreatedBefore.IsZero() {
		created["$lt"] = q.CreatedBefore
	}
	if !q.CreatedAtOrBefore.IsZero() {
		created["$lte"] = q.CreatedAtOrBefore
	}
	if !q.CreatedAtOrAfter.IsZero() {
		created["$gte"] = q.CreatedAtOrAfter
	}
	if len(created) > 0 {
		filter["created_at"] = created
	}

	if !q.LoginAtOrAfter.IsZero() {
		filter["login_time"] = bson.M{"$gte": q.LoginAtOrAfter}
	}
	if q.TotalDurationAbove != nil {
		filter["total_duration"] = bson.M{"$gt": *q.TotalDurationAbove}
	}
	return filter
}
