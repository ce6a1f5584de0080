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

// UserRepo reads profiles owned by the identity service and flips the presence flag.
type UserRepo struct {
	MongoCollection *mongo.Collection
	Timeout         time.Duration
}

func (r *UserRepo) Get(ctx context.Context, userID string) (*model.User, error) {
	timer := utils.TrackDBOperation("find", "users")
	defer timer.ObserveDuration()

	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	var user model.User
	err := r.MongoCollection.FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		utils.TrackError("database", "user_lookup_error")
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return &user, nil
}

func (r *UserRepo) SetActive(ctx context.Context, userID string, active bool) error {
	timer := utils.TrackDBOperation("update", "users")
	defer timer.ObserveDuration()

	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	_, err := r.MongoCollection.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"is_active": active}},
	)
	if err != nil {
		utils.TrackError("database", "user_presence_update_failed")
		return fmt.Errorf("failed to update user presence: %w", err)
	}
	return nil
}

func (r *UserRepo) FindByIDs(ctx context.Context, userIDs []string) (map[string]*model.User, error) {
	timer := utils.TrackDBOperation("find", "users")
	defer timer.ObserveDuration()

	users := make(map[string]*model.User, len(userIDs))
	if len(userIDs) == 0 {
		return users, nil
	}

	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	opts := options.Find().SetProjection(bson.M{
		"name":        1,
		"employee_id": 1,
		"role":        1,
		"is_active":   1,
	})
	cursor, err := r.MongoCollection.Find(ctx, bson.M{"_id": bson.M{"$in": userIDs}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch users: %w", err)
	}
	defer cursor.Close(ctx)

	var found []*model.User
	if err := cursor.All(ctx, &found); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	for _, u := range found {
		users[u.UserID] = u
	}
	return users, nil
}

func (r *UserRepo) FindIDsByEmployeeID(ctx context.Context, employeeID string) ([]string, error) {
	timer := utils.TrackDBOperation("find", "users")
	defer timer.ObserveDuration()

	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cursor, err := r.MongoCollection.Find(ctx, bson.M{"employee_id": employeeID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch users by employee id: %w", err)
	}
	defer cursor.Close(ctx)

	var found []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &found); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	ids := make([]string, 0, len(found))
	for _, f := range found {
		ids = append(ids, f.ID)
	}
	return ids, nil
}

func (r *UserRepo) CountUsers(ctx context.Context) (total, active int64, err error) {
	timer := utils.TrackDBOperation("count", "users")
	defer timer.ObserveDuration()

	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	total, err = r.MongoCollection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count users: %w", err)
	}
	active, err = r.MongoCollection.CountDocuments(ctx, bson.M{"is_active": true})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count active users: %w", err)
	}
	return total, active, nil
}
