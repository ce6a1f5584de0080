package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shifttrack/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type GeoCacheRepo struct {
	MongoCollection *mongo.Collection
	Timeout         time.Duration
}

type geoCacheEntry struct {
	Key       string    `bson:"key"`
	Name      string    `bson:"name"`
	Provider  string    `bson:"provider"`
	CreatedAt time.Time `bson:"created_at"`
}

func (r *GeoCacheRepo) Lookup(ctx context.Context, key string) (string, bool, error) {
	timer := utils.TrackDBOperation("find", "geocache")
	defer timer.ObserveDuration()

	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	var entry geoCacheEntry
	err := r.MongoCollection.FindOne(ctx, bson.M{"key": key}).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read geocode cache: %w", err)
	}
	return entry.Name, true, nil
}

func (r *GeoCacheRepo) Store(ctx context.Context, key, name, provider string) error {
	timer := utils.TrackDBOperation("upsert", "geocache")
	defer timer.ObserveDuration()

	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	_, err := r.MongoCollection.UpdateOne(ctx,
		bson.M{"key": key},
		bson.M{"$set": geoCacheEntry{Key: key, Name: name, Provider: provider, CreatedAt: time.Now()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to write geocode cache: %w", err)
	}
	return nil
}
