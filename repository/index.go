package repository

import (
	"context"
	"fmt"
	"log"
	"time"

	"shifttrack/config"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func SetupIndexes(db *mongo.Database, cfg config.DatabaseConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sessionIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().
				SetName("user_id_index"),
		},
		// Sweeps and presence lookups filter by status and read newest first
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().
				SetName("status_created_at"),
		},
		{
			Keys: bson.D{{Key: "last_activity", Value: 1}},
			Options: options.Index().
				SetName("last_activity_index"),
		},
		// At most one online or disconnected session per user
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().
				SetName("one_live_session_per_user").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"live": true}),
		},
	}

	userIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "employee_id", Value: 1}},
			Options: options.Index().
				SetName("employee_id_index"),
		},
	}

	archiveIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().
				SetName("created_at_index"),
		},
		{
			Keys: bson.D{{Key: "orig_id", Value: 1}},
			Options: options.Index().
				SetName("orig_id_index").
				SetUnique(true),
		},
	}

	geoIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "key", Value: 1}},
			Options: options.Index().
				SetName("key_index").
				SetUnique(true),
		},
	}

	if _, err := db.Collection(cfg.SessionsColl).Indexes().CreateMany(ctx, sessionIndexes); err != nil {
		return fmt.Errorf("failed to create session indexes: %w", err)
	}
	if _, err := db.Collection(cfg.UsersColl).Indexes().CreateMany(ctx, userIndexes); err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}
	if _, err := db.Collection(cfg.ArchiveColl).Indexes().CreateMany(ctx, archiveIndexes); err != nil {
		return fmt.Errorf("failed to create archive indexes: %w", err)
	}
	if _, err := db.Collection(cfg.GeoCacheColl).Indexes().CreateMany(ctx, geoIndexes); err != nil {
		return fmt.Errorf("failed to create geocache indexes: %w", err)
	}

	log.Println("Successfully created all indexes")
	return nil
}
