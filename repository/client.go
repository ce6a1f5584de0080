package repository

import (
	"context"
	"fmt"
	"time"

	"shifttrack/config"
	"shifttrack/utils"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Connect opens a pooled client with pool events wired into the process metrics and pings it.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetMaxConnIdleTime(cfg.MaxConnIdleTime).
		SetRetryWrites(cfg.RetryWrites).
		SetPoolMonitor(utils.MongoPoolMonitor())

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

// Stores bundles the Mongo-backed stores for one database.
type Stores struct {
	Sessions *SessionRepo
	Users    *UserRepo
	Archive  *ArchiveRepo
	GeoCache *GeoCacheRepo
}

func NewStores(client *mongo.Client, cfg config.DatabaseConfig) *Stores {
	db := client.Database(cfg.DatabaseName)
	sessions := db.Collection(cfg.SessionsColl)
	return &Stores{
		Sessions: &SessionRepo{MongoCollection: sessions, UsersCollection: cfg.UsersColl, Timeout: cfg.OperationTimeout},
		Users:    &UserRepo{MongoCollection: db.Collection(cfg.UsersColl), Timeout: cfg.OperationTimeout},
		Archive: &ArchiveRepo{
			Sessions: sessions,
			Archive:  db.Collection(cfg.ArchiveColl),
			Timeout:  cfg.OperationTimeout,
		},
		GeoCache: &GeoCacheRepo{MongoCollection: db.Collection(cfg.GeoCacheColl), Timeout: cfg.OperationTimeout},
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}
