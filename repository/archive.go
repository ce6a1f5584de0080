package repository

import (
	"context"
	"fmt"
	"time"

	"shifttrack/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ArchiveRepo copies terminal sessions into the archive collection, keyed by orig_id,
// and only then deletes the originals. Re-running a chunk upserts the same documents.
type ArchiveRepo struct {
	Sessions *mongo.Collection
	Archive  *mongo.Collection
	Timeout  time.Duration
}

func (r *ArchiveRepo) ArchiveBefore(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	timer := utils.TrackDBOperation("archive", "sessions_archive")
	defer timer.ObserveDuration()

	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(int64(limit))
	cursor, err := r.Sessions.Find(ctx, bson.M{
		"created_at": bson.M{"$lt": cutoff},
		"live":       bson.M{"$ne": true},
	}, opts)
	if err != nil {
		return 0, fmt.Errorf("failed to select sessions to archive: %w", err)
	}
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return 0, fmt.Errorf("failed to decode sessions to archive: %w", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	now := time.Now()
	ids := make([]interface{}, 0, len(docs))
	writes := make([]mongo.WriteModel, 0, len(docs))
	for _, doc := range docs {
		id := doc["_id"]
		ids = append(ids, id)
		delete(doc, "_id")
		doc["orig_id"] = id
		doc["archived_at"] = now
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"orig_id": id}).
			SetReplacement(doc).
			SetUpsert(true))
	}

	if _, err := r.Archive.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
		utils.TrackError("database", "archive_copy_failed")
		return 0, fmt.Errorf("failed to copy sessions to archive: %w", err)
	}
	result, err := r.Sessions.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		utils.TrackError("database", "archive_delete_failed")
		return 0, fmt.Errorf("failed to delete archived sessions: %w", err)
	}
	return int(result.DeletedCount), nil
}

func (r *ArchiveRepo) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	timer := utils.TrackDBOperation("delete", "sessions_archive")
	defer timer.ObserveDuration()

	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	result, err := r.Archive.DeleteMany(ctx, bson.M{"created_at": bson.M{"$lt": cutoff}})
	if err != nil {
		utils.TrackError("database", "archive_purge_failed")
		return 0, fmt.Errorf("failed to purge archive: %w", err)
	}
	return result.DeletedCount, nil
}
