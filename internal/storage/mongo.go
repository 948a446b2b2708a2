package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/astrodata/apod-pipeline/internal/config"
	"github.com/astrodata/apod-pipeline/internal/models"
)

// MongoDBStorage implements Storage on a MongoDB collection keyed by date.
type MongoDBStorage struct {
	client  *mongo.Client
	records *mongo.Collection
	status  *mongo.Collection
}

type mongoRecord struct {
	Date        string    `bson:"date"`
	Title       string    `bson:"title"`
	URL         string    `bson:"url"`
	HDURL       string    `bson:"hdurl,omitempty"`
	MediaType   string    `bson:"media_type"`
	Explanation string    `bson:"explanation"`
	Copyright   string    `bson:"copyright,omitempty"`
	RetrievedAt time.Time `bson:"retrieved_at"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

// NewMongoDBStorage connects and ensures the unique index on date.
func NewMongoDBStorage(cfg config.StorageConfig) (*MongoDBStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoDBURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	db := client.Database(cfg.Database)
	s := &MongoDBStorage{
		client:  client,
		records: db.Collection("apod_records"),
		status:  db.Collection("apod_run_status"),
	}

	_, err = s.records.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "date", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create date index: %w", err)
	}
	return s, nil
}

// UpsertRecord replaces the document for rec.Date, creating it on first
// sighting. created_at is only set on insert.
func (s *MongoDBStorage) UpsertRecord(ctx context.Context, rec models.Record) error {
	now := time.Now().UTC()
	_, err := s.records.UpdateOne(ctx,
		bson.M{"date": rec.Date},
		bson.M{
			"$set": bson.M{
				"title":        rec.Title,
				"url":          rec.URL,
				"hdurl":        rec.HDURL,
				"media_type":   rec.MediaType,
				"explanation":  rec.Explanation,
				"copyright":    rec.Copyright,
				"retrieved_at": rec.RetrievedAt,
				"updated_at":   now,
			},
			"$setOnInsert": bson.M{"created_at": now},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return &PersistenceError{Op: "upsert", Err: err}
	}
	return nil
}

// GetRecordByDate returns the document for a date, or nil when absent.
func (s *MongoDBStorage) GetRecordByDate(ctx context.Context, date string) (*models.PersistedRecord, error) {
	var doc mongoRecord
	err := s.records.FindOne(ctx, bson.M{"date": date}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record for %s: %w", date, err)
	}
	rec := toPersisted(doc)
	return &rec, nil
}

// GetRecords returns documents ordered by date descending, with pagination.
func (s *MongoDBStorage) GetRecords(ctx context.Context, limit, offset int) ([]models.PersistedRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))
	cur, err := s.records.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer cur.Close(ctx)

	var records []models.PersistedRecord
	for cur.Next(ctx) {
		var doc mongoRecord
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
		records = append(records, toPersisted(doc))
	}
	return records, cur.Err()
}

// UpdateRunStatus replaces the single status document.
func (s *MongoDBStorage) UpdateRunStatus(ctx context.Context, status models.RunStatus) error {
	_, err := s.status.ReplaceOne(ctx,
		bson.M{"_id": "run_status"},
		bson.M{
			"_id":                 "run_status",
			"last_successful_run": status.LastSuccessfulRun,
			"last_attempt":        status.LastAttempt,
			"last_date":           status.LastDate,
			"status":              status.Status,
			"error_message":       status.ErrorMessage,
			"warnings":            status.Warnings,
		},
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	return nil
}

// GetRunStatus returns the stored status, or a "never_run" default.
func (s *MongoDBStorage) GetRunStatus(ctx context.Context) (*models.RunStatus, error) {
	var doc struct {
		LastSuccessfulRun time.Time `bson:"last_successful_run"`
		LastAttempt       time.Time `bson:"last_attempt"`
		LastDate          string    `bson:"last_date"`
		Status            string    `bson:"status"`
		ErrorMessage      string    `bson:"error_message"`
		Warnings          int       `bson:"warnings"`
	}
	err := s.status.FindOne(ctx, bson.M{"_id": "run_status"}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return &models.RunStatus{Status: "never_run"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run status: %w", err)
	}
	return &models.RunStatus{
		LastSuccessfulRun: doc.LastSuccessfulRun,
		LastAttempt:       doc.LastAttempt,
		LastDate:          doc.LastDate,
		Status:            doc.Status,
		ErrorMessage:      doc.ErrorMessage,
		Warnings:          doc.Warnings,
	}, nil
}

// Close disconnects the client.
func (s *MongoDBStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func toPersisted(doc mongoRecord) models.PersistedRecord {
	return models.PersistedRecord{
		Record: models.Record{
			Date:        doc.Date,
			Title:       doc.Title,
			URL:         doc.URL,
			HDURL:       doc.HDURL,
			MediaType:   doc.MediaType,
			Explanation: doc.Explanation,
			Copyright:   doc.Copyright,
			RetrievedAt: doc.RetrievedAt,
		},
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}
