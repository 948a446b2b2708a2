package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"

	"github.com/astrodata/apod-pipeline/internal/config"
	"github.com/astrodata/apod-pipeline/internal/models"
)

// DynamoDBStorage implements Storage using AWS DynamoDB with the record
// date as the partition key, which gives PutItem natural upsert semantics.
type DynamoDBStorage struct {
	client    *dynamodb.DynamoDB
	tableName string
}

type dynamoRecord struct {
	Date        string    `json:"date"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	HDURL       string    `json:"hdurl,omitempty"`
	MediaType   string    `json:"media_type"`
	Explanation string    `json:"explanation"`
	Copyright   string    `json:"copyright,omitempty"`
	RetrievedAt time.Time `json:"retrieved_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewDynamoDBStorage creates a new DynamoDB storage instance.
func NewDynamoDBStorage(cfg config.StorageConfig) (*DynamoDBStorage, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}

	// For local testing with DynamoDB Local
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	s := &DynamoDBStorage{
		client:    dynamodb.New(sess),
		tableName: cfg.TableName,
	}
	if err := s.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure table exists: %w", err)
	}
	return s, nil
}

// ensureTable creates the DynamoDB table if it doesn't exist.
func (s *DynamoDBStorage) ensureTable() error {
	_, err := s.client.DescribeTable(&dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	})
	if err == nil {
		return nil // Table already exists
	}

	input := &dynamodb.CreateTableInput{
		TableName: aws.String(s.tableName),
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String("date"),
				KeyType:       aws.String("HASH"),
			},
		},
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String("date"),
				AttributeType: aws.String("S"),
			},
		},
		BillingMode: aws.String("PAY_PER_REQUEST"),
	}

	if _, err := s.client.CreateTable(input); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return s.client.WaitUntilTableExists(&dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	})
}

// UpsertRecord writes the item for rec.Date. An existing item's created_at
// is preserved; everything else is overwritten.
func (s *DynamoDBStorage) UpsertRecord(ctx context.Context, rec models.Record) error {
	now := time.Now().UTC()
	item := dynamoRecord{
		Date:        rec.Date,
		Title:       rec.Title,
		URL:         rec.URL,
		HDURL:       rec.HDURL,
		MediaType:   rec.MediaType,
		Explanation: rec.Explanation,
		Copyright:   rec.Copyright,
		RetrievedAt: rec.RetrievedAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	existing, err := s.getItem(ctx, rec.Date)
	if err != nil {
		return &PersistenceError{Op: "lookup", Err: err}
	}
	if existing != nil {
		item.CreatedAt = existing.CreatedAt
	}

	av, err := dynamodbattribute.MarshalMap(item)
	if err != nil {
		return &PersistenceError{Op: "marshal", Err: err}
	}
	if _, err := s.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	}); err != nil {
		return &PersistenceError{Op: "put", Err: err}
	}
	return nil
}

// GetRecordByDate returns the item for a date, or nil when absent.
func (s *DynamoDBStorage) GetRecordByDate(ctx context.Context, date string) (*models.PersistedRecord, error) {
	item, err := s.getItem(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("failed to get record for %s: %w", date, err)
	}
	if item == nil {
		return nil, nil
	}
	rec := dynamoToPersisted(*item)
	return &rec, nil
}

func (s *DynamoDBStorage) getItem(ctx context.Context, date string) (*dynamoRecord, error) {
	result, err := s.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"date": {S: aws.String(date)},
		},
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil {
		return nil, nil
	}
	var item dynamoRecord
	if err := dynamodbattribute.UnmarshalMap(result.Item, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// GetRecords scans the table and returns items ordered by date descending.
// Scan-based pagination is approximate but sufficient for the read API.
func (s *DynamoDBStorage) GetRecords(ctx context.Context, limit, offset int) ([]models.PersistedRecord, error) {
	result, err := s.client.ScanWithContext(ctx, &dynamodb.ScanInput{
		TableName: aws.String(s.tableName),
		Limit:     aws.Int64(int64(limit + offset)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan records: %w", err)
	}

	var items []dynamoRecord
	if err := dynamodbattribute.UnmarshalListOfMaps(result.Items, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal records: %w", err)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Date > items[j].Date })

	if offset >= len(items) {
		return nil, nil
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}

	records := make([]models.PersistedRecord, 0, len(items))
	for _, item := range items {
		records = append(records, dynamoToPersisted(item))
	}
	return records, nil
}

// UpdateRunStatus stores the status under a fixed key in the status table.
func (s *DynamoDBStorage) UpdateRunStatus(ctx context.Context, status models.RunStatus) error {
	item, err := dynamodbattribute.MarshalMap(status)
	if err != nil {
		return fmt.Errorf("failed to marshal run status: %w", err)
	}
	item["date"] = &dynamodb.AttributeValue{S: aws.String("run_status")}

	_, err = s.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName + "_status"),
		Item:      item,
	})
	return err
}

// GetRunStatus retrieves the current run status.
func (s *DynamoDBStorage) GetRunStatus(ctx context.Context) (*models.RunStatus, error) {
	result, err := s.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName + "_status"),
		Key: map[string]*dynamodb.AttributeValue{
			"date": {S: aws.String("run_status")},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get run status: %w", err)
	}
	if result.Item == nil {
		return &models.RunStatus{Status: "never_run"}, nil
	}

	var status models.RunStatus
	if err := dynamodbattribute.UnmarshalMap(result.Item, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run status: %w", err)
	}
	return &status, nil
}

// Close closes the DynamoDB connection.
func (s *DynamoDBStorage) Close() error {
	// DynamoDB client doesn't need explicit closing
	return nil
}

func dynamoToPersisted(item dynamoRecord) models.PersistedRecord {
	return models.PersistedRecord{
		Record: models.Record{
			Date:        item.Date,
			Title:       item.Title,
			URL:         item.URL,
			HDURL:       item.HDURL,
			MediaType:   item.MediaType,
			Explanation: item.Explanation,
			Copyright:   item.Copyright,
			RetrievedAt: item.RetrievedAt,
		},
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
}
