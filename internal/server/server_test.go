package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/astrodata/apod-pipeline/internal/config"
	"github.com/astrodata/apod-pipeline/internal/models"
)

// MockStorage is a mock implementation of the Storage interface.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) UpsertRecord(ctx context.Context, rec models.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockStorage) GetRecordByDate(ctx context.Context, date string) (*models.PersistedRecord, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PersistedRecord), args.Error(1)
}

func (m *MockStorage) GetRecords(ctx context.Context, limit, offset int) ([]models.PersistedRecord, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PersistedRecord), args.Error(1)
}

func (m *MockStorage) UpdateRunStatus(ctx context.Context, status models.RunStatus) error {
	args := m.Called(ctx, status)
	return args.Error(0)
}

func (m *MockStorage) GetRunStatus(ctx context.Context) (*models.RunStatus, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RunStatus), args.Error(1)
}

func (m *MockStorage) Close() error {
	args := m.Called()
	return args.Error(0)
}

func newTestServer(store *MockStorage) *httptest.Server {
	s := NewServer(config.ServerConfig{Port: 0}, store)
	return httptest.NewServer(s.server.Handler)
}

func persisted(date, title string) models.PersistedRecord {
	return models.PersistedRecord{
		ID: 1,
		Record: models.Record{
			Date:      date,
			Title:     title,
			URL:       "https://example.com/p.jpg",
			MediaType: models.MediaTypeImage,
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func TestHandleHealth(t *testing.T) {
	store := new(MockStorage)
	ts := newTestServer(store)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestHandleRecords(t *testing.T) {
	store := new(MockStorage)
	store.On("GetRecords", mock.Anything, 2, 1).Return([]models.PersistedRecord{
		persisted("2024-01-02", "Second"),
		persisted("2024-01-01", "First"),
	}, nil)
	ts := newTestServer(store)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/records?limit=2&offset=1")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Records []models.PersistedRecord `json:"records"`
		Count   int                      `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "Second", body.Records[0].Title)
	store.AssertExpectations(t)
}

func TestHandleRecords_StorageError(t *testing.T) {
	store := new(MockStorage)
	store.On("GetRecords", mock.Anything, 10, 0).Return(nil, errors.New("connection lost"))
	ts := newTestServer(store)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/records")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHandleRecords_MethodNotAllowed(t *testing.T) {
	store := new(MockStorage)
	ts := newTestServer(store)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/records", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandleRecordByDate(t *testing.T) {
	store := new(MockStorage)
	rec := persisted("2024-01-01", "First")
	store.On("GetRecordByDate", mock.Anything, "2024-01-01").Return(&rec, nil)
	ts := newTestServer(store)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/records/2024-01-01")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body models.PersistedRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "First", body.Title)
}

func TestHandleRecordByDate_NotFound(t *testing.T) {
	store := new(MockStorage)
	store.On("GetRecordByDate", mock.Anything, "2024-01-01").Return(nil, nil)
	ts := newTestServer(store)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/records/2024-01-01")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleRecordByDate_InvalidDate(t *testing.T) {
	store := new(MockStorage)
	ts := newTestServer(store)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/records/not-a-date")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	store.AssertNotCalled(t, "GetRecordByDate", mock.Anything, mock.Anything)
}

func TestHandleStatus(t *testing.T) {
	store := new(MockStorage)
	store.On("GetRunStatus", mock.Anything).Return(&models.RunStatus{
		Status:   "success",
		LastDate: "2024-01-01",
		Warnings: 1,
	}, nil)
	ts := newTestServer(store)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body models.RunStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, "2024-01-01", body.LastDate)
	assert.Equal(t, 1, body.Warnings)
}

func TestHandleMetrics(t *testing.T) {
	store := new(MockStorage)
	ts := newTestServer(store)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
