package sentiment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFeedTestClient(t *testing.T, handler http.HandlerFunc) *FeedClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewFeedClient(&Config{
		FeedURL:        "unused",
		RequestTimeout: 5 * time.Second,
	}).WithBaseURL(server.URL + "/fng/")
}

func TestFeedClientFetch(t *testing.T) {
	client := newFeedTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"value":"24","value_classification":"Extreme Fear","timestamp":"1700000000"}]}`))
	})

	snapshot, err := client.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 24, snapshot.Value)
	assert.Equal(t, "Extreme Fear", snapshot.Classification)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), snapshot.CollectedAt)
}

func TestFeedClientRejectsOutOfRangeValue(t *testing.T) {
	client := newFeedTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"value":"140","value_classification":"Broken","timestamp":"1700000000"}]}`))
	})

	_, err := client.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestFeedClientRejectsEmptyData(t *testing.T) {
	client := newFeedTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[]}`))
	})

	_, err := client.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data")
}

func TestFeedClientRejectsNonNumericValue(t *testing.T) {
	client := newFeedTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"value":"n/a","value_classification":"","timestamp":""}]}`))
	})

	_, err := client.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse index value")
}

func TestFeedClientFallsBackToNowOnBadTimestamp(t *testing.T) {
	client := newFeedTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"value":"55","value_classification":"Neutral","timestamp":"not-a-ts"}]}`))
	})

	before := time.Now().UTC()
	snapshot, err := client.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 55, snapshot.Value)
	assert.WithinRange(t, snapshot.CollectedAt, before.Add(-time.Second), time.Now().UTC().Add(time.Second))
}

func TestFeedClientSurfacesUpstreamFailure(t *testing.T) {
	client := newFeedTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Fetch(context.Background())
	require.Error(t, err)
}
