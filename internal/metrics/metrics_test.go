package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if jobsTotal == nil || searchPagesTotal == nil || rawFetchTotal == nil ||
		httpRequestsTotal == nil || httpRequestDuration == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveJob(t *testing.T) {
	Init()

	ObserveJob("content_sync", "synced")
	ObserveJob("content_sync", "synced")
	ObserveJob("repo_sync", "retryable")

	if val := testutil.ToFloat64(jobsTotal.WithLabelValues("content_sync", "synced")); val != 2 {
		t.Errorf("expected content_sync/synced count 2, got %f", val)
	}
	if val := testutil.ToFloat64(jobsTotal.WithLabelValues("repo_sync", "retryable")); val != 1 {
		t.Errorf("expected repo_sync/retryable count 1, got %f", val)
	}
}

func TestObserveSearchPage(t *testing.T) {
	Init()

	before := testutil.ToFloat64(searchPagesTotal)
	ObserveSearchPage(10, 2)
	ObserveSearchPage(5, 0)

	if val := testutil.ToFloat64(searchPagesTotal); val != before+2 {
		t.Errorf("expected pages counter to advance by 2, got %f from %f", val, before)
	}
	if val := testutil.ToFloat64(searchItemsTotal.WithLabelValues("mapped")); val != 15 {
		t.Errorf("expected 15 mapped items, got %f", val)
	}
	if val := testutil.ToFloat64(searchItemsTotal.WithLabelValues("skipped")); val != 2 {
		t.Errorf("expected 2 skipped items, got %f", val)
	}
}

func TestActiveWorkersGauge(t *testing.T) {
	Init()

	base := testutil.ToFloat64(activeWorkers)
	IncActiveWorkers()
	IncActiveWorkers()
	DecActiveWorkers()
	if val := testutil.ToFloat64(activeWorkers); val != base+1 {
		t.Errorf("expected gauge %f, got %f", base+1, val)
	}
	DecActiveWorkers()
}

func TestObserveRawFetchAndHTTP(t *testing.T) {
	Init()

	ObserveRawFetch(200)
	ObserveRawFetch(404)
	ObserveRawFetch(200)
	if val := testutil.ToFloat64(rawFetchTotal.WithLabelValues("200")); val != 2 {
		t.Errorf("expected 2 fetches with status 200, got %f", val)
	}

	ObserveHTTPRequest("POST", "/v1/notebooks/{notebook_id}/sync", 202, 5*time.Millisecond)
	if val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "202")); val != 1 {
		t.Errorf("expected 1 POST/202 request, got %f", val)
	}
}
