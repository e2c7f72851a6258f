package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	Init()

	if httpRequestsTotal == nil || cacheLookupsTotal == nil || providerCallsTotal == nil ||
		rateLimitDecisionsTotal == nil || availabilityLookupsTotal == nil || responsesTotal == nil ||
		bulkTargetsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObservers(t *testing.T) {
	Init()

	before := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("hit"))
	ObserveCacheLookup("hit")
	if got := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("hit")); got != before+1 {
		t.Errorf("expected cache hit counter to grow by 1, got %f -> %f", before, got)
	}

	beforeBulk := testutil.ToFloat64(bulkTargetsTotal.WithLabelValues("failure"))
	ObserveBulkTarget(false)
	if got := testutil.ToFloat64(bulkTargetsTotal.WithLabelValues("failure")); got != beforeBulk+1 {
		t.Errorf("expected bulk failure counter to grow by 1, got %f -> %f", beforeBulk, got)
	}

	ObserveProviderCall("cli", "success", 150*time.Millisecond)
	if val := testutil.CollectAndCount(providerDurationSeconds); val <= 0 {
		t.Errorf("expected provider duration to be observed, got %d", val)
	}

	ObserveRateLimit("rejected")
	ObserveAvailability("error")
	ObserveResponse("fallback")
	if got := testutil.ToFloat64(responsesTotal.WithLabelValues("fallback")); got < 1 {
		t.Errorf("expected fallback responses >= 1, got %f", got)
	}
}
