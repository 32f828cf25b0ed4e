package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsIsIdempotent(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()
}

func TestRecordRound(t *testing.T) {
	roundsBefore := testutil.ToFloat64(roundsTotal)
	flipsBefore := testutil.ToFloat64(flipsTotal)

	RecordRound(2.5, 0.3, 0.75, 3)

	if got := testutil.ToFloat64(roundsTotal) - roundsBefore; got != 1 {
		t.Fatalf("expected one round recorded, got %f", got)
	}
	if got := testutil.ToFloat64(flipsTotal) - flipsBefore; got != 3 {
		t.Fatalf("expected three flips recorded, got %f", got)
	}
	if got := testutil.ToFloat64(alpha); got != 2.5 {
		t.Fatalf("expected alpha gauge 2.5, got %f", got)
	}
	if got := testutil.ToFloat64(honestProportion); got != 0.75 {
		t.Fatalf("expected honest proportion gauge 0.75, got %f", got)
	}
}

func TestRecordTerminationByReason(t *testing.T) {
	before := testutil.ToFloat64(terminations.WithLabelValues("no_honest"))
	RecordTermination("no_honest")
	if got := testutil.ToFloat64(terminations.WithLabelValues("no_honest")) - before; got != 1 {
		t.Fatalf("expected one no_honest termination, got %f", got)
	}

	unknownBefore := testutil.ToFloat64(terminations.WithLabelValues("unknown"))
	RecordTermination("")
	if got := testutil.ToFloat64(terminations.WithLabelValues("unknown")) - unknownBefore; got != 1 {
		t.Fatalf("expected empty reason counted as unknown, got %f", got)
	}
}

func TestRecordRunAndHTTP(t *testing.T) {
	before := testutil.ToFloat64(runsTotal.WithLabelValues("constant", "true"))
	RecordRun("constant", true)
	if got := testutil.ToFloat64(runsTotal.WithLabelValues("constant", "true")) - before; got != 1 {
		t.Fatalf("expected one run recorded, got %f", got)
	}

	reqBefore := testutil.ToFloat64(httpRequests.WithLabelValues("POST", "/v1/step", "200"))
	RecordHTTPRequest("POST", "/v1/step", 200, 5*time.Millisecond)
	if got := testutil.ToFloat64(httpRequests.WithLabelValues("POST", "/v1/step", "200")) - reqBefore; got != 1 {
		t.Fatalf("expected one request recorded, got %f", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	RecordRound(1, 0, 0.5, 0)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "stakesim_simulation_rounds_total") {
		t.Fatalf("expected rounds counter in exposition, got:\n%s", body)
	}
}
