package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserve(t *testing.T) {
	m := New()
	finished := time.Unix(1767225600, 0)

	m.Observe(Outcome{Device: "sw1", Updates: 3, Executed: true, Missing: 2, ParseErrors: 1, Duration: time.Second, Finished: finished})
	m.Observe(Outcome{Device: "sw1", Updates: 0, Duration: time.Second})
	m.Observe(Outcome{Device: "sw2", Err: errors.New("ssh: timeout"), Duration: 2 * time.Second})

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"sw1 success", testutil.ToFloat64(m.runsTotal.WithLabelValues("sw1", ResultSuccess)), 1},
		{"sw1 no changes", testutil.ToFloat64(m.runsTotal.WithLabelValues("sw1", ResultNoChanges)), 1},
		{"sw2 error", testutil.ToFloat64(m.runsTotal.WithLabelValues("sw2", ResultError)), 1},
		{"sw1 applied", testutil.ToFloat64(m.updatesTotal.WithLabelValues("sw1", "applied")), 3},
		{"sw1 parse errors", testutil.ToFloat64(m.parseErrorsTotal.WithLabelValues("sw1")), 1},
		{"sw1 missing after clean run", testutil.ToFloat64(m.missingIfaces.WithLabelValues("sw1")), 0},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	// The second sw1 run is later than finished.
	if got := testutil.ToFloat64(m.lastSuccess.WithLabelValues("sw1")); got < float64(finished.Unix()) {
		t.Errorf("last success = %v, want >= %d", got, finished.Unix())
	}

	// A failed run must not move the last-success gauge.
	if n := testutil.CollectAndCount(m.lastSuccess); n != 1 {
		t.Errorf("lastSuccess series = %d, want 1 (sw2 failed)", n)
	}
	if n := testutil.CollectAndCount(m.duration); n != 2 {
		t.Errorf("duration series = %d, want 2", n)
	}
}

func TestObserve_NilReceiver(t *testing.T) {
	var m *Metrics
	m.Observe(Outcome{Device: "sw1"})
}

func TestHandler(t *testing.T) {
	m := New()
	m.Observe(Outcome{Device: "sw1", Updates: 1, Duration: time.Second})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`swsync_sync_runs_total{device="sw1",result="success"} 1`,
		`swsync_interface_updates_total{device="sw1",mode="planned"} 1`,
		"swsync_sync_duration_seconds_bucket",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
