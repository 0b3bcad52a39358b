package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsDefaultsNamespace(t *testing.T) {
	m := NewMetrics("")
	m.RecordSeal("accepted", 0.01)

	got := testutil.ToFloat64(m.SealsTotal.WithLabelValues("accepted"))
	if got != 1 {
		t.Fatalf("seals_total{outcome=accepted} = %v, want 1", got)
	}
}

func TestRecordBlockImportedUpdatesBestHeight(t *testing.T) {
	m := NewMetrics("kulupu")
	m.RecordBlockImported("v2", 60, 1000)

	if got := testutil.ToFloat64(m.BestHeight); got != 1000 {
		t.Fatalf("best_height = %v, want 1000", got)
	}
	if got := testutil.ToFloat64(m.BlocksImported.WithLabelValues("v2")); got != 1 {
		t.Fatalf("blocks_imported_total{version=v2} = %v, want 1", got)
	}
}

func TestUpdateClusterStats(t *testing.T) {
	m := NewMetrics("kulupu")
	m.UpdateClusterStats(5, 3, 12345.6)

	if got := testutil.ToFloat64(m.WorkersTotal); got != 5 {
		t.Fatalf("cluster_workers_total = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.WorkersOnline); got != 3 {
		t.Fatalf("cluster_workers_online = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.ClusterHashrate); got != 12345.6 {
		t.Fatalf("cluster_hashrate_total = %v, want 12345.6", got)
	}
}

func TestRemoveWorkerDeletesSeries(t *testing.T) {
	m := NewMetrics("kulupu")
	m.RecordWorkerHashrate("w1", "worker-one", 100)
	m.RemoveWorker("w1", "worker-one")

	got := testutil.ToFloat64(m.WorkerHashrate.WithLabelValues("w1", "worker-one"))
	if got != 0 {
		t.Fatalf("expected the deleted series to read back as 0, got %v", got)
	}
}

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	m := NewMetrics("kulupu")
	m.RecordHashrate("0", 555)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "kulupu_hashrate") {
		t.Fatalf("expected kulupu_hashrate in metrics output, got:\n%s", rec.Body.String())
	}
}
