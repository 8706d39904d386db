package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"consensus-radar/internal/collect"
	"consensus-radar/internal/consensus"
	"consensus-radar/internal/fetchpool"
	"consensus-radar/internal/progress"
	"consensus-radar/internal/source"
	"consensus-radar/internal/storage"
)

type fixedSource struct{}

func (fixedSource) Name() string { return "NAVER" }

func (fixedSource) FetchAnnual(ctx context.Context, code string) ([]source.AnnualFigures, error) {
	rev := 1000.0
	eps1, eps2 := 100.0, 150.0
	per1, per2 := 10.0, 8.0
	return []source.AnnualFigures{
		{FiscalYear: 2026, IsEstimate: true, Revenue: &rev, EPS: &eps1, PER: &per1},
		{FiscalYear: 2027, IsEstimate: true, Revenue: &rev, EPS: &eps2, PER: &per2},
	}, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := storage.Open("sqlite", filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	companies := storage.NewCompanyRepo(db)
	snapshots := storage.NewSnapshotRepo(db)
	metrics := storage.NewMetricRepo(db)
	diffs := storage.NewDiffLogRepo(db)
	tracker := progress.NewTracker(storage.NewProgressRepo(db))
	writer := collect.NewWriter(snapshots)
	pool := fetchpool.New(2, 0, time.Second)

	engine := consensus.NewEngine(snapshots, metrics, diffs, consensus.Config{
		TargetZoneFVBMin: 1.0,
		SourcePriority:   []string{"NAVER"},
	})
	orchestrator := collect.NewOrchestrator(
		200, []source.Client{fixedSource{}}, pool, tracker, writer, companies, nil)

	srv := New(orchestrator, tracker, engine, companies, metrics, diffs, func() int { return 2026 })
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp, out
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}

func TestSeedCompaniesValidation(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := postJSON(t, ts.URL+"/api/companies",
		`{"companies": [{"code": "005930", "name": "삼성전자", "market": "NYSE"}]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown market, got %d", resp.StatusCode)
	}

	resp, out := postJSON(t, ts.URL+"/api/companies",
		`{"companies": [{"code": "005930", "name": "삼성전자", "market": "KOSPI"}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", resp.StatusCode, out)
	}
	if out["upserted"].(float64) != 1 {
		t.Errorf("Expected 1 upserted, got %v", out["upserted"])
	}
}

func TestCollectAndProgressFlow(t *testing.T) {
	ts := newTestServer(t)

	_, _ = postJSON(t, ts.URL+"/api/companies",
		`{"companies": [
			{"code": "005930", "name": "삼성전자", "market": "KOSPI"},
			{"code": "000660", "name": "SK하이닉스", "market": "KOSPI"}
		]}`)

	resp, out := postJSON(t, ts.URL+"/api/collect",
		`{"session_id": "sess-http", "batch_index": 0, "total_batches": 1}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", resp.StatusCode, out)
	}
	if out["success"].(float64) != 2 {
		t.Errorf("Expected 2 successes, got %v", out["success"])
	}
	if out["completed"] != true {
		t.Errorf("Expected completed session, got %v", out["completed"])
	}

	resp2, err := http.Get(ts.URL + "/api/progress/sess-http")
	if err != nil {
		t.Fatalf("GET progress failed: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp2.StatusCode)
	}
	var prog map[string]any
	_ = json.NewDecoder(resp2.Body).Decode(&prog)
	if prog["status"] != "COMPLETE" {
		t.Errorf("Expected COMPLETE, got %v", prog["status"])
	}
}

func TestProgressUnknownSession(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/progress/nope")
	if err != nil {
		t.Fatalf("GET progress failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestComputeEndpoint(t *testing.T) {
	ts := newTestServer(t)

	_, _ = postJSON(t, ts.URL+"/api/companies",
		`{"companies": [{"code": "005930", "name": "삼성전자", "market": "KOSPI"}]}`)
	_, collectOut := postJSON(t, ts.URL+"/api/collect",
		`{"session_id": "sess-compute", "batch_index": 0, "total_batches": 1}`)
	date := collectOut["snapshot_date"].(string)

	resp, out := postJSON(t, ts.URL+"/api/consensus/compute",
		`{"snapshot_date": "`+date+`", "target_year": 2026, "with_diffs": true}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", resp.StatusCode, out)
	}
	compute := out["compute"].(map[string]any)
	if compute["written"].(float64) != 1 {
		t.Errorf("Expected 1 metric written, got %v", compute["written"])
	}

	resp3, err := http.Get(ts.URL + "/api/consensus/" + date)
	if err != nil {
		t.Fatalf("GET metrics failed: %v", err)
	}
	defer resp3.Body.Close()
	var listing map[string]any
	_ = json.NewDecoder(resp3.Body).Decode(&listing)
	metrics := listing["metrics"].([]any)
	if len(metrics) != 1 {
		t.Fatalf("Expected 1 metric row, got %d", len(metrics))
	}
	m := metrics[0].(map[string]any)
	if m["quad_position"] != "Q2_GROWTH_DERATING" {
		t.Errorf("Expected Q2_GROWTH_DERATING, got %v", m["quad_position"])
	}
	if m["fvb_score"].(float64) != 2 {
		t.Errorf("Expected FVB 2, got %v", m["fvb_score"])
	}
}

func TestCollectRejectsMalformedRequest(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := postJSON(t, ts.URL+"/api/collect", `{"batch_index": 0}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing fields, got %d", resp.StatusCode)
	}
}
