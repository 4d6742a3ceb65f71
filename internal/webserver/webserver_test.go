package webserver

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/pointnet/internal/nn"
	"github.com/banshee-data/pointnet/internal/pointcloud"
	"github.com/banshee-data/pointnet/internal/runstore"
	"github.com/banshee-data/pointnet/internal/train"
)

const tetraOFF = `OFF
4 4 0
0 0 0
1 0 0
0 1 0
0 0 1
3 0 1 2
3 0 1 3
3 0 2 3
3 1 2 3
`

func newTestServer(t *testing.T) (*WebServer, *runstore.DB) {
	t.Helper()
	store, err := runstore.Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ws := New(Config{Address: ":0", Store: store, NumPoints: 64})
	return ws, store
}

func seedRun(t *testing.T, store *runstore.DB) string {
	t.Helper()
	id, err := store.CreateRun(`{"epochs":2}`)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	for e := 1; e <= 2; e++ {
		err := store.RecordEpoch(id, train.EpochStats{
			Epoch:     e,
			TrainLoss: 2.0 / float64(e),
			TrainAcc:  0.3 * float64(e),
			ValLoss:   2.5 / float64(e),
			ValAcc:    0.25 * float64(e),
			Duration:  time.Second,
		})
		if err != nil {
			t.Fatalf("record epoch: %v", err)
		}
	}
	return id
}

func seedCheckpoint(t *testing.T, store *runstore.DB, runID string) {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	net := nn.NewPointNet(nn.Config{NumClasses: 2, Dropout: 0, OrthoCoef: 1e-3}, rng)

	var buf bytes.Buffer
	if err := net.SaveCheckpoint(&buf, []string{"box", "sphere"}); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}
	if err := store.SaveCheckpoint(runID, buf.Bytes()); err != nil {
		t.Fatalf("store checkpoint: %v", err)
	}
}

func TestHealthHandler(t *testing.T) {
	ws, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()
	ws.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestRunsHandler(t *testing.T) {
	ws, store := newTestServer(t)
	id := seedRun(t, store)

	req := httptest.NewRequest("GET", "/api/runs", nil)
	rr := httptest.NewRecorder()
	ws.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var runs []runResponse
	if err := json.NewDecoder(rr.Body).Decode(&runs); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != id {
		t.Errorf("unexpected runs response: %+v", runs)
	}
}

func TestEpochsHandler(t *testing.T) {
	ws, store := newTestServer(t)
	id := seedRun(t, store)

	req := httptest.NewRequest("GET", "/api/epochs?run_id="+id, nil)
	rr := httptest.NewRecorder()
	ws.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var epochs []epochResponse
	if err := json.NewDecoder(rr.Body).Decode(&epochs); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(epochs) != 2 {
		t.Fatalf("expected 2 epochs, got %d", len(epochs))
	}
	if epochs[0].Epoch != 1 || epochs[1].Epoch != 2 {
		t.Errorf("epochs out of order: %+v", epochs)
	}
	if epochs[1].TrainLoss >= epochs[0].TrainLoss {
		t.Errorf("expected decreasing loss in seeded data")
	}
}

func TestEpochsHandlerRequiresRunID(t *testing.T) {
	ws, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/epochs", nil)
	rr := httptest.NewRecorder()
	ws.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCurvesChart(t *testing.T) {
	ws, store := newTestServer(t)
	id := seedRun(t, store)

	req := httptest.NewRequest("GET", "/charts/curves?run_id="+id, nil)
	rr := httptest.NewRecorder()
	ws.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Errorf("expected html content type, got %q", ct)
	}
	if !strings.Contains(rr.Body.String(), "echarts") {
		t.Errorf("expected rendered echarts page")
	}
}

func TestCurvesChartUnknownRun(t *testing.T) {
	ws, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/charts/curves?run_id=nope", nil)
	rr := httptest.NewRecorder()
	ws.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestClassifyHandler(t *testing.T) {
	ws, store := newTestServer(t)
	id := seedRun(t, store)
	seedCheckpoint(t, store, id)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("mesh", "tetra.off")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte(tetraOFF)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest("POST", "/api/classify", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	ws.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp classifyResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.RunID != id {
		t.Errorf("expected run %s, got %s", id, resp.RunID)
	}
	if resp.Class != "box" && resp.Class != "sphere" {
		t.Errorf("unexpected class %q", resp.Class)
	}
	total := 0.0
	for _, p := range resp.Probs {
		total += p
	}
	if total < 0.99 || total > 1.01 {
		t.Errorf("probabilities should sum to 1, got %f", total)
	}
}

func TestClassifyHandlerNoCheckpoint(t *testing.T) {
	ws, store := newTestServer(t)
	seedRun(t, store)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("mesh", "tetra.off")
	fw.Write([]byte(tetraOFF))
	mw.Close()

	req := httptest.NewRequest("POST", "/api/classify", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	ws.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestClassifyHandlerRejectsGet(t *testing.T) {
	ws, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/classify", nil)
	rr := httptest.NewRecorder()
	ws.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestClassifyHandlerBadFormat(t *testing.T) {
	ws, store := newTestServer(t)
	id := seedRun(t, store)
	seedCheckpoint(t, store, id)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("mesh", "tetra.stl")
	fw.Write([]byte("solid tetra"))
	mw.Close()

	req := httptest.NewRequest("POST", "/api/classify", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	ws.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestIndexListsRuns(t *testing.T) {
	ws, store := newTestServer(t)
	id := seedRun(t, store)

	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()
	ws.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), id) {
		t.Errorf("index page should mention run %s", id)
	}
}

func TestCloudChart(t *testing.T) {
	ws, store := newTestServer(t)
	id := seedRun(t, store)
	seedCheckpoint(t, store, id)

	dir := t.TempDir()
	meshPath := filepath.Join(dir, "tetra.off")
	if err := os.WriteFile(meshPath, []byte(tetraOFF), 0644); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/charts/cloud?mesh="+url.QueryEscape(meshPath), nil)
	rr := httptest.NewRecorder()
	ws.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "echarts") {
		t.Errorf("expected rendered echarts page")
	}
	if !strings.Contains(rr.Body.String(), "predicted=") {
		t.Errorf("expected prediction in subtitle")
	}
}

func TestCloudChartStoredPrediction(t *testing.T) {
	ws, store := newTestServer(t)
	id := seedRun(t, store)

	preds := []runstore.Prediction{
		{
			MeshPath: "chair/test/chair_0890.off", Actual: 2, Predicted: 1, Confidence: 0.71,
			Cloud: pointcloud.Cloud{{X: 0.5, Y: -0.25, Z: 1}, {X: -1, Y: 0, Z: 0.125}},
		},
	}
	if err := store.RecordPredictions(id, preds); err != nil {
		t.Fatalf("record predictions: %v", err)
	}

	req := httptest.NewRequest("GET", "/charts/cloud?pred=0&run_id="+id, nil)
	rr := httptest.NewRecorder()
	ws.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	if !strings.Contains(body, "echarts") {
		t.Errorf("expected rendered echarts page")
	}
	if !strings.Contains(body, "chair/test/chair_0890.off") {
		t.Errorf("expected stored mesh path in subtitle")
	}
	if !strings.Contains(body, "actual=2") || !strings.Contains(body, "predicted=1") {
		t.Errorf("expected stored labels in subtitle: %s", body)
	}

	// Defaults to the latest run when run_id is absent.
	req = httptest.NewRequest("GET", "/charts/cloud?pred=0", nil)
	rr = httptest.NewRecorder()
	ws.setupRoutes().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for latest run, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCloudChartStoredPredictionOutOfRange(t *testing.T) {
	ws, store := newTestServer(t)
	id := seedRun(t, store)

	req := httptest.NewRequest("GET", "/charts/cloud?pred=3&run_id="+id, nil)
	rr := httptest.NewRecorder()
	ws.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing prediction, got %d", rr.Code)
	}

	req = httptest.NewRequest("GET", "/charts/cloud?pred=abc&run_id="+id, nil)
	rr = httptest.NewRecorder()
	ws.setupRoutes().ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed index, got %d", rr.Code)
	}
}

func TestCloudChartRestrictedToDataDir(t *testing.T) {
	store, err := runstore.Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	dataDir := t.TempDir()
	ws := New(Config{Address: ":0", Store: store, NumPoints: 64, DataDir: dataDir})

	outside := filepath.Join(t.TempDir(), "tetra.off")
	if err := os.WriteFile(outside, []byte(tetraOFF), 0644); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/charts/cloud?mesh="+url.QueryEscape(outside), nil)
	rr := httptest.NewRecorder()
	ws.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for path outside data dir, got %d", rr.Code)
	}
}
