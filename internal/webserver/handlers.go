package webserver

import (
	"fmt"
	"html"
	"math/rand"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/pointnet/internal/mesh"
	"github.com/banshee-data/pointnet/internal/nn"
	"github.com/banshee-data/pointnet/internal/pointcloud"
	"github.com/banshee-data/pointnet/internal/runstore"
)

// maxUploadBytes caps classify uploads; the largest ModelNet meshes are
// a few megabytes of text.
const maxUploadBytes = 32 << 20

type runResponse struct {
	RunID      string     `json:"run_id"`
	ConfigJSON string     `json:"config_json"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	FinalAcc   *float64   `json:"final_acc,omitempty"`
}

func (ws *WebServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	runs, err := ws.store.ListRuns()
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, runResponse{
			RunID:      run.ID,
			ConfigJSON: run.ConfigJSON,
			StartedAt:  run.StartedAt,
			FinishedAt: run.FinishedAt,
			FinalAcc:   run.FinalAcc,
		})
	}
	ws.writeJSON(w, out)
}

type epochResponse struct {
	Epoch      int     `json:"epoch"`
	TrainLoss  float64 `json:"train_loss"`
	TrainAcc   float64 `json:"train_acc"`
	ValLoss    float64 `json:"val_loss"`
	ValAcc     float64 `json:"val_acc"`
	DurationMs int64   `json:"duration_ms"`
}

func (ws *WebServer) handleEpochs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "run_id is required")
		return
	}

	stats, err := ws.store.Epochs(runID)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]epochResponse, 0, len(stats))
	for _, s := range stats {
		out = append(out, epochResponse{
			Epoch:      s.Epoch,
			TrainLoss:  s.TrainLoss,
			TrainAcc:   s.TrainAcc,
			ValLoss:    s.ValLoss,
			ValAcc:     s.ValAcc,
			DurationMs: s.Duration.Milliseconds(),
		})
	}
	ws.writeJSON(w, out)
}

func (ws *WebServer) handlePredictions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "run_id is required")
		return
	}

	preds, err := ws.store.Predictions(runID)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if preds == nil {
		preds = []runstore.Prediction{}
	}
	ws.writeJSON(w, preds)
}

type classifyResponse struct {
	RunID      string             `json:"run_id"`
	Class      string             `json:"class"`
	Confidence float64            `json:"confidence"`
	Probs      map[string]float64 `json:"probs"`
}

// handleClassify accepts a multipart mesh upload (field "mesh", .off or
// .obj), samples a point cloud from it and classifies it with the requested
// run's checkpoint (latest run when run_id is absent).
func (ws *WebServer) handleClassify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("mesh")
	if err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, "missing mesh upload: "+err.Error())
		return
	}
	defer file.Close()

	cloud, err := ws.sampleUpload(file, header.Filename)
	if err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	net, classes, runID, err := ws.model(r.URL.Query().Get("run_id"))
	if err != nil {
		ws.writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}

	probs := net.Predict(cloud.Matrix())
	best := 0
	for j := range probs {
		if probs[j] > probs[best] {
			best = j
		}
	}

	resp := classifyResponse{
		RunID:      runID,
		Class:      nn.ClassLabel(classes, best),
		Confidence: probs[best],
		Probs:      make(map[string]float64, len(probs)),
	}
	for j, p := range probs {
		resp.Probs[nn.ClassLabel(classes, j)] = p
	}
	ws.writeJSON(w, resp)
}

// sampleUpload parses an uploaded mesh, samples the configured number of
// points from its surface and normalizes to the unit sphere.
func (ws *WebServer) sampleUpload(file multipart.File, filename string) (pointcloud.Cloud, error) {
	var m *mesh.Mesh
	var err error
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".off":
		m, err = mesh.ParseOFF(file)
	case ".obj":
		m, err = mesh.ParseOBJ(file)
	default:
		return nil, fmt.Errorf("unsupported mesh format %q", filepath.Ext(filename))
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}

	cloud, err := mesh.SamplePoints(m, ws.numPoints, rand.New(rand.NewSource(time.Now().UnixNano())))
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", filename, err)
	}
	cloud.NormalizeUnitSphere()
	return cloud, nil
}

// handleIndex renders a minimal HTML listing of runs with links to the
// chart endpoints.
func (ws *WebServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	runs, err := ws.store.ListRuns()
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><title>pointnet runs</title></head><body>")
	b.WriteString("<h1>Training Runs</h1>")
	if len(runs) == 0 {
		b.WriteString("<p>No runs recorded yet.</p>")
	}
	b.WriteString("<ul>")
	for _, run := range runs {
		id := html.EscapeString(run.ID)
		status := "running"
		if run.FinishedAt != nil {
			status = run.FinishedAt.Format(time.RFC3339)
			if run.FinalAcc != nil {
				status += fmt.Sprintf(" (acc %.3f)", *run.FinalAcc)
			}
		}
		fmt.Fprintf(&b,
			`<li><code>%s</code> started %s, finished %s — <a href="/charts/curves?run_id=%s">curves</a> <a href="/api/epochs?run_id=%s">epochs</a></li>`,
			id, run.StartedAt.Format(time.RFC3339), status, id, id)
	}
	b.WriteString("</ul></body></html>")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(b.String()))
}
