package webserver

import (
	"bytes"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/pointnet/internal/mesh"
	"github.com/banshee-data/pointnet/internal/nn"
	"github.com/banshee-data/pointnet/internal/pointcloud"
	"github.com/banshee-data/pointnet/internal/security"
)

// handleCurvesChart renders loss and accuracy curves for a run as an HTML
// page using go-echarts. This is a debugging view; the JSON endpoints carry
// the same data for programmatic use.
// Query params:
//   - run_id (required)
func (ws *WebServer) handleCurvesChart(w http.ResponseWriter, r *http.Request) {
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
	if len(stats) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "no epochs recorded for run")
		return
	}

	epochs := make([]int, len(stats))
	trainLoss := make([]opts.LineData, len(stats))
	valLoss := make([]opts.LineData, len(stats))
	trainAcc := make([]opts.LineData, len(stats))
	valAcc := make([]opts.LineData, len(stats))
	for i, s := range stats {
		epochs[i] = s.Epoch
		trainLoss[i] = opts.LineData{Value: s.TrainLoss}
		valLoss[i] = opts.LineData{Value: s.ValLoss}
		trainAcc[i] = opts.LineData{Value: s.TrainAcc}
		valAcc[i] = opts.LineData{Value: s.ValAcc}
	}

	lossChart := charts.NewLine()
	lossChart.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Training Curves"}),
		charts.WithTitleOpts(opts.Title{Title: "Loss", Subtitle: "run " + runID}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "epoch"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	lossChart.SetXAxis(epochs).
		AddSeries("train", trainLoss).
		AddSeries("validation", valLoss)

	accChart := charts.NewLine()
	accChart.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Accuracy", Subtitle: "run " + runID}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "epoch"}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	accChart.SetXAxis(epochs).
		AddSeries("train", trainAcc).
		AddSeries("validation", valAcc)

	page := components.NewPage()
	page.AddCharts(lossChart, accChart)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleCloudChart samples a point cloud from a mesh file on disk and
// renders it as a 3D scatter plot, with the classifier's verdict in the
// subtitle. Useful for eyeballing what the network actually sees.
// Query params:
//   - mesh: path to a .off or .obj file to sample fresh, or
//   - pred: index of a stored prediction whose recorded cloud to render
//   - run_id (optional): checkpoint / prediction run; defaults to latest
//   - points (optional): sample size override for the mesh form
func (ws *WebServer) handleCloudChart(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("pred") != "" {
		ws.handleStoredCloudChart(w, r)
		return
	}

	meshPath := r.URL.Query().Get("mesh")
	if meshPath == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "mesh or pred is required")
		return
	}
	if ws.dataDir != "" {
		if err := security.ValidatePathWithinDirectory(meshPath, ws.dataDir); err != nil {
			ws.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	numPoints := ws.numPoints
	if p := r.URL.Query().Get("points"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 && v <= 100000 {
			numPoints = v
		}
	}

	m, err := mesh.LoadFile(meshPath)
	if err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	cloud, err := mesh.SamplePoints(m, numPoints, rand.New(rand.NewSource(time.Now().UnixNano())))
	if err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	cloud.NormalizeUnitSphere()

	subtitle := fmt.Sprintf("%s, %d points", meshPath, len(cloud))
	if net, classes, runID, err := ws.model(r.URL.Query().Get("run_id")); err == nil {
		probs := net.Predict(cloud.Matrix())
		best := 0
		for j := range probs {
			if probs[j] > probs[best] {
				best = j
			}
		}
		subtitle = fmt.Sprintf("%s predicted=%s (%.2f) run=%s",
			subtitle, nn.ClassLabel(classes, best), probs[best], runID)
	}

	ws.renderCloudChart(w, cloud, subtitle)
}

// handleStoredCloudChart renders the exact cloud a stored prediction was
// scored on, as recorded in the run store.
func (ws *WebServer) handleStoredCloudChart(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(r.URL.Query().Get("pred"))
	if err != nil || idx < 0 {
		ws.writeJSONError(w, http.StatusBadRequest, "pred must be a non-negative index")
		return
	}

	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		runID, err = ws.store.LatestRunID()
		if err != nil {
			ws.writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}
	}

	preds, err := ws.store.Predictions(runID)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if idx >= len(preds) {
		ws.writeJSONError(w, http.StatusNotFound,
			fmt.Sprintf("run %s has %d predictions", runID, len(preds)))
		return
	}

	pred := preds[idx]
	if len(pred.Cloud) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "prediction has no recorded cloud")
		return
	}

	actual := strconv.Itoa(pred.Actual)
	predicted := strconv.Itoa(pred.Predicted)
	if _, classes, _, err := ws.model(runID); err == nil {
		actual = nn.ClassLabel(classes, pred.Actual)
		predicted = nn.ClassLabel(classes, pred.Predicted)
	}

	subtitle := fmt.Sprintf("%s actual=%s predicted=%s (%.2f) run=%s",
		pred.MeshPath, actual, predicted, pred.Confidence, runID)
	ws.renderCloudChart(w, pred.Cloud, subtitle)
}

func (ws *WebServer) renderCloudChart(w http.ResponseWriter, cloud pointcloud.Cloud, subtitle string) {
	data := make([]opts.Chart3DData, len(cloud))
	for i, p := range cloud {
		data[i] = opts.Chart3DData{Value: []interface{}{
			float64(p.X), float64(p.Y), float64(p.Z),
		}}
	}

	scatter := charts.NewScatter3D()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Sampled Point Cloud", Theme: "dark",
			Width: "900px", Height: "900px",
		}),
		charts.WithTitleOpts(opts.Title{Title: "Sampled Point Cloud", Subtitle: subtitle}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        -1,
			Max:        1,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#31688e", "#35b779", "#fde725"}},
		}),
	)
	scatter.AddSeries("cloud", data)

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
