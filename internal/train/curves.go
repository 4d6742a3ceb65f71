package train

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// WriteCurvePlots renders loss.png and accuracy.png under dir from the
// per-epoch statistics of a run.
func WriteCurvePlots(dir string, stats []EpochStats) error {
	if len(stats) == 0 {
		return fmt.Errorf("no epoch statistics to plot")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	hasVal := false
	for _, s := range stats {
		if s.ValAcc > 0 || s.ValLoss > 0 {
			hasVal = true
			break
		}
	}

	if err := writeCurve(
		filepath.Join(dir, "loss.png"), "Training Loss", "Loss",
		stats, func(s EpochStats) float64 { return s.TrainLoss },
		func(s EpochStats) float64 { return s.ValLoss }, hasVal,
	); err != nil {
		return fmt.Errorf("save loss plot: %w", err)
	}

	if err := writeCurve(
		filepath.Join(dir, "accuracy.png"), "Training Accuracy", "Accuracy",
		stats, func(s EpochStats) float64 { return s.TrainAcc },
		func(s EpochStats) float64 { return s.ValAcc }, hasVal,
	); err != nil {
		return fmt.Errorf("save accuracy plot: %w", err)
	}
	return nil
}

// writeCurve renders one train/validation line chart to a PNG file.
func writeCurve(path, title, yLabel string, stats []EpochStats,
	trainVal, valVal func(EpochStats) float64, hasVal bool) error {

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = yLabel

	trainPts := make(plotter.XYs, len(stats))
	for i, s := range stats {
		trainPts[i] = plotter.XY{X: float64(s.Epoch), Y: trainVal(s)}
	}
	trainLine, err := plotter.NewLine(trainPts)
	if err != nil {
		return err
	}
	trainLine.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	trainLine.Width = vg.Points(1.5)
	p.Add(trainLine)
	p.Legend.Add("train", trainLine)

	if hasVal {
		valPts := make(plotter.XYs, len(stats))
		for i, s := range stats {
			valPts[i] = plotter.XY{X: float64(s.Epoch), Y: valVal(s)}
		}
		valLine, err := plotter.NewLine(valPts)
		if err != nil {
			return err
		}
		valLine.Color = color.RGBA{R: 255, G: 127, B: 14, A: 255}
		valLine.Width = vg.Points(1.5)
		p.Add(valLine)
		p.Legend.Add("validation", valLine)
	}

	p.Legend.Top = true
	p.Legend.Left = false

	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}
