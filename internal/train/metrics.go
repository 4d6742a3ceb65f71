package train

import (
	"fmt"
	"strings"

	"github.com/banshee-data/pointnet/internal/dataset"
	"github.com/banshee-data/pointnet/internal/nn"
)

// ConfusionMatrix counts predictions per (actual, predicted) class pair.
type ConfusionMatrix struct {
	Classes int
	Counts  [][]int
}

// NewConfusionMatrix creates an empty matrix over n classes.
func NewConfusionMatrix(n int) *ConfusionMatrix {
	counts := make([][]int, n)
	for i := range counts {
		counts[i] = make([]int, n)
	}
	return &ConfusionMatrix{Classes: n, Counts: counts}
}

// Add records one prediction.
func (cm *ConfusionMatrix) Add(actual, predicted int) {
	if actual < 0 || actual >= cm.Classes || predicted < 0 || predicted >= cm.Classes {
		return
	}
	cm.Counts[actual][predicted]++
}

// Total returns the number of recorded predictions.
func (cm *ConfusionMatrix) Total() int {
	total := 0
	for _, row := range cm.Counts {
		for _, c := range row {
			total += c
		}
	}
	return total
}

// Accuracy returns the overall fraction of correct predictions.
func (cm *ConfusionMatrix) Accuracy() float64 {
	total := cm.Total()
	if total == 0 {
		return 0
	}
	correct := 0
	for i := 0; i < cm.Classes; i++ {
		correct += cm.Counts[i][i]
	}
	return float64(correct) / float64(total)
}

// MeanClassAccuracy returns per-class recall averaged over the classes that
// have at least one example.
func (cm *ConfusionMatrix) MeanClassAccuracy() float64 {
	sum, present := 0.0, 0
	for i := 0; i < cm.Classes; i++ {
		rowTotal := 0
		for _, c := range cm.Counts[i] {
			rowTotal += c
		}
		if rowTotal == 0 {
			continue
		}
		sum += float64(cm.Counts[i][i]) / float64(rowTotal)
		present++
	}
	if present == 0 {
		return 0
	}
	return sum / float64(present)
}

// Render formats the matrix with class names for log output.
func (cm *ConfusionMatrix) Render(classNames []string) string {
	var sb strings.Builder
	for i := 0; i < cm.Classes; i++ {
		name := fmt.Sprintf("class_%d", i)
		if i < len(classNames) {
			name = classNames[i]
		}
		fmt.Fprintf(&sb, "%-14s", name)
		for j := 0; j < cm.Classes; j++ {
			fmt.Fprintf(&sb, " %5d", cm.Counts[i][j])
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Evaluate runs the model over a batcher in inference mode and returns the
// mean loss, accuracy, and the confusion matrix.
func Evaluate(model *nn.PointNet, b *dataset.Batcher) (loss, acc float64, cm *ConfusionMatrix, err error) {
	b.Reset()
	cm = NewConfusionMatrix(model.Cfg.NumClasses)

	var sce nn.SoftmaxCrossEntropy
	totalLoss := 0.0
	batches := 0

	for {
		batch, ok := b.Next()
		if !ok {
			break
		}
		logits, _ := model.Forward(batch.X, batch.Size, batch.NumPoints, false)
		totalLoss += sce.Forward(logits, batch.Labels)
		for i, pred := range nn.Argmax(sce.Probs()) {
			cm.Add(batch.Labels[i], pred)
		}
		batches++
	}

	if batches == 0 {
		return 0, 0, nil, fmt.Errorf("evaluation batcher yielded no batches")
	}
	return totalLoss / float64(batches), cm.Accuracy(), cm, nil
}
