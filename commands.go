package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/pointnet/internal/config"
	"github.com/banshee-data/pointnet/internal/dataset"
	"github.com/banshee-data/pointnet/internal/mesh"
	"github.com/banshee-data/pointnet/internal/nn"
	"github.com/banshee-data/pointnet/internal/runstore"
	"github.com/banshee-data/pointnet/internal/train"
	"github.com/banshee-data/pointnet/internal/webserver"
)

const defaultDBFile = "pointnet_runs.db"

// mustLoadConfig loads and validates the training configuration, falling
// back to defaults when no path is given.
func mustLoadConfig(path string) *config.TrainingConfig {
	cfg := config.Empty()
	if path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	return cfg
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// resolveSeed returns the configured seed, replacing the zero "seed from the
// clock" sentinel with the current time. The resolved value is written back
// into the config so the run records the seed it actually used.
func resolveSeed(cfg *config.TrainingConfig) int64 {
	seed := cfg.GetSeed()
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	cfg.Seed = &seed
	return seed
}

func handleFetch(args []string) {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	configPath := fs.String("config", "", "JSON training configuration")
	dataDir := fs.String("data", "", "dataset directory (overrides config)")
	url := fs.String("url", "", "dataset archive URL (overrides config)")
	fs.Parse(args)

	cfg := mustLoadConfig(*configPath)
	dir := cfg.GetDataDir()
	if *dataDir != "" {
		dir = *dataDir
	}
	archiveURL := cfg.GetDatasetURL()
	if *url != "" {
		archiveURL = *url
	}

	ctx, stop := signalContext()
	defer stop()

	if err := dataset.Fetch(ctx, archiveURL, dir); err != nil {
		log.Fatalf("fetch failed: %v", err)
	}
	log.Printf("dataset ready under %s", dir)
}

func handleTrain(args []string) {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	configPath := fs.String("config", "", "JSON training configuration")
	dataDir := fs.String("data", "", "dataset directory (overrides config)")
	dbPath := fs.String("db", defaultDBFile, "run store database")
	curvesDir := fs.String("curves", "", "directory for loss/accuracy PNG plots (optional)")
	fs.Parse(args)

	cfg := mustLoadConfig(*configPath)
	dir := cfg.GetDataDir()
	if *dataDir != "" {
		dir = *dataDir
	}
	rng := rand.New(rand.NewSource(resolveSeed(cfg)))

	root, err := dataset.FindRoot(dir)
	if err != nil {
		log.Fatalf("dataset not found (run 'pointnet fetch' first): %v", err)
	}
	idx, err := dataset.BuildIndex(root)
	if err != nil {
		log.Fatalf("failed to index dataset: %v", err)
	}
	if idx.NumClasses() != cfg.GetNumClasses() {
		log.Printf("dataset defines %d classes; configured num_classes=%d is ignored",
			idx.NumClasses(), cfg.GetNumClasses())
	}

	log.Printf("sampling %d points from %d train and %d test meshes",
		cfg.GetNumPoints(), len(idx.Train), len(idx.Test))
	trainEx, err := dataset.LoadSplit(idx.Train, cfg.GetNumPoints(), rng)
	if err != nil {
		log.Fatalf("failed to load train split: %v", err)
	}
	testEx, err := dataset.LoadSplit(idx.Test, cfg.GetNumPoints(), rng)
	if err != nil {
		log.Fatalf("failed to load test split: %v", err)
	}

	trainB, err := dataset.NewBatcher(trainEx, cfg.GetBatchSize(), true, cfg.GetJitterAmplitude(), rng)
	if err != nil {
		log.Fatalf("failed to build train batches: %v", err)
	}
	valB, err := dataset.NewBatcher(testEx, cfg.GetBatchSize(), false, 0, rng)
	if err != nil {
		log.Fatalf("failed to build validation batches: %v", err)
	}

	store, err := runstore.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open run store: %v", err)
	}
	defer store.Close()

	configJSON, err := cfg.MarshalJSONString()
	if err != nil {
		log.Fatalf("failed to serialize config: %v", err)
	}
	runID, err := store.CreateRun(configJSON)
	if err != nil {
		log.Fatalf("failed to create run: %v", err)
	}
	log.Printf("run %s: %d classes, %d train examples, %d epochs",
		runID, idx.NumClasses(), trainB.NumExamples(), cfg.GetEpochs())

	model := nn.NewPointNet(nn.Config{
		NumClasses: idx.NumClasses(),
		Dropout:    cfg.GetDropout(),
		OrthoCoef:  cfg.GetOrthoCoef(),
	}, rng)
	trainer := train.New(model, nn.NewAdam(cfg.GetLearningRate()))

	ctx, stop := signalContext()
	defer stop()

	// bestCkpt holds the serialized model from the epoch with the highest
	// validation accuracy seen so far.
	var bestCkpt bytes.Buffer
	stats, err := trainer.Run(ctx, trainB, valB, train.Options{
		Epochs:   cfg.GetEpochs(),
		RunID:    runID,
		Recorder: store,
		Snapshot: func(epoch int) error {
			bestCkpt.Reset()
			return model.SaveCheckpoint(&bestCkpt, idx.Classes)
		},
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Fatalf("training failed: %v", err)
		}
		log.Printf("training interrupted after %d epochs; saving checkpoint", len(stats))
	}

	if bestCkpt.Len() == 0 {
		if err := model.SaveCheckpoint(&bestCkpt, idx.Classes); err != nil {
			log.Fatalf("failed to serialize checkpoint: %v", err)
		}
	}
	if err := store.SaveCheckpoint(runID, bestCkpt.Bytes()); err != nil {
		log.Fatalf("failed to store checkpoint: %v", err)
	}
	// Restore the best-epoch weights so the final evaluation and recorded
	// predictions match the stored checkpoint.
	model, _, err = nn.LoadCheckpoint(bytes.NewReader(bestCkpt.Bytes()), rng)
	if err != nil {
		log.Fatalf("failed to restore best checkpoint: %v", err)
	}

	loss, acc, cm, err := train.Evaluate(model, valB)
	if err != nil {
		log.Fatalf("final evaluation failed: %v", err)
	}
	log.Printf("final test loss=%.4f acc=%.4f mean-class-acc=%.4f",
		loss, acc, cm.MeanClassAccuracy())
	fmt.Println(cm.Render(idx.Classes))

	preds := make([]runstore.Prediction, 0, len(testEx))
	for _, ex := range testEx {
		probs := model.Predict(ex.Cloud.Matrix())
		best := argmax(probs)
		preds = append(preds, runstore.Prediction{
			MeshPath:   ex.Path,
			Actual:     ex.Label,
			Predicted:  best,
			Confidence: probs[best],
			Cloud:      ex.Cloud,
		})
	}
	if err := store.RecordPredictions(runID, preds); err != nil {
		log.Printf("failed to record predictions: %v", err)
	}
	if err := store.FinishRun(runID, acc); err != nil {
		log.Printf("failed to finish run: %v", err)
	}

	if *curvesDir != "" {
		if err := train.WriteCurvePlots(*curvesDir, stats); err != nil {
			log.Printf("failed to write curve plots: %v", err)
		} else {
			log.Printf("wrote loss and accuracy plots to %s", *curvesDir)
		}
	}
}

func handleEval(args []string) {
	fs := flag.NewFlagSet("eval", flag.ExitOnError)
	configPath := fs.String("config", "", "JSON training configuration")
	dataDir := fs.String("data", "", "dataset directory (overrides config)")
	dbPath := fs.String("db", defaultDBFile, "run store database")
	runID := fs.String("run", "", "run to evaluate (default: latest)")
	fs.Parse(args)

	cfg := mustLoadConfig(*configPath)
	dir := cfg.GetDataDir()
	if *dataDir != "" {
		dir = *dataDir
	}
	rng := rand.New(rand.NewSource(resolveSeed(cfg)))

	store, err := runstore.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open run store: %v", err)
	}
	defer store.Close()

	model, classes, id := mustLoadModel(store, *runID)
	log.Printf("evaluating run %s (%d classes)", id, len(classes))

	root, err := dataset.FindRoot(dir)
	if err != nil {
		log.Fatalf("dataset not found: %v", err)
	}
	idx, err := dataset.BuildIndex(root)
	if err != nil {
		log.Fatalf("failed to index dataset: %v", err)
	}
	testEx, err := dataset.LoadSplit(idx.Test, cfg.GetNumPoints(), rng)
	if err != nil {
		log.Fatalf("failed to load test split: %v", err)
	}
	valB, err := dataset.NewBatcher(testEx, cfg.GetBatchSize(), false, 0, rng)
	if err != nil {
		log.Fatalf("failed to build batches: %v", err)
	}

	loss, acc, cm, err := train.Evaluate(model, valB)
	if err != nil {
		log.Fatalf("evaluation failed: %v", err)
	}
	log.Printf("test loss=%.4f acc=%.4f mean-class-acc=%.4f",
		loss, acc, cm.MeanClassAccuracy())
	fmt.Println(cm.Render(classes))
}

func handlePredict(args []string) {
	fs := flag.NewFlagSet("predict", flag.ExitOnError)
	configPath := fs.String("config", "", "JSON training configuration")
	dbPath := fs.String("db", defaultDBFile, "run store database")
	runID := fs.String("run", "", "run to predict with (default: latest)")
	fs.Parse(args)

	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: pointnet predict [options] <mesh.off|mesh.obj> ...")
		os.Exit(1)
	}

	cfg := mustLoadConfig(*configPath)
	rng := rand.New(rand.NewSource(resolveSeed(cfg)))

	store, err := runstore.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open run store: %v", err)
	}
	defer store.Close()

	model, classes, _ := mustLoadModel(store, *runID)

	for _, path := range fs.Args() {
		m, err := mesh.LoadFile(path)
		if err != nil {
			log.Printf("%s: %v", path, err)
			continue
		}
		cloud, err := mesh.SamplePoints(m, cfg.GetNumPoints(), rng)
		if err != nil {
			log.Printf("%s: %v", path, err)
			continue
		}
		cloud.NormalizeUnitSphere()

		probs := model.Predict(cloud.Matrix())
		best := argmax(probs)
		fmt.Printf("%s: %s (%.3f)\n", path, nn.ClassLabel(classes, best), probs[best])
	}
}

func handleServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "JSON training configuration")
	dbPath := fs.String("db", defaultDBFile, "run store database")
	listen := fs.String("listen", ":8080", "listen address")
	fs.Parse(args)

	cfg := mustLoadConfig(*configPath)

	store, err := runstore.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open run store: %v", err)
	}
	defer store.Close()

	ws := webserver.New(webserver.Config{
		Address:   *listen,
		Store:     store,
		NumPoints: cfg.GetNumPoints(),
		DataDir:   cfg.GetDataDir(),
	})

	ctx, stop := signalContext()
	defer stop()

	if err := ws.Start(ctx); err != nil {
		log.Fatalf("server failed: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

// mustLoadModel loads the checkpoint for a run (or the latest run when id is
// empty) from the store.
func mustLoadModel(store *runstore.DB, id string) (*nn.PointNet, []string, string) {
	if id == "" {
		latest, err := store.LatestRunID()
		if err != nil {
			log.Fatalf("no runs in store: %v", err)
		}
		id = latest
	}
	blob, err := store.LoadCheckpoint(id)
	if err != nil {
		log.Fatalf("failed to load checkpoint: %v", err)
	}
	model, classes, err := nn.LoadCheckpoint(bytes.NewReader(blob), rand.New(rand.NewSource(1)))
	if err != nil {
		log.Fatalf("failed to restore model: %v", err)
	}
	return model, classes, id
}

func argmax(xs []float64) int {
	best := 0
	for i := range xs {
		if xs[i] > xs[best] {
			best = i
		}
	}
	return best
}
