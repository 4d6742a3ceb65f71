// Package webserver exposes the HTTP interface for inspecting training runs
// and classifying uploaded meshes: JSON endpoints for run metadata, epoch
// statistics and predictions, plus in-browser ECharts views for training
// curves and sampled point clouds.
package webserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/banshee-data/pointnet/internal/nn"
	"github.com/banshee-data/pointnet/internal/runstore"
)

// WebServer handles the HTTP interface for the run store and on-demand
// inference against stored checkpoints.
type WebServer struct {
	address   string
	store     *runstore.DB
	numPoints int
	dataDir   string
	server    *http.Server

	// model cache, keyed by run id; checkpoints are immutable once stored
	mu     sync.Mutex
	models map[string]*cachedModel
}

type cachedModel struct {
	net     *nn.PointNet
	classes []string
}

// Config contains configuration options for the web server.
type Config struct {
	Address   string
	Store     *runstore.DB
	NumPoints int
	DataDir   string // meshes served by path must live under this directory
}

// New creates a web server with the provided configuration.
func New(config Config) *WebServer {
	ws := &WebServer{
		address:   config.Address,
		store:     config.Store,
		numPoints: config.NumPoints,
		dataDir:   config.DataDir,
		models:    make(map[string]*cachedModel),
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}

	return ws
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown.
func (ws *WebServer) Start(ctx context.Context) error {
	// Start server in a goroutine so it doesn't block
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// Wait for context cancellation to shut down server
	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	log.Printf("HTTP server routine stopped")
	return nil
}

// Close shuts the server down immediately.
func (ws *WebServer) Close() error {
	return ws.server.Close()
}

// setupRoutes configures the HTTP routes and handlers.
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleIndex)
	mux.HandleFunc("/api/runs", ws.handleRuns)
	mux.HandleFunc("/api/epochs", ws.handleEpochs)
	mux.HandleFunc("/api/predictions", ws.handlePredictions)
	mux.HandleFunc("/api/classify", ws.handleClassify)
	mux.HandleFunc("/charts/curves", ws.handleCurvesChart)
	mux.HandleFunc("/charts/cloud", ws.handleCloudChart)

	return mux
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ws.writeJSON(w, map[string]string{"status": "ok"})
}

// model returns the network for a run id, loading and caching its most
// recent checkpoint on first use. An empty run id selects the latest run.
func (ws *WebServer) model(runID string) (*nn.PointNet, []string, string, error) {
	if runID == "" {
		latest, err := ws.store.LatestRunID()
		if err != nil {
			return nil, nil, "", err
		}
		runID = latest
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()

	if m, ok := ws.models[runID]; ok {
		return m.net, m.classes, runID, nil
	}

	blob, err := ws.store.LoadCheckpoint(runID)
	if err != nil {
		return nil, nil, "", err
	}
	net, classes, err := nn.LoadCheckpoint(bytes.NewReader(blob), rand.New(rand.NewSource(1)))
	if err != nil {
		return nil, nil, "", fmt.Errorf("load checkpoint for run %s: %w", runID, err)
	}

	ws.models[runID] = &cachedModel{net: net, classes: classes}
	return net, classes, runID, nil
}
