// Package runstore persists training runs in SQLite: run metadata with the
// effective config, per-epoch loss/accuracy rows, held-out predictions, and
// gzip-compressed model checkpoints. The schema is managed with embedded
// golang-migrate migrations.
package runstore

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/pointnet/internal/pointcloud"
	"github.com/banshee-data/pointnet/internal/train"
)

// DB wraps the SQLite handle for a run store.
type DB struct {
	*sql.DB
}

// Open opens (or creates) a run store at path and applies any pending
// migrations.
func Open(path string) (*DB, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db := &DB{sqldb}
	if err := db.MigrateUp(); err != nil {
		sqldb.Close()
		return nil, err
	}
	return db, nil
}

// Run is one row of the runs table.
type Run struct {
	ID         string
	ConfigJSON string
	StartedAt  time.Time
	FinishedAt *time.Time
	FinalAcc   *float64
}

// CreateRun inserts a new run with a fresh UUID and returns its id.
func (db *DB) CreateRun(configJSON string) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(
		`INSERT INTO runs (run_id, config_json, started_at) VALUES (?, ?, ?)`,
		id, configJSON, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// FinishRun marks a run complete with its final held-out accuracy.
func (db *DB) FinishRun(runID string, finalAcc float64) error {
	res, err := db.Exec(
		`UPDATE runs SET finished_at = ?, final_acc = ? WHERE run_id = ?`,
		time.Now().UTC(), finalAcc, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// ListRuns returns all runs, newest first.
func (db *DB) ListRuns() ([]Run, error) {
	rows, err := db.Query(
		`SELECT run_id, config_json, started_at, finished_at, final_acc
		 FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.ConfigJSON, &r.StartedAt, &r.FinishedAt, &r.FinalAcc); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RecordEpoch persists one epoch's statistics. Implements train.RunRecorder.
func (db *DB) RecordEpoch(runID string, stats train.EpochStats) error {
	_, err := db.Exec(
		`INSERT INTO epochs (run_id, epoch, train_loss, train_acc, val_loss, val_acc, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, stats.Epoch, stats.TrainLoss, stats.TrainAcc,
		stats.ValLoss, stats.ValAcc, stats.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert epoch: %w", err)
	}
	return nil
}

// Epochs returns the recorded statistics for a run in epoch order.
func (db *DB) Epochs(runID string) ([]train.EpochStats, error) {
	rows, err := db.Query(
		`SELECT epoch, train_loss, train_acc, val_loss, val_acc, duration_ms
		 FROM epochs WHERE run_id = ? ORDER BY epoch`, runID)
	if err != nil {
		return nil, fmt.Errorf("query epochs: %w", err)
	}
	defer rows.Close()

	var out []train.EpochStats
	for rows.Next() {
		var s train.EpochStats
		var ms int64
		if err := rows.Scan(&s.Epoch, &s.TrainLoss, &s.TrainAcc, &s.ValLoss, &s.ValAcc, &ms); err != nil {
			return nil, err
		}
		s.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, s)
	}
	return out, rows.Err()
}

// Prediction is one held-out classification result. Cloud holds the sampled
// points the model actually scored, so the result can be rendered later.
type Prediction struct {
	MeshPath   string
	Actual     int
	Predicted  int
	Confidence float64
	Cloud      pointcloud.Cloud
}

// RecordPredictions stores a batch of held-out predictions for a run. Each
// sampled cloud is packed into a binary blob alongside the result.
func (db *DB) RecordPredictions(runID string, preds []Prediction) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO predictions (run_id, mesh_path, actual, predicted, confidence, cloud_blob)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range preds {
		var blob []byte
		if len(p.Cloud) > 0 {
			blob = pointcloud.EncodeBlob(p.Cloud)
		}
		if _, err := stmt.Exec(runID, p.MeshPath, p.Actual, p.Predicted, p.Confidence, blob); err != nil {
			return fmt.Errorf("insert prediction: %w", err)
		}
	}
	return tx.Commit()
}

// Predictions returns the stored predictions for a run, clouds decoded.
func (db *DB) Predictions(runID string) ([]Prediction, error) {
	rows, err := db.Query(
		`SELECT mesh_path, actual, predicted, confidence, cloud_blob
		 FROM predictions WHERE run_id = ? ORDER BY prediction_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	var out []Prediction
	for rows.Next() {
		var p Prediction
		var blob []byte
		if err := rows.Scan(&p.MeshPath, &p.Actual, &p.Predicted, &p.Confidence, &blob); err != nil {
			return nil, err
		}
		p.Cloud = pointcloud.DecodeBlob(blob)
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveCheckpoint stores a serialized model for a run, gzip-compressed.
func (db *DB) SaveCheckpoint(runID string, checkpoint []byte) error {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(checkpoint); err != nil {
		return fmt.Errorf("compress checkpoint: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("compress checkpoint: %w", err)
	}

	_, err := db.Exec(
		`INSERT INTO checkpoints (run_id, created_at, blob) VALUES (?, ?, ?)`,
		runID, time.Now().UTC(), buf.Bytes(),
	)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint returns the most recent checkpoint blob for a run,
// decompressed.
func (db *DB) LoadCheckpoint(runID string) ([]byte, error) {
	var blob []byte
	err := db.QueryRow(
		`SELECT blob FROM checkpoints WHERE run_id = ?
		 ORDER BY checkpoint_id DESC LIMIT 1`, runID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no checkpoint for run %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("query checkpoint: %w", err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("decompress checkpoint: %w", err)
	}
	defer gz.Close()
	return io.ReadAll(gz)
}

// LatestRunID returns the id of the most recently started run.
func (db *DB) LatestRunID() (string, error) {
	var id string
	err := db.QueryRow(`SELECT run_id FROM runs ORDER BY started_at DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no runs recorded")
	}
	return id, err
}
