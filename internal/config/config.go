// Package config loads training configuration from JSON files. Fields are
// pointers so a partial file only overrides what it names; the Get* methods
// supply defaults for everything else. The defaults reproduce the reference
// training setup (2048 points, 10 classes, batch 32, lr 1e-3, 20 epochs).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// TrainingConfig is the root configuration for a training run. The same JSON
// document is persisted alongside each run in the run store so results stay
// reproducible.
type TrainingConfig struct {
	// Dataset params
	DatasetURL *string `json:"dataset_url,omitempty"`
	DataDir    *string `json:"data_dir,omitempty"`
	NumPoints  *int    `json:"num_points,omitempty"`
	NumClasses *int    `json:"num_classes,omitempty"`

	// Training params
	BatchSize    *int     `json:"batch_size,omitempty"`
	Epochs       *int     `json:"epochs,omitempty"`
	LearningRate *float64 `json:"learning_rate,omitempty"`
	Seed         *int64   `json:"seed,omitempty"`

	// Model params
	Dropout         *float64 `json:"dropout,omitempty"`
	OrthoCoef       *float64 `json:"ortho_coef,omitempty"`
	JitterAmplitude *float64 `json:"jitter_amplitude,omitempty"`
}

// Default values. These match the reference pipeline constants.
const (
	DefaultDatasetURL      = "http://3dvision.princeton.edu/projects/2014/3DShapeNets/ModelNet10.zip"
	DefaultDataDir         = "data/ModelNet10"
	DefaultNumPoints       = 2048
	DefaultNumClasses      = 10
	DefaultBatchSize       = 32
	DefaultEpochs          = 20
	DefaultLearningRate    = 0.001
	DefaultDropout         = 0.3
	DefaultOrthoCoef       = 0.001
	DefaultJitterAmplitude = 0.005
)

// Empty returns a TrainingConfig with all fields unset.
func Empty() *TrainingConfig {
	return &TrainingConfig{}
}

// Load reads a TrainingConfig from a JSON file. Fields omitted from the file
// fall back to defaults via the Get* methods, so partial configs are safe.
func Load(path string) (*TrainingConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that configured values are usable for training.
func (c *TrainingConfig) Validate() error {
	if c.NumPoints != nil && *c.NumPoints <= 0 {
		return fmt.Errorf("num_points must be positive, got %d", *c.NumPoints)
	}
	if c.NumClasses != nil && *c.NumClasses <= 1 {
		return fmt.Errorf("num_classes must be at least 2, got %d", *c.NumClasses)
	}
	if c.BatchSize != nil && *c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", *c.BatchSize)
	}
	if c.Epochs != nil && *c.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive, got %d", *c.Epochs)
	}
	if c.LearningRate != nil && *c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be positive, got %f", *c.LearningRate)
	}
	if c.Dropout != nil && (*c.Dropout < 0 || *c.Dropout >= 1) {
		return fmt.Errorf("dropout must be in [0, 1), got %f", *c.Dropout)
	}
	if c.OrthoCoef != nil && *c.OrthoCoef < 0 {
		return fmt.Errorf("ortho_coef must be non-negative, got %f", *c.OrthoCoef)
	}
	if c.JitterAmplitude != nil && *c.JitterAmplitude < 0 {
		return fmt.Errorf("jitter_amplitude must be non-negative, got %f", *c.JitterAmplitude)
	}
	return nil
}

// MarshalJSONString renders the effective configuration (defaults applied)
// as a JSON document for persistence with a run.
func (c *TrainingConfig) MarshalJSONString() (string, error) {
	effective := map[string]interface{}{
		"dataset_url":      c.GetDatasetURL(),
		"data_dir":         c.GetDataDir(),
		"num_points":       c.GetNumPoints(),
		"num_classes":      c.GetNumClasses(),
		"batch_size":       c.GetBatchSize(),
		"epochs":           c.GetEpochs(),
		"learning_rate":    c.GetLearningRate(),
		"seed":             c.GetSeed(),
		"dropout":          c.GetDropout(),
		"ortho_coef":       c.GetOrthoCoef(),
		"jitter_amplitude": c.GetJitterAmplitude(),
	}
	data, err := json.Marshal(effective)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GetDatasetURL returns the dataset archive URL or the default.
func (c *TrainingConfig) GetDatasetURL() string {
	if c.DatasetURL == nil || *c.DatasetURL == "" {
		return DefaultDatasetURL
	}
	return *c.DatasetURL
}

// GetDataDir returns the extracted dataset directory or the default.
func (c *TrainingConfig) GetDataDir() string {
	if c.DataDir == nil || *c.DataDir == "" {
		return DefaultDataDir
	}
	return *c.DataDir
}

// GetNumPoints returns points sampled per mesh or the default.
func (c *TrainingConfig) GetNumPoints() int {
	if c.NumPoints == nil {
		return DefaultNumPoints
	}
	return *c.NumPoints
}

// GetNumClasses returns the class count or the default.
func (c *TrainingConfig) GetNumClasses() int {
	if c.NumClasses == nil {
		return DefaultNumClasses
	}
	return *c.NumClasses
}

// GetBatchSize returns the mini-batch size or the default.
func (c *TrainingConfig) GetBatchSize() int {
	if c.BatchSize == nil {
		return DefaultBatchSize
	}
	return *c.BatchSize
}

// GetEpochs returns the epoch count or the default.
func (c *TrainingConfig) GetEpochs() int {
	if c.Epochs == nil {
		return DefaultEpochs
	}
	return *c.Epochs
}

// GetLearningRate returns the Adam learning rate or the default.
func (c *TrainingConfig) GetLearningRate() float64 {
	if c.LearningRate == nil {
		return DefaultLearningRate
	}
	return *c.LearningRate
}

// GetSeed returns the RNG seed. Zero means "seed from the clock" and is
// resolved by the caller, not here.
func (c *TrainingConfig) GetSeed() int64 {
	if c.Seed == nil {
		return 0
	}
	return *c.Seed
}

// GetDropout returns the dropout rate or the default.
func (c *TrainingConfig) GetDropout() float64 {
	if c.Dropout == nil {
		return DefaultDropout
	}
	return *c.Dropout
}

// GetOrthoCoef returns the orthogonality penalty coefficient or the default.
func (c *TrainingConfig) GetOrthoCoef() float64 {
	if c.OrthoCoef == nil {
		return DefaultOrthoCoef
	}
	return *c.OrthoCoef
}

// GetJitterAmplitude returns the augmentation jitter amplitude or the default.
func (c *TrainingConfig) GetJitterAmplitude() float64 {
	if c.JitterAmplitude == nil {
		return DefaultJitterAmplitude
	}
	return *c.JitterAmplitude
}
