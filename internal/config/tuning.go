package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tanksight/refract3d/internal/reconstruct"
	"github.com/tanksight/refract3d/internal/refraction"
)

// TuningConfig is the optional JSON tuning file for the reconstruction
// engine. All fields are pointers so a partial file only overrides what it
// names; everything else keeps its default.
type TuningConfig struct {
	// Refraction solver params
	RefractionTolerance     *float64 `json:"refraction_tolerance,omitempty"`
	RefractionMaxIterations *int     `json:"refraction_max_iterations,omitempty"`

	// Triangulation params
	OutlierK      *float64 `json:"outlier_k,omitempty"`
	ResidualFloor *float64 `json:"residual_floor,omitempty"`
	RankTolerance *float64 `json:"rank_tolerance,omitempty"`
	Robust        *bool    `json:"robust,omitempty"`

	// Batch params
	MinCameras     *int     `json:"min_cameras,omitempty"`
	Workers        *int     `json:"workers,omitempty"`
	ResidualSanity *float64 `json:"residual_sanity,omitempty"`
	ZMin           *float64 `json:"z_min,omitempty"`
	ZMax           *float64 `json:"z_max,omitempty"`

	// CameraWeights scales each camera's ray weight in the solve.
	CameraWeights map[string]float64 `json:"camera_weights,omitempty"`
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields omitted
// from the file stay nil, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("tuning file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat tuning file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("tuning file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tuning file: %w", err)
	}
	var cfg TuningConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse tuning file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the solvers would misbehave on.
func (c *TuningConfig) Validate() error {
	if c.RefractionTolerance != nil && *c.RefractionTolerance <= 0 {
		return fmt.Errorf("refraction_tolerance must be positive, got %g", *c.RefractionTolerance)
	}
	if c.RefractionMaxIterations != nil && *c.RefractionMaxIterations < 1 {
		return fmt.Errorf("refraction_max_iterations must be at least 1, got %d", *c.RefractionMaxIterations)
	}
	if c.OutlierK != nil && *c.OutlierK <= 0 {
		return fmt.Errorf("outlier_k must be positive, got %g", *c.OutlierK)
	}
	if c.MinCameras != nil && *c.MinCameras < 2 {
		return fmt.Errorf("min_cameras must be at least 2, got %d", *c.MinCameras)
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	if c.ZMin != nil && c.ZMax != nil && *c.ZMin >= *c.ZMax {
		return fmt.Errorf("z_min %g must be below z_max %g", *c.ZMin, *c.ZMax)
	}
	for id, w := range c.CameraWeights {
		if w <= 0 {
			return fmt.Errorf("camera_weights[%s] must be positive, got %g", id, w)
		}
	}
	return nil
}

// ApplyRefraction overlays the tuning values onto a solver config.
func (c *TuningConfig) ApplyRefraction(cfg *refraction.Config) {
	if c == nil {
		return
	}
	if c.RefractionTolerance != nil {
		cfg.DistanceTolerance = *c.RefractionTolerance
	}
	if c.RefractionMaxIterations != nil {
		cfg.MaxIterations = *c.RefractionMaxIterations
	}
}

// ApplyReconstruct overlays the tuning values onto a reconstruction
// config.
func (c *TuningConfig) ApplyReconstruct(cfg *reconstruct.Config) {
	if c == nil {
		return
	}
	if c.OutlierK != nil {
		cfg.Triangulation.OutlierK = *c.OutlierK
	}
	if c.ResidualFloor != nil {
		cfg.Triangulation.ResidualFloor = *c.ResidualFloor
	}
	if c.RankTolerance != nil {
		cfg.Triangulation.RankTolerance = *c.RankTolerance
	}
	if c.Robust != nil {
		cfg.Robust = *c.Robust
	}
	if c.MinCameras != nil {
		cfg.MinCameras = *c.MinCameras
	}
	if c.Workers != nil {
		cfg.Workers = *c.Workers
	}
	if c.ResidualSanity != nil {
		cfg.ResidualSanity = *c.ResidualSanity
	}
	if c.ZMin != nil {
		cfg.ZMin = *c.ZMin
	}
	if c.ZMax != nil {
		cfg.ZMax = *c.ZMax
	}
	if len(c.CameraWeights) > 0 {
		cfg.CameraWeights = c.CameraWeights
	}
}
